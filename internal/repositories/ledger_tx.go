package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/damstudio/backend/internal/models"
	"github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is the MySQL error number for unique key violations
const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is a MySQL unique key violation
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// withTx runs fn inside a transaction.
// The transaction is rolled back when fn fails or ctx is cancelled before commit.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// lockAsset takes the row lock that serializes ledger writers of one asset
func lockAsset(ctx context.Context, tx *sql.Tx, assetID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM assets WHERE id = ? FOR UPDATE`, assetID).Scan(&id)
	if err == sql.ErrNoRows {
		return fmt.Errorf("asset %d: %w", assetID, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock asset: %w", err)
	}
	return nil
}

// nextVersionNumber returns max(version) + 1 for the asset, 1 when no version exists
func nextVersionNumber(ctx context.Context, tx *sql.Tx, assetID int64) (int, error) {
	var next int
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM asset_versions WHERE asset_id = ?`,
		assetID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest version number: %w", err)
	}
	return next, nil
}

// setHead points the asset's current file at the given blob key
func setHead(ctx context.Context, tx *sql.Tx, assetID int64, file string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE assets SET file = ? WHERE id = ?`, file, assetID); err != nil {
		return fmt.Errorf("failed to update asset head: %w", err)
	}
	return nil
}

// appendVersion allocates the next version number, inserts the version row,
// stores the file bytes when needed and moves the head pointer, all on tx.
//
// A concurrent writer that already claimed the number surfaces as models.ErrConflict.
func appendVersion(ctx context.Context, tx *sql.Tx, assetID int64, nv models.NewVersion) (*models.AssetVersion, error) {
	number, err := nextVersionNumber(ctx, tx, assetID)
	if err != nil {
		return nil, err
	}

	file := nv.File
	if file == "" {
		file = models.VersionFileKey(assetID, number, nv.FileName)
	}

	version := &models.AssetVersion{
		AssetID:    assetID,
		Version:    number,
		File:       file,
		Note:       nv.Note,
		UploaderID: nv.UploaderID,
		CreatedAt:  time.Now().UTC(),
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO asset_versions (asset_id, version, file, note, uploader_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		version.AssetID,
		version.Version,
		version.File,
		nullString(version.Note),
		nullInt64(version.UploaderID),
		version.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, fmt.Errorf("version %d of asset %d already exists: %w", number, assetID, models.ErrConflict)
		}
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get version id: %w", err)
	}
	version.ID = id

	if nv.File == "" && nv.Store != nil {
		if err := nv.Store(ctx, file); err != nil {
			return nil, fmt.Errorf("failed to store version file: %w: %w", models.ErrStorage, err)
		}
	}

	if err := setHead(ctx, tx, assetID, file); err != nil {
		return nil, err
	}

	return version, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}
