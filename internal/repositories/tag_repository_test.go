package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/damstudio/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTagTestRepository(t *testing.T) (*tagRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, logger, cleanup := setupMockDB(t)
	return NewTagRepository(db, logger), mock, cleanup
}

func TestTagRepository_List(t *testing.T) {
	tests := []struct {
		name          string
		setupMock     func(sqlmock.Sqlmock)
		expectedError bool
		expected      []models.Tag
	}{
		{
			name: "success",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, name, color FROM tags ORDER BY name`).
					WillReturnRows(sqlmock.NewRows([]string{"id", "name", "color"}).
						AddRow(2, "brand", "#ff0000").
						AddRow(1, "web", "#3498db"))
			},
			expected: []models.Tag{
				{ID: 2, Name: "brand", Color: "#ff0000"},
				{ID: 1, Name: "web", Color: "#3498db"},
			},
		},
		{
			name: "empty",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, name, color FROM tags`).
					WillReturnRows(sqlmock.NewRows([]string{"id", "name", "color"}))
			},
			expected: []models.Tag{},
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, name, color FROM tags`).
					WillReturnError(errors.New("database error"))
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := setupTagTestRepository(t)
			defer cleanup()

			tt.setupMock(mock)

			tags, err := repo.List(context.Background())

			if tt.expectedError {
				assert.Error(t, err)
				assert.Nil(t, tags)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, tags)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTagRepository_Create(t *testing.T) {
	tests := []struct {
		name          string
		setupMock     func(sqlmock.Sqlmock)
		expectedErr   error
		expectedError bool
	}{
		{
			name: "success",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO tags \(name, color\) VALUES \(\?, \?\)`).
					WithArgs("brand", "#ff0000").
					WillReturnResult(sqlmock.NewResult(5, 1))
			},
		},
		{
			name: "duplicate name",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO tags`).
					WithArgs("brand", "#ff0000").
					WillReturnError(duplicateEntryError())
			},
			expectedError: true,
			expectedErr:   models.ErrConflict,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO tags`).
					WithArgs("brand", "#ff0000").
					WillReturnError(errors.New("database error"))
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := setupTagTestRepository(t)
			defer cleanup()

			tt.setupMock(mock)

			tag := &models.Tag{Name: "brand", Color: "#ff0000"}
			err := repo.Create(context.Background(), tag)

			if tt.expectedError {
				assert.Error(t, err)
				if tt.expectedErr != nil {
					assert.ErrorIs(t, err, tt.expectedErr)
				} else {
					assert.NotErrorIs(t, err, models.ErrConflict)
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, int64(5), tag.ID)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTagRepository_GetByID(t *testing.T) {
	tests := []struct {
		name          string
		setupMock     func(sqlmock.Sqlmock)
		expectedErr   error
		expectedError bool
	}{
		{
			name: "success",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, name, color FROM tags WHERE id = \? LIMIT 1`).
					WithArgs(int64(3)).
					WillReturnRows(sqlmock.NewRows([]string{"id", "name", "color"}).AddRow(3, "brand", "#ff0000"))
			},
		},
		{
			name: "not found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, name, color FROM tags WHERE id = \?`).
					WithArgs(int64(3)).
					WillReturnError(sql.ErrNoRows)
			},
			expectedError: true,
			expectedErr:   models.ErrNotFound,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, name, color FROM tags WHERE id = \?`).
					WithArgs(int64(3)).
					WillReturnError(errors.New("database error"))
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := setupTagTestRepository(t)
			defer cleanup()

			tt.setupMock(mock)

			tag, err := repo.GetByID(context.Background(), 3)

			if tt.expectedError {
				assert.Error(t, err)
				assert.Nil(t, tag)
				if tt.expectedErr != nil {
					assert.ErrorIs(t, err, tt.expectedErr)
				} else {
					assert.NotErrorIs(t, err, models.ErrNotFound)
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, &models.Tag{ID: 3, Name: "brand", Color: "#ff0000"}, tag)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTagRepository_Update(t *testing.T) {
	tests := []struct {
		name          string
		setupMock     func(sqlmock.Sqlmock)
		expectedErr   error
		expectedError bool
	}{
		{
			name: "success",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE tags SET name = \?, color = \? WHERE id = \?`).
					WithArgs("brand", "#00ff00", int64(3)).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "unchanged values still succeed",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE tags`).
					WithArgs("brand", "#00ff00", int64(3)).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
		},
		{
			name: "name taken by another tag",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE tags`).
					WithArgs("brand", "#00ff00", int64(3)).
					WillReturnError(duplicateEntryError())
			},
			expectedError: true,
			expectedErr:   models.ErrConflict,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE tags`).
					WithArgs("brand", "#00ff00", int64(3)).
					WillReturnError(errors.New("database error"))
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := setupTagTestRepository(t)
			defer cleanup()

			tt.setupMock(mock)

			err := repo.Update(context.Background(), &models.Tag{ID: 3, Name: "brand", Color: "#00ff00"})

			if tt.expectedError {
				assert.Error(t, err)
				if tt.expectedErr != nil {
					assert.ErrorIs(t, err, tt.expectedErr)
				}
			} else {
				assert.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTagRepository_Delete(t *testing.T) {
	tests := []struct {
		name          string
		setupMock     func(sqlmock.Sqlmock)
		expectedErr   error
		expectedError bool
	}{
		{
			name: "success",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM tags WHERE id = \?`).
					WithArgs(int64(3)).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "not found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM tags WHERE id = \?`).
					WithArgs(int64(3)).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			expectedError: true,
			expectedErr:   models.ErrNotFound,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM tags`).
					WithArgs(int64(3)).
					WillReturnError(errors.New("database error"))
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := setupTagTestRepository(t)
			defer cleanup()

			tt.setupMock(mock)

			err := repo.Delete(context.Background(), 3)

			if tt.expectedError {
				assert.Error(t, err)
				if tt.expectedErr != nil {
					assert.ErrorIs(t, err, tt.expectedErr)
				}
			} else {
				assert.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
