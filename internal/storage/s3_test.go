package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/damstudio/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockObjectAPI is an in-memory bucket
type mockObjectAPI struct {
	objects      map[string][]byte
	contentTypes map[string]string
	metadata     map[string]map[string]string
	bucketExists bool
	created      bool
	putErr       error
	deleteErr    error
	createErr    error
}

func newMockObjectAPI() *mockObjectAPI {
	return &mockObjectAPI{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
		metadata:     make(map[string]map[string]string),
		bucketExists: true,
	}
}

func (m *mockObjectAPI) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(params.Key)
	m.objects[key] = data
	m.contentTypes[key] = aws.ToString(params.ContentType)
	m.metadata[key] = params.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (m *mockObjectAPI) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, fmt.Errorf("operation error S3: GetObject: %w", &types.NoSuchKey{})
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (m *mockObjectAPI) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	delete(m.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockObjectAPI) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if !m.bucketExists {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (m *mockObjectAPI) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = true
	m.bucketExists = true
	return &s3.CreateBucketOutput{}, nil
}

func TestNewS3Storage_Bucket(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(*mockObjectAPI)
		expectCreated bool
		expectedError bool
	}{
		{
			name:  "bucket exists",
			setup: func(m *mockObjectAPI) {},
		},
		{
			name:          "bucket created",
			setup:         func(m *mockObjectAPI) { m.bucketExists = false },
			expectCreated: true,
		},
		{
			name: "bucket created concurrently",
			setup: func(m *mockObjectAPI) {
				m.bucketExists = false
				m.createErr = &types.BucketAlreadyOwnedByYou{}
			},
		},
		{
			name: "create fails",
			setup: func(m *mockObjectAPI) {
				m.bucketExists = false
				m.createErr = errors.New("access denied")
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newMockObjectAPI()
			tt.setup(api)

			s, err := newS3Storage(context.Background(), api, S3Config{Bucket: "assets"})

			if tt.expectedError {
				assert.Error(t, err)
				assert.Nil(t, s)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectCreated, api.created)
			}
		})
	}
}

func TestS3Storage_PutOpenDelete(t *testing.T) {
	api := newMockObjectAPI()
	s, err := newS3Storage(context.Background(), api, S3Config{Bucket: "assets"})
	require.NoError(t, err)
	ctx := context.Background()

	size, err := s.Put(ctx, "assets/1/v1/logo.png", strings.NewReader("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, int64(9), size)
	assert.Equal(t, "image/png", api.contentTypes["assets/1/v1/logo.png"])
	assert.Len(t, api.metadata["assets/1/v1/logo.png"]["checksum-sha256"], 64)

	rc, err := s.Open(ctx, "assets/1/v1/logo.png")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, s.Delete(ctx, "assets/1/v1/logo.png"))
	_, err = s.Open(ctx, "assets/1/v1/logo.png")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestS3Storage_Errors(t *testing.T) {
	api := newMockObjectAPI()
	s, err := newS3Storage(context.Background(), api, S3Config{Bucket: "assets"})
	require.NoError(t, err)

	api.putErr = errors.New("slow down")
	_, err = s.Put(context.Background(), "k", strings.NewReader("x"), "")
	assert.Error(t, err)

	api.deleteErr = &types.NoSuchKey{}
	assert.NoError(t, s.Delete(context.Background(), "k"))

	api.deleteErr = errors.New("access denied")
	assert.Error(t, s.Delete(context.Background(), "k"))
}

func TestS3Storage_URL(t *testing.T) {
	api := newMockObjectAPI()

	s, err := newS3Storage(context.Background(), api, S3Config{Bucket: "assets", BaseURL: "https://cdn.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/assets/1/v1/a.png", s.URL("assets/1/v1/a.png"))

	s, err = newS3Storage(context.Background(), api, S3Config{Bucket: "media", Endpoint: "http://minio:9000"})
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/media/assets/1/v1/a.png", s.URL("assets/1/v1/a.png"))
}
