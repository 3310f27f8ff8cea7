package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	minioLib "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMinio implements minioAPI for testing without network.
type fakeMinio struct {
	bucketExists    bool
	bucketExistsErr error
	makeBucketErr   error
	madeBucket      string

	putErr  error
	putKey  string
	putSize int64
	putOpts minioLib.PutObjectOptions
	putData []byte

	getRC  io.ReadCloser
	getErr error

	removeErr error

	statErr error
}

func (f *fakeMinio) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, f.bucketExistsErr
}

func (f *fakeMinio) MakeBucket(_ context.Context, name string, _ minioLib.MakeBucketOptions) error {
	f.madeBucket = name
	return f.makeBucketErr
}

func (f *fakeMinio) PutObject(_ context.Context, _ string, key string, r io.Reader, size int64, opts minioLib.PutObjectOptions) (minioLib.UploadInfo, error) {
	f.putKey, f.putSize, f.putOpts = key, size, opts
	f.putData, _ = io.ReadAll(r)
	return minioLib.UploadInfo{Key: key, Size: size}, f.putErr
}

func (f *fakeMinio) GetObject(_ context.Context, _ string, _ string, _ minioLib.GetObjectOptions) (io.ReadCloser, error) {
	return f.getRC, f.getErr
}

func (f *fakeMinio) RemoveObject(_ context.Context, _ string, _ string, _ minioLib.RemoveObjectOptions) error {
	return f.removeErr
}

func (f *fakeMinio) StatObject(_ context.Context, _ string, _ string, _ minioLib.StatObjectOptions) (minioLib.ObjectInfo, error) {
	return minioLib.ObjectInfo{}, f.statErr
}

func TestNewClientWithAPI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		api        *fakeMinio
		wantErr    bool
		wantCreate bool
	}{
		{name: "bucket exists", api: &fakeMinio{bucketExists: true}},
		{name: "bucket created", api: &fakeMinio{}, wantCreate: true},
		{name: "exists check fails", api: &fakeMinio{bucketExistsErr: errors.New("boom")}, wantErr: true},
		{name: "create fails", api: &fakeMinio{makeBucketErr: errors.New("fail")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := NewClientWithAPI(context.Background(), tt.api, "vaults")
			if tt.wantErr {
				assert.Nil(t, c)
				require.Error(t, err)
				assert.Contains(t, err.Error(), "failed to ensure bucket exists")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "vaults", c.bucket)
			if tt.wantCreate {
				assert.Equal(t, "vaults", tt.api.madeBucket)
			}
		})
	}
}

func TestClient_Upload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		api := &fakeMinio{}
		c := &Client{api: api, bucket: "b"}

		err := c.Upload(ctx, "vaults/u/1.blob", []byte("data"), map[string]string{"checksum": "abc"})

		require.NoError(t, err)
		assert.Equal(t, "vaults/u/1.blob", api.putKey)
		assert.Equal(t, int64(4), api.putSize)
		assert.Equal(t, []byte("data"), api.putData)
		assert.Equal(t, blobContentType, api.putOpts.ContentType)
		assert.Equal(t, "abc", api.putOpts.UserMetadata["checksum"])
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		c := &Client{api: &fakeMinio{putErr: errors.New("put-fail")}, bucket: "b"}

		err := c.Upload(ctx, "k", []byte("data"), nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upload object")
	})
}

func TestClient_Download(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		c := &Client{api: &fakeMinio{getRC: io.NopCloser(bytes.NewReader([]byte("abc")))}, bucket: "b"}

		rc, err := c.Download(ctx, "k")
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), data)
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		c := &Client{api: &fakeMinio{getErr: errors.New("get-fail")}, bucket: "b"}

		rc, err := c.Download(ctx, "k")

		assert.Nil(t, rc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get object")
	})
}

func TestClient_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	require.NoError(t, (&Client{api: &fakeMinio{}, bucket: "b"}).Delete(ctx, "k"))

	err := (&Client{api: &fakeMinio{removeErr: errors.New("remove-fail")}, bucket: "b"}).Delete(ctx, "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete object")
}

func TestClient_Exists(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		statErr error
		want    bool
		wantErr bool
	}{
		{name: "exists", want: true},
		{name: "not found", statErr: minioLib.ErrorResponse{Code: "NoSuchKey"}},
		{name: "other error", statErr: errors.New("stat-fail"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := &Client{api: &fakeMinio{statErr: tt.statErr}, bucket: "b"}

			ok, err := c.Exists(context.Background(), "k")

			assert.Equal(t, tt.want, ok)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "failed to stat object")
				return
			}
			assert.NoError(t, err)
		})
	}
}
