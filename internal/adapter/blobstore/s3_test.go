package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3StoreURL(t *testing.T) {
	s, err := NewS3Store(S3Config{
		Endpoint:  "localhost:9000",
		Bucket:    "wimbli",
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/wimbli/profile_pictures/u1/a.jpg", s.URL("/profile_pictures/u1/a.jpg"))

	s, err = NewS3Store(S3Config{
		Endpoint:      "s3.amazonaws.com",
		Bucket:        "wimbli",
		UseSSL:        true,
		PublicBaseURL: "https://cdn.example.com/",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/k", s.URL("k"))
}

func TestMemoryStoreCopiesData(t *testing.T) {
	m := NewMemoryStore("mem://blobs")
	data := []byte("png")

	url, err := m.Upload(context.Background(), "profile_pictures/u1/x", "image/png", data)
	require.NoError(t, err)
	assert.Equal(t, "mem://blobs/profile_pictures/u1/x", url)

	data[0] = 'j'
	obj, ok := m.Object("profile_pictures/u1/x")
	require.True(t, ok)
	assert.Equal(t, "png", string(obj.Data))
	assert.Equal(t, "image/png", obj.ContentType)
}
