package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "reports", Prefix: "/goszakup/"})
	require.NoError(t, err)
	assert.Equal(t, "goszakup/goszakup_1.json", store.objectName("goszakup_1.json"))

	store, err = New(client, Config{Bucket: "reports"})
	require.NoError(t, err)
	assert.Equal(t, "goszakup_1.json", store.objectName("goszakup_1.json"))
}

func TestPutRejectsInvalidName(t *testing.T) {
	t.Parallel()

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "reports"})
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "../x.json", []byte("{}"))
	require.Error(t, err)
}
