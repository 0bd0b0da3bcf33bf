package cache

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/scrapper/internal/storage"
	"github.com/JakeFAU/scrapper/internal/storage/memory"
)

func TestKeyIgnoresParameterOrder(t *testing.T) {
	t.Parallel()

	s := New(memory.NewBlobStore(), "jpeg", nil)
	a, err := url.ParseQuery("url=https://example.com&cache=1&screenshot=true")
	require.NoError(t, err)
	b, err := url.ParseQuery("screenshot=true&url=https://example.com&cache=1")
	require.NoError(t, err)

	assert.Equal(t, s.Key("/api/article", a), s.Key("/api/article", b))
	assert.NotEqual(t, s.Key("/api/article", a), s.Key("/api/links", a))
	assert.True(t, ValidID(s.Key("/api/page", nil)))
	assert.Equal(t, "/api/page", Normalize("/api/page", url.Values{}))
}

func TestPutAndGetLayout(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	s := New(blobs, "png", nil)
	ctx := context.Background()
	id := s.Key("/api/article", url.Values{"url": {"https://example.com"}})
	body := []byte(`{"id":"` + id + `","title":"x"}`)

	require.NoError(t, s.Put(ctx, id, body, []byte{0x89, 'P', 'N', 'G'}))

	raw, err := blobs.GetObject(ctx, "_res/"+id[:2]+"/"+id)
	require.NoError(t, err)
	assert.Equal(t, body, raw)
	img, err := blobs.GetObject(ctx, "_res/"+id[:2]+"/"+id+".png")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, img)

	got, ok := s.Get(ctx, id)
	require.True(t, ok)
	assert.Equal(t, body, got)

	shot, ok := s.GetScreenshot(ctx, id)
	require.True(t, ok)
	assert.Equal(t, img, shot)
	assert.Equal(t, "image/png", s.ContentType())
}

func TestPutWithoutScreenshot(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	s := New(blobs, "jpeg", nil)
	id := s.Key("/api/links", nil)
	require.NoError(t, s.Put(context.Background(), id, []byte(`{}`), nil))
	assert.Equal(t, 1, blobs.Len())

	_, ok := s.GetScreenshot(context.Background(), id)
	assert.False(t, ok)
}

func TestPutIsIdempotent(t *testing.T) {
	t.Parallel()

	s := New(memory.NewBlobStore(), "jpeg", nil)
	id := s.Key("/api/page", nil)
	require.NoError(t, s.Put(context.Background(), id, []byte(`{"a":1}`), nil))
	require.NoError(t, s.Put(context.Background(), id, []byte(`{"a":1}`), nil))
	got, ok := s.Get(context.Background(), id)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(got))
}

func TestGetFailsClosed(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	blobs := memory.NewBlobStore()
	s := New(blobs, "jpeg", zap.New(core))
	ctx := context.Background()
	id := s.Key("/api/article", nil)

	_, ok := s.Get(ctx, id)
	assert.False(t, ok, "absent entry is a miss")
	assert.Equal(t, 0, logs.Len(), "a plain miss is not logged")

	_, err := blobs.PutObject(ctx, "_res/"+id[:2]+"/"+id, "application/json", bytes.NewReader([]byte(`{"trunc`)))
	require.NoError(t, err)
	_, ok = s.Get(ctx, id)
	assert.False(t, ok, "partial entry is a miss")
	assert.Equal(t, 1, logs.FilterMessage("cache entry is not valid JSON").Len())

	_, ok = s.Get(ctx, "../../etc/passwd")
	assert.False(t, ok, "malformed ids never reach the backend")
}

func TestGetBackendErrorIsMiss(t *testing.T) {
	t.Parallel()

	blobs := &storage.MockBlobStore{}
	blobs.On("GetObject", mock.Anything, mock.Anything).Return(nil, errors.New("disk on fire"))
	s := New(blobs, "jpeg", nil)

	_, ok := s.Get(context.Background(), s.Key("/api/page", nil))
	assert.False(t, ok)
	blobs.AssertExpectations(t)
}

func TestPutPropagatesBackendError(t *testing.T) {
	t.Parallel()

	blobs := &storage.MockBlobStore{}
	blobs.On("PutObject", mock.Anything, mock.Anything, "application/json", mock.Anything).
		Return("", errors.New("read-only filesystem"))
	s := New(blobs, "jpeg", nil)

	err := s.Put(context.Background(), s.Key("/api/page", nil), []byte(`{}`), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only filesystem")

	require.Error(t, s.Put(context.Background(), "nope", []byte(`{}`), nil))
}
