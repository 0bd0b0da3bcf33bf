// Package cache stores extraction results by content-addressed key.
//
// Objects are laid out as `_res/<first two hex chars>/<id>` for the JSON result and
// `_res/<first two hex chars>/<id>.<ext>` for an optional screenshot. Reads fail closed:
// missing, unreadable or malformed entries are reported as a miss. Writes are
// last-write-wins and never serialized across callers.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapper/internal/hash/sha1"
	"github.com/JakeFAU/scrapper/internal/metrics"
	"github.com/JakeFAU/scrapper/internal/storage"
)

const rootPrefix = "_res"

var validID = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Store is the Cache Store over a blob backend.
type Store struct {
	blobs         storage.BlobStore
	hasher        *sha1.Hasher
	screenshotExt string
	logger        *zap.Logger
}

// New returns a Store that keeps screenshots with the given file extension (jpeg or png).
func New(blobs storage.BlobStore, screenshotExt string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		blobs:         blobs,
		hasher:        sha1.New(),
		screenshotExt: screenshotExt,
		logger:        logger,
	}
}

// Key returns the digest of a request path plus its query parameters sorted by name.
func (s *Store) Key(path string, query url.Values) string {
	return s.hasher.Hash([]byte(Normalize(path, query)))
}

// Normalize renders path and query in a canonical form.
func Normalize(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}

// ValidID reports whether id has the shape of a cache key.
func ValidID(id string) bool {
	return validID.MatchString(id)
}

// Get returns the stored JSON for id. The boolean is false on any miss.
func (s *Store) Get(ctx context.Context, id string) ([]byte, bool) {
	if !ValidID(id) {
		return nil, false
	}
	data, err := s.blobs.GetObject(ctx, jsonPath(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			metrics.ObserveCacheLookup("miss")
		} else {
			metrics.ObserveCacheLookup("error")
			s.logger.Warn("cache read failed", zap.String("id", id), zap.Error(err))
		}
		return nil, false
	}
	if !json.Valid(data) {
		metrics.ObserveCacheLookup("error")
		s.logger.Warn("cache entry is not valid JSON", zap.String("id", id), zap.Int("bytes", len(data)))
		return nil, false
	}
	metrics.ObserveCacheLookup("hit")
	return data, true
}

// GetScreenshot returns the stored screenshot for id.
func (s *Store) GetScreenshot(ctx context.Context, id string) ([]byte, bool) {
	if !ValidID(id) {
		return nil, false
	}
	data, err := s.blobs.GetObject(ctx, s.screenshotPath(id))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("screenshot read failed", zap.String("id", id), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}

// Put writes the JSON body and, when non-empty, the screenshot for id.
// The screenshot is written first so a visible JSON entry always has its image.
func (s *Store) Put(ctx context.Context, id string, body []byte, screenshot []byte) error {
	if !ValidID(id) {
		return fmt.Errorf("invalid cache id %q", id)
	}
	if len(screenshot) > 0 {
		if _, err := s.blobs.PutObject(ctx, s.screenshotPath(id), s.ContentType(), bytes.NewReader(screenshot)); err != nil {
			metrics.ObserveCacheWrite("error")
			return fmt.Errorf("write screenshot: %w", err)
		}
	}
	if _, err := s.blobs.PutObject(ctx, jsonPath(id), "application/json", bytes.NewReader(body)); err != nil {
		metrics.ObserveCacheWrite("error")
		return fmt.Errorf("write result: %w", err)
	}
	metrics.ObserveCacheWrite("ok")
	return nil
}

// ContentType is the media type of stored screenshots.
func (s *Store) ContentType() string {
	return "image/" + s.screenshotExt
}

func jsonPath(id string) string {
	return rootPrefix + "/" + id[:2] + "/" + id
}

func (s *Store) screenshotPath(id string) string {
	return jsonPath(id) + "." + s.screenshotExt
}
