// Package cache is a content-addressed, time-bounded store for extraction
// results. Keys are fingerprints of normalized input text, the producing
// provider and its parameters; entries past their TTL read as misses.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultTTL matches the lifetime of AI parse results.
const DefaultTTL = 7 * 24 * time.Hour

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("cache closed")

// Key is a content fingerprint.
type Key string

// NewKey derives a cache key from the normalized text, the identity of the
// provider or parser that produced the value, and the extraction parameters.
// Parameter order does not matter.
func NewKey(text, provider string, params map[string]string) Key {
	h := sha256.New()
	h.Write([]byte("v2"))
	writeField(h, provider)

	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	writeField(h, strconv.Itoa(len(names)))
	for _, k := range names {
		writeField(h, k)
		writeField(h, params[k])
	}

	writeField(h, Normalize(text))
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// writeField length-prefixes s so adjacent fields cannot run together.
func writeField(w io.Writer, s string) {
	var n [binary.MaxVarintLen64]byte
	w.Write(n[:binary.PutUvarint(n[:], uint64(len(s)))])
	io.WriteString(w, s)
}

// Normalize canonicalizes OCR text so that whitespace noise does not change
// the fingerprint: CRLF becomes LF, runs of spaces and tabs collapse to one
// space, lines are trimmed and blank lines dropped.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// Backend stores raw encoded values with a TTL.
type Backend interface {
	// Get returns the value for key. ok is false on a miss or an expired entry.
	Get(key Key) (value []byte, ok bool, err error)
	// Set stores value under key; the last writer wins.
	Set(key Key, value []byte, ttl time.Duration) error
	// Purge drops expired entries and returns how many were removed.
	Purge() (int, error)
	Close() error
}

// Config configures a typed Cache.
type Config struct {
	// TTL applies to Put calls that pass a zero ttl (default: DefaultTTL).
	TTL    time.Duration
	Logger *slog.Logger
}

// Stats reports cache effectiveness since creation.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Cache is a typed view over a Backend. Values are JSON encoded.
// It is safe for concurrent use.
type Cache[T any] struct {
	backend Backend
	ttl     time.Duration
	logger  *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a typed cache over backend.
func New[T any](backend Backend, cfg Config) *Cache[T] {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cache[T]{
		backend: backend,
		ttl:     cfg.TTL,
		logger:  cfg.Logger.With("component", "cache"),
	}
}

// Get returns the cached value for key. A backend or decode failure is
// logged and reported as a miss.
func (c *Cache[T]) Get(key Key) (T, bool) {
	var zero T

	raw, ok, err := c.backend.Get(key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		c.misses.Add(1)
		return zero, false
	}
	if !ok {
		c.misses.Add(1)
		return zero, false
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		c.logger.Warn("cache entry undecodable", "key", key, "error", err)
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return v, true
}

// Put stores v under key for ttl. A zero ttl uses the configured default.
func (c *Cache[T]) Put(key Key, v T, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.backend.Set(key, raw, ttl)
}

// Purge removes expired entries from the backend.
func (c *Cache[T]) Purge() (int, error) {
	return c.backend.Purge()
}

// Stats returns hit/miss counters.
func (c *Cache[T]) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close releases the backend.
func (c *Cache[T]) Close() error {
	return c.backend.Close()
}
