// Package local layers encryption and per-entry expiry over a durable
// key/value backing store.
//
// Every entry is serialized together with its expiry instant and passed
// through a codec before it is persisted, so the raw stored text reveals
// neither. Reads decrypt, check expiry, and purge anything expired or
// unreadable from the backing store before reporting it absent.
package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/southadmin/localvault/internal/cache"
	"github.com/southadmin/localvault/internal/codec"
	"github.com/southadmin/localvault/internal/logger"
	"github.com/southadmin/localvault/internal/notify"
)

// DefaultTTL applies to Set when the caller does not choose an expiry.
const DefaultTTL = 2 * 24 * time.Hour

const (
	decodeNotice    = "data decryption failed"
	decodeDedupeKey = "decryption"
)

var (
	ErrEmptyKey   = errors.New("local: empty key")
	ErrInvalidTTL = errors.New("local: negative ttl")
)

// DecodeError reports a persisted entry that could not be read back: the
// codec rejected it, the envelope was malformed, or the payload did not fit
// the caller's type. It matches codec.ErrDecode with errors.Is.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("local: decode %q: %v", e.Key, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }
func (e *DecodeError) Is(target error) bool {
	return target == codec.ErrDecode
}

// entry is the envelope sealed by the codec. Expire is unix milliseconds;
// nil means the entry never expires.
type entry struct {
	Value  json.RawMessage `json:"value"`
	Expire *int64          `json:"expire"`
}

func (e entry) live(now time.Time) bool {
	return e.Expire == nil || *e.Expire >= now.UnixMilli()
}

type Options struct {
	// DefaultTTL is used by Set. Zero selects the package DefaultTTL.
	DefaultTTL time.Duration
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
	// Notifier receives decode failures, collapsed per NotifyWindow.
	// Defaults to the process log.
	Notifier     notify.Notifier
	NotifyWindow time.Duration
}

// Store is the expiring, encrypted view over a cache.KV.
// It is safe for concurrent use; a Get that evicts never races a Set on the
// same Store. Other processes writing the same backing store are not
// coordinated with: the last write wins.
type Store struct {
	kv         cache.KV
	codec      codec.Codec
	defaultTTL time.Duration
	now        func() time.Time
	notifier   notify.Notifier

	mu sync.Mutex
}

func New(kv cache.KV, c codec.Codec, opts Options) *Store {
	s := &Store{
		kv:         kv,
		codec:      c,
		defaultTTL: opts.DefaultTTL,
		now:        opts.Now,
	}
	if s.defaultTTL <= 0 {
		s.defaultTTL = DefaultTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	n := opts.Notifier
	if n == nil {
		n = notify.LogNotifier{}
	}
	s.notifier = notify.NewDeduper(n, opts.NotifyWindow, s.now)
	return s
}

// Set stores value under key with the store's default TTL, replacing any
// existing entry.
func (s *Store) Set(key string, value any) error {
	return s.SetTTL(key, value, s.defaultTTL)
}

// SetTTL stores value under key, expiring ttl from now. A zero ttl yields an
// entry that is readable only within the same millisecond.
func (s *Store) SetTTL(key string, value any, ttl time.Duration) error {
	if ttl < 0 {
		return ErrInvalidTTL
	}
	expire := s.now().Add(ttl).UnixMilli()
	return s.put(key, value, &expire)
}

// SetForever stores value under key with no expiry.
func (s *Store) SetForever(key string, value any) error {
	return s.put(key, value, nil)
}

func (s *Store) put(key string, value any, expire *int64) error {
	if key == "" {
		return ErrEmptyKey
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("local: marshal %q: %w", key, err)
	}
	plain, err := json.Marshal(entry{Value: raw, Expire: expire})
	if err != nil {
		return fmt.Errorf("local: marshal %q: %w", key, err)
	}
	blob, err := s.codec.Encode(plain)
	if err != nil {
		return fmt.Errorf("local: encode %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Set(key, blob)
}

// Get reads key into a fresh T. The boolean is false when the key is absent,
// expired, or unreadable; the latter two are purged from the backing store.
// Only backing-store failures are returned as errors.
func Get[T any](s *Store, key string) (T, bool, error) {
	var v T
	ok, err := s.Load(key, &v)
	if !ok {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

// Load is Get for a caller-supplied destination, which must be a non-nil
// pointer.
func (s *Store) Load(key string, dst any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := s.kv.Get(key)
	if errors.Is(err, cache.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	e, err := s.decode(key, blob)
	if err == nil {
		if !e.live(s.now()) {
			logger.Debugf("evicting expired entry %q", key)
			return false, s.kv.Remove(key)
		}
		err = json.Unmarshal(e.Value, dst)
		if err == nil {
			return true, nil
		}
		var bad *json.InvalidUnmarshalError
		if errors.As(err, &bad) {
			return false, fmt.Errorf("local: load %q: %w", key, err)
		}
		err = &DecodeError{Key: key, Err: err}
	}

	logger.Warnf("evicting unreadable entry: %v", err)
	s.notifier.Notify(notify.KindError, decodeNotice, decodeDedupeKey)
	return false, s.kv.Remove(key)
}

// decode opens a persisted blob. Any failure is a *DecodeError.
func (s *Store) decode(key, blob string) (entry, error) {
	plain, err := s.codec.Decode(blob)
	if err != nil {
		return entry{}, &DecodeError{Key: key, Err: err}
	}
	var e entry
	if err := json.Unmarshal(plain, &e); err != nil {
		return entry{}, &DecodeError{Key: key, Err: err}
	}
	if len(e.Value) == 0 {
		return entry{}, &DecodeError{Key: key, Err: errors.New("missing value")}
	}
	return e, nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Remove(key)
}

// Clear wipes the entire backing store, including keys this Store never
// wrote. It is the logout wipe; scope it by giving the Store its own bucket
// or database if other data shares the backing store.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger.Infof("clearing local store")
	return s.kv.Clear()
}
