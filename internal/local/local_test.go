package local

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/southadmin/localvault/internal/cache"
	"github.com/southadmin/localvault/internal/codec"
	"github.com/southadmin/localvault/internal/logger"
	"github.com/southadmin/localvault/internal/notify"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type notice struct {
	kind      notify.Kind
	content   string
	dedupeKey string
}

type recorder struct {
	mu      sync.Mutex
	notices []notice
}

func (r *recorder) Notify(kind notify.Kind, content, dedupeKey string) {
	r.mu.Lock()
	r.notices = append(r.notices, notice{kind, content, dedupeKey})
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

type fixture struct {
	kv    *cache.MemoryStore
	clock *fakeClock
	notes *recorder
	store *Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := codec.New(bytes.Repeat([]byte{1}, codec.KeySize))
	require.NoError(t, err)
	f := &fixture{
		kv:    cache.NewMemoryStore(),
		clock: &fakeClock{t: time.UnixMilli(1_700_000_000_000)},
		notes: &recorder{},
	}
	f.store = New(f.kv, c, Options{Now: f.clock.Now, Notifier: f.notes})
	return f
}

type profile struct {
	ID       int      `json:"id"`
	Username string   `json:"username"`
	Perms    []string `json:"perms"`
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	want := profile{ID: 7, Username: "admin", Perms: []string{"user:read"}}
	require.NoError(t, f.store.SetTTL("profile", want, 10*time.Second))

	got, ok, err := Get[profile](f.store, "profile")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestLastSetWins(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set("k", "first"))
	require.NoError(t, f.store.Set("k", "second"))

	got, ok, err := Get[string](f.store, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", got)
	assert.Equal(t, 1, f.kv.Len())
}

func TestNeverExpires(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetForever("k", 42))

	f.clock.Advance(100 * 365 * 24 * time.Hour)
	got, ok, err := Get[int](f.store, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, got)
}

func TestExpiredEntryIsEvicted(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetTTL("k", "v", time.Second))

	f.clock.Advance(1000 * time.Millisecond)
	_, ok, err := Get[string](f.store, "k")
	require.NoError(t, err)
	assert.True(t, ok, "still live at exactly the expiry instant")

	f.clock.Advance(1 * time.Millisecond)
	_, ok, err = Get[string](f.store, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.kv.Get("k")
	assert.ErrorIs(t, err, cache.ErrNotFound)
	assert.Zero(t, f.notes.count(), "expiry is silent")
}

func TestDefaultTTL(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set("k", "v"))

	f.clock.Advance(DefaultTTL)
	_, ok, _ := Get[string](f.store, "k")
	assert.True(t, ok)

	f.clock.Advance(time.Millisecond)
	_, ok, _ = Get[string](f.store, "k")
	assert.False(t, ok)
}

func TestCustomDefaultTTL(t *testing.T) {
	f := newFixture(t)
	c, err := codec.FromSecret("s")
	require.NoError(t, err)
	s := New(f.kv, c, Options{Now: f.clock.Now, DefaultTTL: time.Minute})
	require.NoError(t, s.Set("k", "v"))

	f.clock.Advance(time.Minute + time.Millisecond)
	_, ok, err := Get[string](s, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetValidation(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.store.Set("", "v"), ErrEmptyKey)
	assert.ErrorIs(t, f.store.SetTTL("k", "v", -time.Second), ErrInvalidTTL)
	assert.Error(t, f.store.Set("k", func() {}))
	assert.Zero(t, f.kv.Len())
}

func TestMissingKeyHasNoSideEffect(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.kv.Set("other", "raw"))

	got, ok, err := Get[string](f.store, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, got)
	assert.Equal(t, 1, f.kv.Len())
	assert.Zero(t, f.notes.count())
}

func TestRemoveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set("keep", "v"))

	require.NoError(t, f.store.Remove("never-set"))
	assert.Equal(t, 1, f.kv.Len())

	require.NoError(t, f.store.Remove("keep"))
	require.NoError(t, f.store.Remove("keep"))
	assert.Zero(t, f.kv.Len())
}

func TestClearWipesEverything(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set("a", 1))
	require.NoError(t, f.store.SetForever("b", 2))
	require.NoError(t, f.kv.Set("foreign", "not ours"))

	require.NoError(t, f.store.Clear())
	for _, k := range []string{"a", "b"} {
		_, ok, err := Get[int](f.store, k)
		require.NoError(t, err)
		assert.False(t, ok, k)
	}
	assert.Zero(t, f.kv.Len())
}

func TestAtRestIsOpaque(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetTTL("token", "abc123", time.Hour))

	raw, err := f.kv.Get("token")
	require.NoError(t, err)
	for _, leak := range []string{"abc123", "value", "expire"} {
		assert.NotContains(t, raw, leak)
	}
}

func TestTamperedEntry(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.store.Set("k", "v"))
		raw, err := f.kv.Get("k")
		require.NoError(t, err)
		require.NoError(t, f.kv.Set("k", raw+"AAAA"))

		_, ok, err := Get[string](f.store, "k")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = f.kv.Get("k")
		assert.ErrorIs(t, err, cache.ErrNotFound)
	}

	require.Equal(t, 1, f.notes.count())
	assert.Equal(t, notice{notify.KindError, decodeNotice, decodeDedupeKey}, f.notes.notices[0])
}

func TestTamperedEntryNotifiesAgainAfterWindow(t *testing.T) {
	f := newFixture(t)
	tamper := func() {
		require.NoError(t, f.kv.Set("k", "garbage"))
		_, ok, err := Get[string](f.store, "k")
		require.NoError(t, err)
		require.False(t, ok)
	}
	tamper()
	tamper()
	f.clock.Advance(notify.DefaultWindow)
	tamper()
	assert.Equal(t, 2, f.notes.count())
}

func TestShapeMismatchIsTreatedAsCorrupt(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set("k", "not a number"))

	_, ok, err := Get[int](f.store, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.kv.Get("k")
	assert.ErrorIs(t, err, cache.ErrNotFound)
	assert.Equal(t, 1, f.notes.count())
}

func TestForeignCodecEntry(t *testing.T) {
	f := newFixture(t)
	other, err := codec.FromSecret("someone else")
	require.NoError(t, err)
	require.NoError(t, New(f.kv, other, Options{Now: f.clock.Now}).Set("k", "v"))

	_, ok, err := Get[string](f.store, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, f.notes.count())
}

func TestLoadRejectsBadDestination(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set("k", "v"))

	var s string
	_, err := f.store.Load("k", s)
	assert.Error(t, err)

	// the entry survives a caller mistake
	got, ok, err := Get[string](f.store, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", got)
	assert.Zero(t, f.notes.count())
}

// stubCodec is a transparent codec double; decode fails for blobs listed in bad.
type stubCodec struct{ bad map[string]bool }

func (c stubCodec) Encode(plain []byte) (string, error) { return string(plain), nil }

func (c stubCodec) Decode(text string) ([]byte, error) {
	if c.bad[text] {
		return nil, codec.ErrDecode
	}
	return []byte(text), nil
}

func TestEnvelopeWithoutValueIsCorrupt(t *testing.T) {
	f := newFixture(t)
	s := New(f.kv, stubCodec{}, Options{Now: f.clock.Now, Notifier: f.notes})
	require.NoError(t, f.kv.Set("k", `{"expire":null}`))

	_, ok, err := Get[string](s, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, f.notes.count())
}

func TestEnvelopeLayout(t *testing.T) {
	f := newFixture(t)
	s := New(f.kv, stubCodec{}, Options{Now: f.clock.Now})

	require.NoError(t, s.SetTTL("a", "v", 2*time.Second))
	raw, err := f.kv.Get("a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"v","expire":1700000002000}`, raw)

	require.NoError(t, s.SetForever("b", map[string]int{"n": 1}))
	raw, err = f.kv.Get("b")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":{"n":1},"expire":null}`, raw)
}

func TestDecodeErrorMatchesErrDecode(t *testing.T) {
	f := newFixture(t)
	s := New(f.kv, stubCodec{bad: map[string]bool{"blob": true}}, Options{})
	_, err := s.decode("k", "blob")

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "k", de.Key)
	assert.ErrorIs(t, err, codec.ErrDecode)

	_, err = s.decode("k", "{")
	assert.ErrorIs(t, err, codec.ErrDecode)
}

type failingKV struct {
	cache.KV
	err error
}

func (f failingKV) Get(string) (string, error) { return "", f.err }
func (f failingKV) Set(string, string) error   { return f.err }
func (f failingKV) Remove(string) error        { return f.err }
func (f failingKV) Clear() error               { return f.err }

func TestBackingStoreErrorsPropagate(t *testing.T) {
	boom := errors.New("quota exceeded")
	s := New(failingKV{err: boom}, stubCodec{}, Options{})

	assert.ErrorIs(t, s.Set("k", "v"), boom)
	_, _, err := Get[string](s, "k")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Remove("k"), boom)
	assert.ErrorIs(t, s.Clear(), boom)
}

func TestConcurrentAccess(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = f.store.SetTTL("shared", "v", time.Minute)
		}()
		go func() {
			defer wg.Done()
			_, _, _ = Get[string](f.store, "shared")
		}()
	}
	wg.Wait()

	got, ok, err := Get[string](f.store, "shared")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", got)
	assert.Zero(t, f.notes.count())
}
