package notify

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/southadmin/localvault/internal/logger"
)

type counter map[string]int

func (c counter) Notify(_ Kind, _ string, dedupeKey string) { c[dedupeKey]++ }

func TestDeduperCollapsesWithinWindow(t *testing.T) {
	now := time.Unix(0, 0)
	c := counter{}
	d := NewDeduper(c, time.Second, func() time.Time { return now })

	for i := 0; i < 5; i++ {
		d.Notify(KindError, "boom", "decryption")
	}
	d.Notify(KindError, "other", "network")
	assert.Equal(t, 1, c["decryption"])
	assert.Equal(t, 1, c["network"])

	now = now.Add(999 * time.Millisecond)
	d.Notify(KindError, "boom", "decryption")
	assert.Equal(t, 1, c["decryption"])

	now = now.Add(time.Millisecond)
	d.Notify(KindError, "boom", "decryption")
	assert.Equal(t, 2, c["decryption"])
}

func TestDeduperNeverCollapsesEmptyKey(t *testing.T) {
	c := counter{}
	d := NewDeduper(c, time.Hour, nil)
	d.Notify(KindInfo, "a", "")
	d.Notify(KindInfo, "a", "")
	assert.Equal(t, 2, c[""])
}

func TestDeduperDefaultWindow(t *testing.T) {
	d := NewDeduper(counter{}, 0, nil)
	assert.Equal(t, DefaultWindow, d.window)
}

func TestMultiAndFunc(t *testing.T) {
	var got []string
	f := Func(func(kind Kind, content, _ string) { got = append(got, string(kind)+":"+content) })
	Multi{f, f}.Notify(KindWarning, "x", "k")
	assert.Equal(t, []string{"warning:x", "warning:x"}, got)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	LogNotifier{}.Notify(KindError, "data decryption failed", "decryption")
	LogNotifier{}.Notify(KindWarning, "careful", "w")
	LogNotifier{}.Notify(KindInfo, "fyi", "i")

	out := buf.String()
	assert.Contains(t, out, "[ERROR] data decryption failed (decryption)")
	assert.Contains(t, out, "[WARN] careful (w)")
	assert.Contains(t, out, "[INFO] fyi (i)")
}
