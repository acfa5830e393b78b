package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rigado/rfcomm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "rfcomm.json"))
	c, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.NoError(t, f.Clear())
}

func TestStoreLoad(t *testing.T) {
	name := filepath.Join(t.TempDir(), "rfcomm.json")
	f := NewFile(name)

	c := Default()
	c.Credits = 3
	c.IdleTimeout = Duration(500 * time.Millisecond)
	c.Servers = []Server{{Channel: 1, Security: rfcomm.SecurityL2, MTU: 200}}
	require.NoError(t, f.Store(c))

	raw, err := ioutil.ReadFile(name)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"500ms"`)

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, c, got)

	require.NoError(t, f.Clear())
	got, err = f.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
}

func TestLoadPartial(t *testing.T) {
	name := filepath.Join(t.TempDir(), "rfcomm.json")
	require.NoError(t, ioutil.WriteFile(name, []byte(`{"credits": 4, "discTimeout": "1s"}`), 0644))

	c, err := NewFile(name).Load()
	require.NoError(t, err)
	assert.Equal(t, 4, c.Credits)
	assert.Equal(t, Duration(time.Second), c.DiscTimeout)
	assert.Equal(t, Duration(rfcomm.DefaultConnTimeout), c.ConnTimeout)
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"syntax":   `{"credits": `,
		"duration": `{"idleTimeout": 5}`,
		"channel":  `{"servers": [{"channel": 31}]}`,
	} {
		p := filepath.Join(dir, name)
		require.NoError(t, ioutil.WriteFile(p, []byte(body), 0644))
		_, err := NewFile(p).Load()
		assert.Error(t, err, name)
	}

	p := filepath.Join(dir, "channel")
	_, err := NewFile(p).Load()
	assert.Equal(t, rfcomm.ErrInvalidChannel, errors.Cause(err))
}

type recorder struct {
	credits, queue   int
	conn, disc, idle time.Duration
}

func (r *recorder) SetLogger(rfcomm.Logger) error            { return nil }
func (r *recorder) SetClock(clock.Clock) error               { return nil }
func (r *recorder) SetSecurity(rfcomm.SecurityChecker) error { return nil }
func (r *recorder) SetMetrics(prometheus.Registerer) error   { return nil }
func (r *recorder) SetCredits(n int) error                   { r.credits = n; return nil }
func (r *recorder) SetSendQueueSize(n int) error             { r.queue = n; return nil }

func (r *recorder) SetTimeouts(conn, disc, idle time.Duration) error {
	r.conn, r.disc, r.idle = conn, disc, idle
	return nil
}

func TestOptions(t *testing.T) {
	assert.Empty(t, Config{}.Options())

	c := Config{Credits: 5, IdleTimeout: Duration(time.Second)}
	opts := c.Options()
	require.Len(t, opts, 2)

	r := &recorder{}
	for _, o := range opts {
		require.NoError(t, o(r))
	}
	assert.Equal(t, 5, r.credits)
	assert.Equal(t, 0, r.queue)
	assert.Equal(t, time.Second, r.idle)
	assert.Zero(t, r.conn)
}
