package utilities

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKSUID_UniqueAndParsable(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewKSUID()
		_, err := ksuid.Parse(id)
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestNewSnowflakeIDWithNode(t *testing.T) {
	assert.NotEmpty(t, NewSnowflakeIDWithNode(3))
	// out of range node ids fall back to ksuid
	id := NewSnowflakeIDWithNode(1 << 20)
	_, err := ksuid.Parse(id)
	assert.NoError(t, err)
}

func TestNewSnowflakeID_Distinct(t *testing.T) {
	a, b := NewSnowflakeID(), NewSnowflakeID()
	assert.NotEqual(t, a, b)
}

func TestLevelFromString(t *testing.T) {
	cases := map[string]string{
		"debug":   "debug",
		"warning": "warn",
		"error":   "error",
		"bogus":   "info",
	}
	for in, want := range cases {
		assert.Equal(t, want, levelFromString(in).String(), in)
	}
}

func TestInitWithClock_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC))
	lg, err := InitWithClock(Config{Level: "info", File: path, MaxAge: time.Hour}, clock)
	require.NoError(t, err)
	lg.Info("hello")
	_ = lg.Sync()

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Contains(t, matches, path+".20261015")
}
