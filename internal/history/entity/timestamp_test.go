package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_EchoesStoredText(t *testing.T) {
	for _, text := range []string{
		`"2024-01-02T10:00:00.000Z"`,
		`"2024-01-02T10:00:00Z"`,
		`"2024-01-02T12:00:00.5+02:00"`,
		`"not a date"`,
	} {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(text), &ts))
		out, err := json.Marshal(ts)
		require.NoError(t, err)
		assert.Equal(t, text, string(out))
	}
}

func TestTimestamp_ParsesForOrdering(t *testing.T) {
	var a, b Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-01-02T10:00:00.000Z"`), &a))
	require.NoError(t, json.Unmarshal([]byte(`"2024-01-02T11:00:00+02:00"`), &b))
	assert.True(t, a.After(b))
	assert.True(t, a.Equal(NewTimestamp(time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC))))
}

func TestNewTimestamp_MillisecondLayout(t *testing.T) {
	ts := NewTimestamp(time.Date(2026, 10, 15, 8, 0, 0, 123456789, time.FixedZone("CEST", 2*3600)))
	assert.Equal(t, "2026-10-15T06:00:00.123Z", ts.String())
	out, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2026-10-15T06:00:00.123Z"`, string(out))
}
