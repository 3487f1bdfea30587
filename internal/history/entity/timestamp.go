package entity

import (
	"encoding/json"
	"time"
)

// TimestampLayout is the millisecond UTC form new records are written with.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp is a record date that keeps the exact text it was stored with.
// Decoding then encoding a Timestamp yields the same bytes, whatever ISO-8601
// variant the stored value used.
type Timestamp struct {
	t   time.Time
	raw string
}

// NewTimestamp truncates t to milliseconds and renders it in TimestampLayout.
func NewTimestamp(t time.Time) Timestamp {
	t = t.UTC().Truncate(time.Millisecond)
	return Timestamp{t: t, raw: t.Format(TimestampLayout)}
}

// Time is the parsed instant; zero when the stored text is not RFC 3339.
func (ts Timestamp) Time() time.Time { return ts.t }

func (ts Timestamp) String() string { return ts.raw }

func (ts Timestamp) Equal(o Timestamp) bool { return ts.t.Equal(o.t) }

func (ts Timestamp) After(o Timestamp) bool { return ts.t.After(o.t) }

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.raw == "" && !ts.t.IsZero() {
		return json.Marshal(ts.t.UTC().Format(TimestampLayout))
	}
	return json.Marshal(ts.raw)
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	ts.raw = s
	ts.t = time.Time{}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		ts.t = t
	}
	return nil
}
