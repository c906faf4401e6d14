package millitime

import (
	"encoding/json"
	"strconv"
	"time"
)

// Timestamps on the tracking API are integer milliseconds since the unix
// epoch. This type interchanges time.Time with that representation.
type Time time.Time

func New(t time.Time) Time {
	return Time(t.Truncate(time.Millisecond))
}

// Now, truncated to millisecond resolution.
func Now() Time {
	return New(time.Now())
}

// FromMilli converts milliseconds since the unix epoch.
func FromMilli(ms int64) Time {
	return Time(time.UnixMilli(ms))
}

func (t Time) Time() time.Time {
	return time.Time(t)
}

func (t Time) Milli() int64 {
	return time.Time(t).UnixMilli()
}

func (t Time) Equal(other Time) bool {
	return t.Time().Equal(other.Time())
}

// get string expression, for logs. The wire format is Milli().
func (t Time) String() string {
	return time.Time(t).Format(time.RFC3339Nano)
}

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(t.Milli(), 10)), nil
}

func (t *Time) UnmarshalJSON(b []byte) error {
	ms := new(int64)
	if err := json.Unmarshal(b, ms); err != nil {
		return err
	}
	*t = FromMilli(*ms)
	return nil
}
