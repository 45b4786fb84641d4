package sqlserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDateTruncatesTimeOfDay(t *testing.T) {
	in := time.Date(2026, 3, 15, 13, 45, 30, 0, time.UTC)
	d := NewDate(in)
	assert.Equal(t, 0, d.Time.Hour())
	assert.Equal(t, 0, d.Time.Minute())
	assert.Equal(t, 2026, d.Time.Year())
	assert.Equal(t, time.Month(3), d.Time.Month())
	assert.Equal(t, 15, d.Time.Day())
}

func TestDateValueScanRoundTrip(t *testing.T) {
	d := NewDate(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	v, err := d.Value()
	require.NoError(t, err)

	var got Date
	require.NoError(t, got.Scan(v))
	assert.True(t, got.Time.Equal(d.Time))
}

func TestDateScanNil(t *testing.T) {
	d := NewDate(time.Now())
	require.NoError(t, d.Scan(nil))
	assert.True(t, d.Time.IsZero())
}

func TestDateScanWrongType(t *testing.T) {
	var d Date
	assert.Error(t, d.Scan(42))
}

func TestDateTimeValueScanRoundTrip(t *testing.T) {
	dt := NewDateTime(time.Date(2026, 3, 15, 13, 45, 30, 0, time.UTC))
	v, err := dt.Value()
	require.NoError(t, err)

	var got DateTime
	require.NoError(t, got.Scan(v))
	assert.True(t, got.Time.Equal(dt.Time))
}

func TestDateTimeScanWrongType(t *testing.T) {
	var dt DateTime
	assert.Error(t, dt.Scan("nope"))
}
