package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampValueRoundTrip(t *testing.T) {
	ts := NewTimestamp(1_700_000_000)
	v, err := ts.Value()
	require.NoError(t, err)
	assert.Equal(t, ts.Time, v)

	var got Timestamp
	require.NoError(t, got.Scan(v))
	assert.True(t, got.Time.Equal(ts.Time))
}

func TestTimestampScanNil(t *testing.T) {
	var ts Timestamp
	require.NoError(t, ts.Scan(nil))
	assert.True(t, ts.Time.IsZero())
}

func TestTimestampScanWrongType(t *testing.T) {
	var ts Timestamp
	assert.Error(t, ts.Scan("not a time"))
}

func TestMediumTextWithinBound(t *testing.T) {
	mt, err := NewMediumText([]byte("hello"))
	require.NoError(t, err)
	v, err := mt.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), v)
}

func TestMediumTextRejectsOverLimit(t *testing.T) {
	big := make([]byte, mediumTextLimit+1)
	_, err := NewMediumText(big)
	assert.Error(t, err)
}

func TestMediumTextScanRoundTrip(t *testing.T) {
	var mt MediumText
	require.NoError(t, mt.Scan([]byte("payload")))
	assert.Equal(t, "payload", string(mt.Content))
}

func TestMediumTextScanNil(t *testing.T) {
	mt := MediumText{Content: []byte("stale")}
	require.NoError(t, mt.Scan(nil))
	assert.Nil(t, mt.Content)
}

func TestMediumTextScanRejectsOverLimit(t *testing.T) {
	var mt MediumText
	big := make([]byte, mediumTextLimit+1)
	assert.Error(t, mt.Scan(big))
}
