package bind

import (
	"database/sql/driver"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type person struct {
	ID   int64
	Name string
}

// fakeScalar stands in for mysql.Timestamp/model.Optional[T]: a struct
// that scans itself and must be treated as one result column, not as a
// multi-field record.
type fakeScalar struct{ v int64 }

func (f *fakeScalar) Scan(src any) error {
	f.v, _ = src.(int64)
	return nil
}

type fakeValuer struct{ v int64 }

func (f fakeValuer) Value() (driver.Value, error) { return f.v, nil }

// fakeOptionalInt stands in for model.Optional[int64] without importing the
// model package, which itself imports bind (that import would cycle).
type fakeOptionalInt struct {
	Value int64
	Valid bool
}

func (o *fakeOptionalInt) Scan(src any) error {
	if src == nil {
		o.Value, o.Valid = 0, false
		return nil
	}
	iv, err := toInt64(src)
	if err != nil {
		return err
	}
	o.Value, o.Valid = iv, true
	return nil
}

// fakeRows is a minimal driver.Rows backed by a fixed column list and a
// queue of pre-built rows, enough to drive FetchAll end to end without a
// real driver connection.
type fakeRows struct {
	cols []string
	rows [][]driver.Value
	pos  int
}

func (f *fakeRows) Columns() []string { return f.cols }
func (f *fakeRows) Close() error      { return nil }

func (f *fakeRows) Next(dest []driver.Value) error {
	if f.pos >= len(f.rows) {
		return io.EOF
	}
	copy(dest, f.rows[f.pos])
	f.pos++
	return nil
}

var _ driver.Rows = (*fakeRows)(nil)

func TestToDriverValue(t *testing.T) {
	v, err := ToDriverValue(int32(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = ToDriverValue("hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", v)

	_, err = ToDriverValue(uint64(1) << 63)
	assert.Error(t, err)
}

func TestBindParamsArityMismatch(t *testing.T) {
	_, err := BindParams(2, []any{1})
	require.Error(t, err)
}

func TestKindOfClassifiesCommonTypes(t *testing.T) {
	assert.Equal(t, KindInt, KindOf(int64(1)))
	assert.Equal(t, KindUint, KindOf(uint(1)))
	assert.Equal(t, KindFloat, KindOf(1.5))
	assert.Equal(t, KindBool, KindOf(true))
	assert.Equal(t, KindString, KindOf("x"))
	assert.Equal(t, KindBytes, KindOf([]byte("x")))
	assert.Equal(t, KindTime, KindOf(time.Time{}))
	assert.Equal(t, KindInvalid, KindOf(nil))
	assert.Equal(t, KindSpecial, KindOf(fakeValuer{v: 1}))
}

func TestBindParamsErrorNamesOffendingKind(t *testing.T) {
	_, err := BindParams(1, []any{struct{}{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kind invalid")
}

func TestBindParamsOK(t *testing.T) {
	values, err := BindParams(2, []any{int64(1), "x"})
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, int64(1), values[0])
	assert.Equal(t, "x", values[1])
}

func TestExpectedColumns(t *testing.T) {
	assert.Equal(t, 2, expectedColumns(reflect.TypeOf(person{})))
	assert.Equal(t, 1, expectedColumns(reflect.TypeOf(int64(0))))
}

func TestExpectedColumnsTreatsSelfScanningStructsAsScalar(t *testing.T) {
	assert.Equal(t, 1, expectedColumns(reflect.TypeOf(fakeScalar{})))
	assert.Equal(t, 1, expectedColumns(reflect.TypeOf(time.Time{})))
	assert.False(t, isRecordType(reflect.TypeOf(fakeScalar{})))
	assert.False(t, isRecordType(reflect.TypeOf(time.Time{})))
	assert.True(t, isRecordType(reflect.TypeOf(person{})))
}

func TestFetchAllScalarRoundTrip(t *testing.T) {
	rows := &fakeRows{
		cols: []string{"id"},
		rows: [][]driver.Value{{int64(7)}, {int64(9)}},
	}
	got, err := FetchAll[int64](rows)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 9}, got)
}

func TestFetchAllStructRoundTrip(t *testing.T) {
	rows := &fakeRows{
		cols: []string{"id", "name"},
		rows: [][]driver.Value{{int64(1), "ada"}, {int64(2), "grace"}},
	}
	got, err := FetchAll[person](rows)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, person{ID: 1, Name: "ada"}, got[0])
	assert.Equal(t, person{ID: 2, Name: "grace"}, got[1])
}

func TestFetchAllNullOptionalLeavesInvalid(t *testing.T) {
	rows := &fakeRows{
		cols: []string{"v"},
		rows: [][]driver.Value{{nil}, {int64(42)}},
	}
	got, err := FetchAll[fakeOptionalInt](rows)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.False(t, got[0].Valid)
	assert.Equal(t, int64(0), got[0].Value)
	assert.True(t, got[1].Valid)
	assert.Equal(t, int64(42), got[1].Value)
}

func TestFetchAllArityMismatch(t *testing.T) {
	rows := &fakeRows{
		cols: []string{"id", "name", "extra"},
		rows: [][]driver.Value{{int64(1), "ada", "x"}},
	}
	_, err := FetchAll[person](rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares 2")
}

func TestToDriverValueRejectsOversizedString(t *testing.T) {
	oversized := strings.Repeat("x", maxPlainStringBytes+1)
	_, err := ToDriverValue(oversized)
	require.Error(t, err)

	ok := strings.Repeat("x", maxPlainStringBytes)
	v, err := ToDriverValue(ok)
	require.NoError(t, err)
	assert.Equal(t, ok, v)
}

func TestSetFieldRejectsOversizedStringColumn(t *testing.T) {
	rows := &fakeRows{
		cols: []string{"v"},
		rows: [][]driver.Value{{strings.Repeat("x", maxPlainStringBytes+1)}},
	}
	_, err := FetchAll[string](rows)
	require.Error(t, err)
}
