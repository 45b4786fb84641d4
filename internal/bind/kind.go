// Package bind implements the parameter binder, result binder and row
// decoder (C2/C3/C4) shared by the mysql and sqlserver packages. It
// operates directly on database/sql/driver values so both packages do
// their own binding/decoding instead of delegating to database/sql's
// high level Scan, mirroring the C original's MYSQL_BIND/SQLBindParameter
// level of abstraction.
package bind

import (
	"database/sql/driver"
	"fmt"
	"math"
	"time"
)

// Kind is the closed type-map enumeration (C1). Any Go value that does not
// map to one of these is rejected rather than silently coerced.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt
	KindUint
	KindFloat
	KindBool
	KindString
	KindBytes
	KindTime
	KindSpecial // a type implementing driver.Valuer/Scanner itself (Timestamp, MediumText, Date, Optional[T], ...)
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindTime:
		return "time"
	case KindSpecial:
		return "special"
	default:
		return "invalid"
	}
}

// Scanner is implemented by types that know how to assign themselves from a
// driver.Value, the decode-direction counterpart of driver.Valuer. This is
// the generalized form of the database/sql NullString/NullInt64 pattern.
type Scanner interface {
	Scan(src any) error
}

// KindOf classifies v for error messages: BindParams uses it to name the
// kind of a parameter it cannot convert. It never needs to be exhaustive
// since ToDriverValue/Scanner handle the actual conversion.
func KindOf(v any) Kind {
	if v == nil {
		return KindInvalid
	}
	if _, ok := v.(driver.Valuer); ok {
		return KindSpecial
	}
	switch v.(type) {
	case int, int8, int16, int32, int64:
		return KindInt
	case uint, uint8, uint16, uint32, uint64:
		return KindUint
	case float32, float64:
		return KindFloat
	case bool:
		return KindBool
	case string:
		return KindString
	case []byte:
		return KindBytes
	case time.Time:
		return KindTime
	default:
		return KindInvalid
	}
}

// ToDriverValue converts a bind argument into a database/sql/driver.Value,
// the Go realization of build_bind_param. Types implementing driver.Valuer
// (model.Optional[T], mysql.Timestamp, mysql.MediumText, sqlserver.Date,
// sqlserver.DateTime) convert themselves; everything else goes through a
// fixed arithmetic/string/time table, the direct port of mysql_type_map.
func ToDriverValue(v any) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	if valuer, ok := v.(driver.Valuer); ok {
		return valuer.Value()
	}
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uintToDriver(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintToDriver(x)
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case bool:
		return x, nil
	case string:
		if err := checkStringBound(len(x)); err != nil {
			return nil, err
		}
		return x, nil
	case []byte:
		return x, nil
	case time.Time:
		return x, nil
	default:
		return nil, fmt.Errorf("bind: unsupported parameter type %T", v)
	}
}

// maxPlainStringBytes is the 64 KiB buffer size spec.md §4.3 allocates for
// string-like parameters/results; a value of exactly that size must be
// declared mediumtext instead (see mysql.MediumText), so the plain-string
// bound is one byte short of it.
const maxPlainStringBytes = 64<<10 - 1

func checkStringBound(n int) error {
	if n > maxPlainStringBytes {
		return fmt.Errorf("bind: string value of %d bytes exceeds the %d byte plain-string bound; use mediumtext for larger values", n, maxPlainStringBytes)
	}
	return nil
}

func uintToDriver(x uint64) (driver.Value, error) {
	if x > math.MaxInt64 {
		return nil, fmt.Errorf("bind: uint64 value %d overflows signed wire representation", x)
	}
	return int64(x), nil
}
