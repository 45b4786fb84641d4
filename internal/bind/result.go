package bind

import (
	"database/sql/driver"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"time"

	"github.com/1261385937/sql-plus-plus/errs"
	"github.com/1261385937/sql-plus-plus/internal/record"
)

var timeType = reflect.TypeOf(time.Time{})

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

var scannerType = reflect.TypeOf((*Scanner)(nil)).Elem()

// isRecordType reports whether t should be decoded field-by-field across
// several result columns, rather than as one scalar column. time.Time and
// any type that scans itself (mysql.Timestamp, mysql.MediumText,
// sqlserver.Date/DateTime, model.Optional[T]) are structs but behave as
// scalars here, the same distinction database/sql draws for its Null*
// family versus an ordinary struct destination.
func isRecordType(t reflect.Type) bool {
	rt := derefType(t)
	if rt == timeType {
		return false
	}
	if reflect.PtrTo(rt).Implements(scannerType) {
		return false
	}
	return record.IsRecord(rt)
}

// expectedColumns returns how many result columns a destination of type t
// requires: one per exported field for a struct (the Go collapse of the
// spec's tuple-like and reflected-record shapes, see DESIGN.md), or one for
// a scalar.
func expectedColumns(t reflect.Type) int {
	rt := derefType(t)
	if isRecordType(t) {
		return record.FieldCount(rt)
	}
	return 1
}

// FetchAll executes the already-bound statement's rows and decodes every
// row into R, the Go realization of after_execute/assign_result. rows is
// closed before returning.
func FetchAll[R any](rows driver.Rows) ([]R, error) {
	defer rows.Close()

	var zero R
	t := reflect.TypeOf(zero)
	rt := derefType(t)
	isRecord := t != nil && isRecordType(t)

	cols := rows.Columns()
	expected := expectedColumns(t)
	if len(cols) != expected {
		return nil, errs.NewArityError(fmt.Sprintf(
			"query returns %d column(s), destination %s declares %d", len(cols), rt, expected,
		))
	}

	var out []R
	buf := make([]driver.Value, len(cols))
	for {
		err := rows.Next(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.NewExecutionError("fetching row", err)
		}

		var r R
		rv := reflect.ValueOf(&r).Elem()
		if isRecord {
			fields := record.Fields(rv)
			for i, f := range fields {
				if err := setField(f, buf[i]); err != nil {
					return nil, err
				}
			}
		} else {
			if err := setField(rv, buf[0]); err != nil {
				return nil, err
			}
		}
		out = append(out, r)

		// buf is reused by rows.Next; never retain []byte across iterations.
		for i := range buf {
			buf[i] = nil
		}
	}
	return out, nil
}

func setField(field reflect.Value, v driver.Value) error {
	if field.CanAddr() {
		if s, ok := field.Addr().Interface().(Scanner); ok {
			if err := s.Scan(v); err != nil {
				return errs.NewDeserializationError("scanning column into "+field.Type().String(), err)
			}
			return nil
		}
	}
	if v == nil {
		return errs.NewDeserializationError(fmt.Sprintf(
			"unexpected NULL for non-optional field of type %s", field.Type()), nil)
	}

	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		iv, err := toInt64(v)
		if err != nil {
			return errs.NewDeserializationError("converting to "+field.Type().String(), err)
		}
		field.SetInt(iv)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		iv, err := toInt64(v)
		if err != nil {
			return errs.NewDeserializationError("converting to "+field.Type().String(), err)
		}
		field.SetUint(uint64(iv))
	case reflect.Float32, reflect.Float64:
		fv, err := toFloat64(v)
		if err != nil {
			return errs.NewDeserializationError("converting to "+field.Type().String(), err)
		}
		field.SetFloat(fv)
	case reflect.Bool:
		bv, err := toBool(v)
		if err != nil {
			return errs.NewDeserializationError("converting to bool", err)
		}
		field.SetBool(bv)
	case reflect.String:
		sv, err := toString(v)
		if err != nil {
			return errs.NewDeserializationError("converting to string", err)
		}
		if err := checkStringBound(len(sv)); err != nil {
			return errs.NewDeserializationError("decoding string column", err)
		}
		field.SetString(sv)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.Uint8 {
			return errs.NewDeserializationError("unsupported slice field type "+field.Type().String(), nil)
		}
		bv, err := toBytes(v)
		if err != nil {
			return errs.NewDeserializationError("converting to []byte", err)
		}
		field.SetBytes(bv)
	case reflect.Struct:
		if field.Type() == timeType {
			tv, ok := v.(time.Time)
			if !ok {
				return errs.NewDeserializationError(fmt.Sprintf("expected time.Time, got %T", v), nil)
			}
			field.Set(reflect.ValueOf(tv))
			return nil
		}
		return errs.NewDeserializationError("unsupported struct field type "+field.Type().String(), nil)
	default:
		return errs.NewDeserializationError("unsupported field type "+field.Type().String(), nil)
	}
	return nil
}

// ConvertInt64, ConvertFloat64, ConvertString and ConvertBytes expose the
// decoder's driver.Value coercion rules for use by model.Optional[T]'s Scan.
func ConvertInt64(v driver.Value) (int64, error)     { return toInt64(v) }
func ConvertFloat64(v driver.Value) (float64, error) { return toFloat64(v) }
func ConvertString(v driver.Value) (string, error)   { return toString(v) }
func ConvertBytes(v driver.Value) ([]byte, error)    { return toBytes(v) }

func toInt64(v driver.Value) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", v)
	}
}

func toFloat64(v driver.Value) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

func toBool(v driver.Value) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to bool", v)
	}
}

func toString(v driver.Value) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		return x.Format(time.RFC3339), nil
	default:
		return "", fmt.Errorf("cannot convert %T to string", v)
	}
}

func toBytes(v driver.Value) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		return nil, fmt.Errorf("cannot convert %T to []byte", v)
	}
}
