package sqlserver

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Date is a SQL Server DATE parameter/result value, kept distinct from
// DateTime because ODBC separates SQL_TYPE_DATE from SQL_TYPE_TIMESTAMP —
// an asymmetry MySQL's single Timestamp type does not have, preserved here
// exactly as the original type table draws it.
type Date struct {
	time.Time
}

// NewDate truncates t to a calendar date in its own location.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, t.Location())}
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) { return d.Time, nil }

// Scan implements bind.Scanner.
func (d *Date) Scan(src any) error {
	if src == nil {
		d.Time = time.Time{}
		return nil
	}
	tv, ok := src.(time.Time)
	if !ok {
		return fmt.Errorf("sqlserver: cannot scan %T into Date", src)
	}
	d.Time = tv
	return nil
}

// DateTime is a SQL Server DATETIME2/DATETIME parameter/result value.
type DateTime struct {
	time.Time
}

// NewDateTime wraps t as a DateTime value.
func NewDateTime(t time.Time) DateTime { return DateTime{t} }

// Value implements driver.Valuer.
func (d DateTime) Value() (driver.Value, error) { return d.Time, nil }

// Scan implements bind.Scanner.
func (d *DateTime) Scan(src any) error {
	if src == nil {
		d.Time = time.Time{}
		return nil
	}
	tv, ok := src.(time.Time)
	if !ok {
		return fmt.Errorf("sqlserver: cannot scan %T into DateTime", src)
	}
	d.Time = tv
	return nil
}
