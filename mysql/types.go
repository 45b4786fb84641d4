package mysql

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/1261385937/sql-plus-plus/internal/bind"
)

// mediumTextLimit is the 16 MiB bound the original enforces via a fixed
// result buffer (mysql_connection.hpp's mediumtext result binding).
const mediumTextLimit = 16 << 20

// Timestamp is a MySQL DATETIME/TIMESTAMP parameter/result value built
// from a Unix epoch, the Go analogue of mysql_timestamp. Unlike the C
// original's use of localtime() (non-reentrant, flagged in the spec as a
// defect to fix), time.Unix is goroutine-safe, so no lock is needed here.
type Timestamp struct {
	time.Time
}

// NewTimestamp builds a Timestamp from a Unix epoch in the local zone.
func NewTimestamp(epochSeconds int64) Timestamp {
	return Timestamp{time.Unix(epochSeconds, 0)}
}

// Value implements driver.Valuer.
func (t Timestamp) Value() (driver.Value, error) {
	return t.Time, nil
}

// Scan implements bind.Scanner.
func (t *Timestamp) Scan(src any) error {
	if src == nil {
		t.Time = time.Time{}
		return nil
	}
	tv, ok := src.(time.Time)
	if !ok {
		return fmt.Errorf("mysql: cannot scan %T into Timestamp", src)
	}
	t.Time = tv
	return nil
}

// MediumText is a MySQL MEDIUMTEXT/MEDIUMBLOB value bounded at 16 MiB,
// the Go analogue of mysql_mediumtext's fixed result buffer.
type MediumText struct {
	Content []byte
}

// NewMediumText builds a MediumText, rejecting content over the 16 MiB bound.
func NewMediumText(content []byte) (MediumText, error) {
	if len(content) > mediumTextLimit {
		return MediumText{}, fmt.Errorf("mysql: mediumtext content exceeds %d bytes", mediumTextLimit)
	}
	return MediumText{Content: content}, nil
}

// Value implements driver.Valuer.
func (m MediumText) Value() (driver.Value, error) {
	if len(m.Content) > mediumTextLimit {
		return nil, fmt.Errorf("mysql: mediumtext content exceeds %d bytes", mediumTextLimit)
	}
	return m.Content, nil
}

// Scan implements bind.Scanner.
func (m *MediumText) Scan(src any) error {
	if src == nil {
		m.Content = nil
		return nil
	}
	b, err := bind.ConvertBytes(src)
	if err != nil {
		return err
	}
	if len(b) > mediumTextLimit {
		return fmt.Errorf("mysql: mediumtext content exceeds %d bytes", mediumTextLimit)
	}
	m.Content = b
	return nil
}
