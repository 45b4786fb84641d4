package bind

import (
	"database/sql/driver"
	"fmt"

	"github.com/1261385937/sql-plus-plus/errs"
)

// BindParams validates arity against the prepared statement's declared
// input count and converts args into driver values, the Go realization of
// build_bind_param plus the param-count check in before_execute. It never
// lets a driver Exec/Query run with a mismatched argument count.
func BindParams(numInput int, args []any) ([]driver.Value, error) {
	if numInput >= 0 && numInput != len(args) {
		return nil, errs.NewArityError(
			"parameter count does not match placeholder count",
		)
	}
	values := make([]driver.Value, len(args))
	for i, a := range args {
		dv, err := ToDriverValue(a)
		if err != nil {
			return nil, errs.NewExecutionError(
				fmt.Sprintf("binding parameter %d (kind %v)", i, KindOf(a)), err)
		}
		values[i] = dv
	}
	return values, nil
}
