package store

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// decimalArg matches a NUMERIC argument by value rather than by its string form.
type decimalArg struct {
	want decimal.Decimal
}

func dec(s string) decimalArg {
	return decimalArg{want: decimal.RequireFromString(s)}
}

func (a decimalArg) Match(v driver.Value) bool {
	d, err := decimal.NewFromString(fmt.Sprint(v))
	return err == nil && d.Equal(a.want)
}
