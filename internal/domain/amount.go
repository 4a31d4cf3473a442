package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// ErrAmountOverflow is returned when an addition would exceed 2^256-1.
var ErrAmountOverflow = errors.New("amount overflow")

// ErrAmountUnderflow is returned when a subtraction would go below zero.
var ErrAmountUnderflow = errors.New("amount underflow")

// Amount is an unsigned 256-bit quantity of the settlement currency (smallest unit).
// It is stored in the DB and sent over JSON as a base-10 string so no precision is lost.
type Amount struct {
	v uint256.Int
}

// NewAmount returns an Amount holding n.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// ParseAmount parses a base-10 string. Leading/trailing spaces are ignored.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, errors.New("empty amount")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount{v: *v}, nil
}

// MustAmount is ParseAmount for constants in tests and fixtures.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) String() string {
	return a.v.Dec()
}

func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// Cmp returns -1, 0 or +1 comparing a to b.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, ErrAmountOverflow
	}
	return out, nil
}

func (a Amount) Sub(b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, ErrAmountUnderflow
	}
	return out, nil
}

// MarshalJSON sends the amount as a decimal string ("10000000000000000000").
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a decimal string or a non-negative JSON integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if errNum := json.Unmarshal(data, &n); errNum != nil {
			return err
		}
		s = n.String()
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Scan implements sql.Scanner for reading from DB (varchar column).
func (a *Amount) Scan(value interface{}) error {
	if value == nil {
		*a = Amount{}
		return nil
	}
	var s string
	switch v := value.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	case int64:
		if v < 0 {
			return errors.New("negative amount in DB")
		}
		*a = NewAmount(uint64(v))
		return nil
	default:
		return errors.New("unsupported type for Amount")
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer for writing to DB.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// SumAmounts adds all values, failing on overflow.
func SumAmounts(values ...Amount) (Amount, error) {
	var total Amount
	for _, v := range values {
		next, err := total.Add(v)
		if err != nil {
			return Amount{}, err
		}
		total = next
	}
	return total, nil
}
