package domain

import (
	"database/sql/driver"
	"errors"
	"strings"
)

// Identity names a party (buyer, seller, inspector, lender, custodian). Values are compared
// after normalization, so "0xAbC" and "0xabc " are the same party.
type Identity string

// NewIdentity normalizes s (trim + lower case).
func NewIdentity(s string) Identity {
	return Identity(strings.ToLower(strings.TrimSpace(s)))
}

func (id Identity) String() string {
	return string(id)
}

func (id Identity) IsZero() bool {
	return id == ""
}

// Scan implements sql.Scanner.
func (id *Identity) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*id = ""
	case []byte:
		*id = Identity(v)
	case string:
		*id = Identity(v)
	default:
		return errors.New("unsupported type for Identity")
	}
	return nil
}

// Value implements driver.Valuer.
func (id Identity) Value() (driver.Value, error) {
	return string(id), nil
}
