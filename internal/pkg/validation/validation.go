package validation

import (
	"regexp"
)

// MaxIdentityLength matches the varchar(128) identity columns.
const MaxIdentityLength = 128

// Identities are account names or hex addresses: letters, digits, '.', '_', ':', '-', '@'.
var identityRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._:@\-]*$`)

// IsValidIdentity reports whether id (already normalized) can be stored and compared as an identity.
func IsValidIdentity(id string) bool {
	return id != "" && len(id) <= MaxIdentityLength && identityRe.MatchString(id)
}
