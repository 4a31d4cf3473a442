package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidIdentity(t *testing.T) {
	for _, id := range []string{"seller", "0xabc123", "escrow.custody", "alice@bank", "did:key:z6mk"} {
		assert.True(t, IsValidIdentity(id), id)
	}
	for _, id := range []string{"", "-lead", "with space", "UPPER", "semi;colon", strings.Repeat("a", MaxIdentityLength+1)} {
		assert.False(t, IsValidIdentity(id), id)
	}
	assert.True(t, IsValidIdentity(strings.Repeat("a", MaxIdentityLength)))
}
