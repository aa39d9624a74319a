package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFoldDN(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		same bool
	}{
		{"type case", "CN=John,DC=example,DC=com", "cn=John,dc=example,dc=com", true},
		{"value case", "cn=John,dc=example,dc=com", "cn=john,dc=example,dc=com", true},
		{"rdn spacing", "cn=John, dc=example, dc=com", "cn=John,dc=example,dc=com", true},
		{"different entries", "cn=John,dc=example,dc=com", "cn=Jane,dc=example,dc=com", false},
		{"multi-valued rdn", "cn=John+sn=Doe,dc=x", "CN=john+SN=doe,dc=x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.same {
				assert.Equal(t, foldDN(tt.a), foldDN(tt.b))
			} else {
				assert.NotEqual(t, foldDN(tt.a), foldDN(tt.b))
			}
		})
	}
}

func TestFoldDNUnparsable(t *testing.T) {
	assert.Equal(t, "not a dn", foldDN("  Not A DN "))
}
