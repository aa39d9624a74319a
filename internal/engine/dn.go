package engine

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// foldDN produces a case- and spacing-insensitive key for a DN so entries
// returned twice across a retried search page are recognized even when the
// server varies attribute-type casing. Unparsable DNs fold to a trimmed
// lowercase of the raw string.
func foldDN(dn string) string {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(dn))
	}

	rdns := make([]string, 0, len(parsed.RDNs))
	for _, rdn := range parsed.RDNs {
		attrs := make([]string, 0, len(rdn.Attributes))
		for _, attr := range rdn.Attributes {
			attrs = append(attrs, strings.ToLower(attr.Type)+"="+strings.ToLower(attr.Value))
		}
		rdns = append(rdns, strings.Join(attrs, "+"))
	}
	return strings.Join(rdns, ",")
}
