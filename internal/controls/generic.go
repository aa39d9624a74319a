package controls

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Parse interprets the generic control argument syntax
// "oid[:criticality[:value|::base64value]]" and returns a control carrying
// the raw value. Criticality must be "true" or "false"; a value introduced
// by a double colon is base64-decoded.
func Parse(s string) (ldap.Control, error) {
	oid, rest, hasRest := strings.Cut(s, ":")
	if !validOID(oid) {
		return nil, fmt.Errorf("invalid control specification %q: %q is not a numeric OID", s, oid)
	}
	if !hasRest {
		return ldap.NewControlString(oid, false, ""), nil
	}

	critStr, value, hasValue := strings.Cut(rest, ":")
	var criticality bool
	switch strings.ToLower(critStr) {
	case "true", "t", "yes", "on", "1":
		criticality = true
	case "false", "f", "no", "off", "0":
		criticality = false
	default:
		return nil, fmt.Errorf("invalid control specification %q: criticality must be true or false, got %q", s, critStr)
	}
	if !hasValue {
		return ldap.NewControlString(oid, criticality, ""), nil
	}

	if b64, ok := strings.CutPrefix(value, ":"); ok {
		decoded, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("invalid control specification %q: bad base64 value: %w", s, err)
		}
		value = string(decoded)
	}
	return ldap.NewControlString(oid, criticality, value), nil
}

func validOID(oid string) bool {
	if oid == "" {
		return false
	}
	digits := false
	for i, r := range oid {
		switch {
		case r >= '0' && r <= '9':
			digits = true
		case r == '.':
			if i == 0 || oid[i-1] == '.' {
				return false
			}
		default:
			return false
		}
	}
	return digits && oid[len(oid)-1] != '.'
}
