package extop

import (
	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// NewStartAdministrativeSessionRequest builds the request that moves the
// connection's operations onto the server's dedicated administrative thread
// pool. Issued after connecting and before the bind so that the bind itself
// is covered.
//
//	StartAdminSessionValue ::= SEQUENCE {
//	     clientName             [0] OCTET STRING OPTIONAL,
//	     useDedicatedThreadPool [1] BOOLEAN DEFAULT FALSE }
func NewStartAdministrativeSessionRequest(clientName string, useDedicatedThreadPool bool) *ldap.ExtendedRequest {
	value := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Start Administrative Session Value")
	if clientName != "" {
		value.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 0, clientName, "Client Name"))
	}
	if useDedicatedThreadPool {
		value.AppendChild(ber.NewBoolean(ber.ClassContext, ber.TypePrimitive, 1, true, "Use Dedicated Thread Pool"))
	}
	return ldap.NewExtendedRequest(OIDStartAdministrativeSession, value)
}

// NewEndAdministrativeSessionRequest ends a previously started
// administrative session. It carries no value.
func NewEndAdministrativeSessionRequest() *ldap.ExtendedRequest {
	return ldap.NewExtendedRequest(OIDEndAdministrativeSession, nil)
}
