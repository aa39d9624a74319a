package controls

import (
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// Assertion is the LDAP assertion request control (RFC 4528): the operation
// is performed only if the target entry matches the filter.
type Assertion struct {
	Filter string

	compiled *ber.Packet
}

// NewAssertion compiles the filter and returns the control. The control is
// always critical.
func NewAssertion(filter string) (*Assertion, error) {
	compiled, err := ldap.CompileFilter(filter)
	if err != nil {
		return nil, fmt.Errorf("compiling assertion filter %q: %w", filter, err)
	}
	return &Assertion{Filter: filter, compiled: compiled}, nil
}

// GetControlType implements ldap.Control.
func (c *Assertion) GetControlType() string {
	return OIDAssertion
}

// Encode implements ldap.Control.
func (c *Assertion) Encode() *ber.Packet {
	return encode(OIDAssertion, true, c.compiled)
}

// String implements ldap.Control.
func (c *Assertion) String() string {
	return fmt.Sprintf("Control Type: %s (%q) Criticality: true Filter: %s", Describe(OIDAssertion), OIDAssertion, c.Filter)
}

// TransactionSpecification binds a request to an open transaction
// (RFC 5805). The value is the raw transaction identifier.
type TransactionSpecification struct {
	TxnID []byte
}

// NewTransactionSpecification returns the control for the given transaction
// identifier.
func NewTransactionSpecification(txnID []byte) *TransactionSpecification {
	return &TransactionSpecification{TxnID: txnID}
}

// GetControlType implements ldap.Control.
func (c *TransactionSpecification) GetControlType() string {
	return OIDTransactionSpecification
}

// Encode implements ldap.Control.
func (c *TransactionSpecification) Encode() *ber.Packet {
	packet := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Control")
	packet.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, OIDTransactionSpecification, "Control Type ("+Describe(OIDTransactionSpecification)+")"))
	packet.AppendChild(ber.NewBoolean(ber.ClassUniversal, ber.TypePrimitive, ber.TagBoolean, true, "Criticality"))
	packet.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, string(c.TxnID), "Control Value"))
	return packet
}

// String implements ldap.Control.
func (c *TransactionSpecification) String() string {
	return fmt.Sprintf("Control Type: %s (%q) Criticality: true", Describe(OIDTransactionSpecification), OIDTransactionSpecification)
}

// ProxiedAuthorizationV1 requests that the operation be performed under the
// authority of the user identified by DN (draft-weltman-ldapv3-proxy-05).
type ProxiedAuthorizationV1 struct {
	AuthorizationDN string
}

// NewProxiedAuthorizationV1 returns the control for the given authorization
// DN.
func NewProxiedAuthorizationV1(dn string) *ProxiedAuthorizationV1 {
	return &ProxiedAuthorizationV1{AuthorizationDN: dn}
}

// GetControlType implements ldap.Control.
func (c *ProxiedAuthorizationV1) GetControlType() string {
	return OIDProxiedAuthorizationV1
}

// Encode implements ldap.Control.
func (c *ProxiedAuthorizationV1) Encode() *ber.Packet {
	value := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Proxied Authorization v1 Value")
	value.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, c.AuthorizationDN, "Authorization DN"))
	return encode(OIDProxiedAuthorizationV1, true, value)
}

// String implements ldap.Control.
func (c *ProxiedAuthorizationV1) String() string {
	return fmt.Sprintf("Control Type: %s (%q) Criticality: true Authorization DN: %s", Describe(OIDProxiedAuthorizationV1), OIDProxiedAuthorizationV1, c.AuthorizationDN)
}

// ProxiedAuthorizationV2 requests that the operation be performed under the
// authority of the given authorization identity (RFC 4370). The value is
// the raw authzId, not wrapped in a SEQUENCE.
type ProxiedAuthorizationV2 struct {
	AuthorizationID string
}

// NewProxiedAuthorizationV2 returns the control for an authzId of the form
// "dn:<dn>" or "u:<username>".
func NewProxiedAuthorizationV2(authzID string) *ProxiedAuthorizationV2 {
	return &ProxiedAuthorizationV2{AuthorizationID: authzID}
}

// GetControlType implements ldap.Control.
func (c *ProxiedAuthorizationV2) GetControlType() string {
	return OIDProxiedAuthorizationV2
}

// Encode implements ldap.Control.
func (c *ProxiedAuthorizationV2) Encode() *ber.Packet {
	packet := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Control")
	packet.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, OIDProxiedAuthorizationV2, "Control Type ("+Describe(OIDProxiedAuthorizationV2)+")"))
	packet.AppendChild(ber.NewBoolean(ber.ClassUniversal, ber.TypePrimitive, ber.TagBoolean, true, "Criticality"))
	packet.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, c.AuthorizationID, "Authorization ID"))
	return packet
}

// String implements ldap.Control.
func (c *ProxiedAuthorizationV2) String() string {
	return fmt.Sprintf("Control Type: %s (%q) Criticality: true Authorization ID: %s", Describe(OIDProxiedAuthorizationV2), OIDProxiedAuthorizationV2, c.AuthorizationID)
}
