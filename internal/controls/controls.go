package controls

import (
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"
)

// encode builds the Control envelope: controlType, optional criticality,
// and an optional OCTET STRING wrapping the BER-encoded value.
func encode(oid string, criticality bool, value *ber.Packet) *ber.Packet {
	packet := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Control")
	packet.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, oid, "Control Type ("+Describe(oid)+")"))
	if criticality {
		packet.AppendChild(ber.NewBoolean(ber.ClassUniversal, ber.TypePrimitive, ber.TagBoolean, criticality, "Criticality"))
	}
	if value != nil {
		wrapped := ber.Encode(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, nil, "Control Value")
		wrapped.AppendChild(value)
		packet.AppendChild(wrapped)
	}
	return packet
}

// Flag is a request control whose entire meaning is its presence: it has an
// OID and a criticality but no value.
type Flag struct {
	OID         string
	Criticality bool
}

// GetControlType implements ldap.Control.
func (c *Flag) GetControlType() string {
	return c.OID
}

// Encode implements ldap.Control.
func (c *Flag) Encode() *ber.Packet {
	return encode(c.OID, c.Criticality, nil)
}

// String implements ldap.Control.
func (c *Flag) String() string {
	return fmt.Sprintf("Control Type: %s (%q) Criticality: %t", Describe(c.OID), c.OID, c.Criticality)
}

// NewNoOp requests that the server evaluate the operation without applying
// it. Always critical; a server that does not understand it must reject the
// request rather than silently apply the change.
func NewNoOp() *Flag {
	return &Flag{OID: OIDNoOp, Criticality: true}
}

// NewPermissiveModify relaxes modify semantics so that adding an existing
// value or deleting a missing one is not an error.
func NewPermissiveModify() *Flag {
	return &Flag{OID: OIDPermissiveModify}
}

// NewSubtreeDelete allows a delete to remove the entry together with all of
// its subordinates.
func NewSubtreeDelete() *Flag {
	return &Flag{OID: OIDSubtreeDelete, Criticality: true}
}

// NewHardDelete forces a delete to bypass any soft-delete policy.
func NewHardDelete() *Flag {
	return &Flag{OID: OIDHardDelete, Criticality: true}
}

// NewSoftDelete turns a delete into a soft delete, hiding the entry rather
// than removing it.
func NewSoftDelete() *Flag {
	return &Flag{OID: OIDSoftDelete, Criticality: true}
}

// NewUndelete marks an add as the resurrection of a soft-deleted entry.
func NewUndelete() *Flag {
	return &Flag{OID: OIDUndelete, Criticality: true}
}

// NewReplicationRepair applies the change only to the local replica, without
// replicating it.
func NewReplicationRepair() *Flag {
	return &Flag{OID: OIDReplicationRepair, Criticality: true}
}

// NewIgnoreNoUserModification lets an add supply values for attributes
// normally managed exclusively by the server.
func NewIgnoreNoUserModification() *Flag {
	return &Flag{OID: OIDIgnoreNoUserModification, Criticality: true}
}

// NewNameWithEntryUUID asks the server to replace the add record's RDN with
// one based on the entryUUID it assigns.
func NewNameWithEntryUUID() *Flag {
	return &Flag{OID: OIDNameWithEntryUUID, Criticality: true}
}

// NewPasswordPolicy requests password-policy warnings and errors on the
// response.
func NewPasswordPolicy() *Flag {
	return &Flag{OID: OIDPasswordPolicy}
}

// NewRetirePassword retires the current password when a password attribute
// is replaced, leaving it briefly usable alongside the new one.
func NewRetirePassword() *Flag {
	return &Flag{OID: OIDRetirePassword, Criticality: true}
}

// NewPurgePassword removes any retired password as part of a password
// change.
func NewPurgePassword() *Flag {
	return &Flag{OID: OIDPurgePassword, Criticality: true}
}

// NewSuppressReferentialIntegrity prevents referential-integrity processing
// for a delete or modify DN.
func NewSuppressReferentialIntegrity() *Flag {
	return &Flag{OID: OIDSuppressReferentialIntegrityUpdates, Criticality: true}
}

// NewGetUserResourceLimits asks the server to return the resource limits in
// effect for the authenticated user on the bind response.
func NewGetUserResourceLimits() *Flag {
	return &Flag{OID: OIDGetUserResourceLimits}
}

// NewAuthorizationIdentity asks for the authorization identity on the bind
// response.
func NewAuthorizationIdentity() *Flag {
	return &Flag{OID: OIDAuthorizationIdentityRequest}
}

// NewPasswordValidationDetails requests per-requirement validation detail
// for a password being set.
func NewPasswordValidationDetails() *Flag {
	return &Flag{OID: OIDPasswordValidationDetails}
}
