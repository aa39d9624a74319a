package extop

import (
	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// The Encode*Op helpers build the application-tagged protocol ops embedded
// in a multi-update request. They mirror the shapes go-ldap puts on the
// wire for standalone requests.

// EncodeAddOp encodes an add request protocol op.
func EncodeAddOp(dn string, attributes []ldap.Attribute) *ber.Packet {
	op := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(ldap.ApplicationAddRequest), nil, "Add Request")
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, dn, "DN"))
	attrs := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Attributes")
	for _, a := range attributes {
		attrs.AppendChild(encodePartialAttribute(a.Type, a.Vals))
	}
	op.AppendChild(attrs)
	return op
}

// EncodeDeleteOp encodes a delete request protocol op. The op is a bare
// LDAPDN under the application tag.
func EncodeDeleteOp(dn string) *ber.Packet {
	return ber.NewString(ber.ClassApplication, ber.TypePrimitive, ber.Tag(ldap.ApplicationDelRequest), dn, "Del Request")
}

// EncodeModifyOp encodes a modify request protocol op.
func EncodeModifyOp(dn string, changes []ldap.Change) *ber.Packet {
	op := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(ldap.ApplicationModifyRequest), nil, "Modify Request")
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, dn, "DN"))
	seq := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Changes")
	for _, change := range changes {
		c := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Change")
		c.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, int64(change.Operation), "Operation"))
		c.AppendChild(encodePartialAttribute(change.Modification.Type, change.Modification.Vals))
		seq.AppendChild(c)
	}
	op.AppendChild(seq)
	return op
}

// EncodeModifyDNOp encodes a modify DN request protocol op.
func EncodeModifyDNOp(dn, newRDN string, deleteOldRDN bool, newSuperior string) *ber.Packet {
	op := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(ldap.ApplicationModifyDNRequest), nil, "Modify DN Request")
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, dn, "DN"))
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, newRDN, "New RDN"))
	op.AppendChild(ber.NewBoolean(ber.ClassUniversal, ber.TypePrimitive, ber.TagBoolean, deleteOldRDN, "Delete Old RDN"))
	if newSuperior != "" {
		op.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 0, newSuperior, "New Superior"))
	}
	return op
}

func encodePartialAttribute(name string, values []string) *ber.Packet {
	attr := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Attribute")
	attr.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, name, "Type"))
	set := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSet, nil, "Values")
	for _, v := range values {
		set.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, v, "Value"))
	}
	attr.AppendChild(set)
	return attr
}
