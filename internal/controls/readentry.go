package controls

import (
	"fmt"
	"strings"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// ReadEntry is the pre-read or post-read request control (RFC 4527),
// requesting a copy of the target entry as it was before or after the
// change. Attributes selects which attributes to return; empty means all
// user attributes.
type ReadEntry struct {
	OID        string
	Attributes []string
}

// NewPreRead returns a pre-read request control. Each argument may itself
// contain several attribute names separated by commas or spaces.
func NewPreRead(attributes ...string) *ReadEntry {
	return &ReadEntry{OID: OIDPreRead, Attributes: splitAttributeList(attributes)}
}

// NewPostRead returns a post-read request control with the same attribute
// list handling as NewPreRead.
func NewPostRead(attributes ...string) *ReadEntry {
	return &ReadEntry{OID: OIDPostRead, Attributes: splitAttributeList(attributes)}
}

func splitAttributeList(args []string) []string {
	var out []string
	for _, arg := range args {
		for _, name := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }) {
			if name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

// GetControlType implements ldap.Control.
func (c *ReadEntry) GetControlType() string {
	return c.OID
}

// Encode implements ldap.Control.
func (c *ReadEntry) Encode() *ber.Packet {
	value := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Attribute Selection")
	for _, name := range c.Attributes {
		value.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, name, "Attribute"))
	}
	return encode(c.OID, true, value)
}

// String implements ldap.Control.
func (c *ReadEntry) String() string {
	return fmt.Sprintf("Control Type: %s (%q) Criticality: true Attributes: %s", Describe(c.OID), c.OID, strings.Join(c.Attributes, ","))
}

// DecodeReadEntry parses the value of a pre-read or post-read response
// control, which carries a SearchResultEntry-shaped payload: the entry DN
// followed by a sequence of partial attributes.
func DecodeReadEntry(value []byte) (*ldap.Entry, error) {
	packet, err := ber.DecodePacketErr(value)
	if err != nil {
		return nil, fmt.Errorf("read-entry control value: %w", err)
	}
	if len(packet.Children) < 2 {
		return nil, fmt.Errorf("read-entry control value: expected DN and attribute list, got %d elements", len(packet.Children))
	}

	dn, ok := packet.Children[0].Value.(string)
	if !ok {
		dn = packet.Children[0].Data.String()
	}

	entry := &ldap.Entry{DN: dn}
	for _, attr := range packet.Children[1].Children {
		if len(attr.Children) < 2 {
			return nil, fmt.Errorf("read-entry control value: malformed partial attribute")
		}
		name, ok := attr.Children[0].Value.(string)
		if !ok {
			name = attr.Children[0].Data.String()
		}
		ea := &ldap.EntryAttribute{Name: name}
		for _, v := range attr.Children[1].Children {
			ea.ByteValues = append(ea.ByteValues, v.Data.Bytes())
			if s, ok := v.Value.(string); ok {
				ea.Values = append(ea.Values, s)
			} else {
				ea.Values = append(ea.Values, v.Data.String())
			}
		}
		entry.Attributes = append(entry.Attributes, ea)
	}
	return entry, nil
}
