// Package ldif reads and writes RFC 2849 change records, extended with
// per-record control lines, and provides the reject sink that annotates
// failed records with commented result trailers.
package ldif

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Record is one LDIF change record.
type Record interface {
	// DN is the record's target entry.
	DN() string
	// Controls are the per-record request controls from control: lines.
	Controls() []ldap.Control
	// Lines renders the record back to LDIF, without a trailing blank line.
	Lines() []string
}

type common struct {
	dn       string
	controls []ldap.Control
}

func (c *common) DN() string               { return c.dn }
func (c *common) Controls() []ldap.Control { return c.controls }

func (c *common) headerLines(changeType string) []string {
	lines := []string{encodeLine("dn", []byte(c.dn))}
	for _, ctl := range c.controls {
		lines = append(lines, controlLine(ctl))
	}
	return append(lines, "changetype: "+changeType)
}

// AddRecord creates a new entry.
type AddRecord struct {
	common
	Attributes []ldap.Attribute
}

// NewAddRecord builds an add record.
func NewAddRecord(dn string, attributes []ldap.Attribute, controls []ldap.Control) *AddRecord {
	return &AddRecord{common: common{dn: dn, controls: controls}, Attributes: attributes}
}

// HasAttribute reports whether the entry carries the named attribute,
// compared case-insensitively.
func (r *AddRecord) HasAttribute(name string) bool {
	for _, a := range r.Attributes {
		if strings.EqualFold(a.Type, name) {
			return true
		}
	}
	return false
}

// Lines implements Record.
func (r *AddRecord) Lines() []string {
	lines := r.headerLines("add")
	for _, a := range r.Attributes {
		for _, v := range a.Vals {
			lines = append(lines, encodeLine(a.Type, []byte(v)))
		}
	}
	return lines
}

// DeleteRecord removes an entry.
type DeleteRecord struct {
	common
}

// NewDeleteRecord builds a delete record.
func NewDeleteRecord(dn string, controls []ldap.Control) *DeleteRecord {
	return &DeleteRecord{common: common{dn: dn, controls: controls}}
}

// Lines implements Record.
func (r *DeleteRecord) Lines() []string {
	return r.headerLines("delete")
}

// ModifyRecord alters attributes of an existing entry.
type ModifyRecord struct {
	common
	Changes []ldap.Change
}

// NewModifyRecord builds a modify record.
func NewModifyRecord(dn string, changes []ldap.Change, controls []ldap.Control) *ModifyRecord {
	return &ModifyRecord{common: common{dn: dn, controls: controls}, Changes: changes}
}

// WithDN returns a copy of the record retargeted at another entry,
// preserving modifications and record-level controls.
func (r *ModifyRecord) WithDN(dn string) *ModifyRecord {
	return &ModifyRecord{common: common{dn: dn, controls: r.controls}, Changes: r.Changes}
}

// TargetsAttribute reports whether any modification touches the named
// attribute, compared case-insensitively.
func (r *ModifyRecord) TargetsAttribute(names ...string) bool {
	for _, change := range r.Changes {
		for _, name := range names {
			if strings.EqualFold(change.Modification.Type, name) {
				return true
			}
		}
	}
	return false
}

var modifyOpNames = map[uint]string{
	ldap.AddAttribute:       "add",
	ldap.DeleteAttribute:    "delete",
	ldap.ReplaceAttribute:   "replace",
	ldap.IncrementAttribute: "increment",
}

// Lines implements Record.
func (r *ModifyRecord) Lines() []string {
	lines := r.headerLines("modify")
	for _, change := range r.Changes {
		op, ok := modifyOpNames[change.Operation]
		if !ok {
			op = fmt.Sprintf("unknown-%d", change.Operation)
		}
		lines = append(lines, op+": "+change.Modification.Type)
		for _, v := range change.Modification.Vals {
			lines = append(lines, encodeLine(change.Modification.Type, []byte(v)))
		}
		lines = append(lines, "-")
	}
	return lines
}

// ModifyDNRecord renames or moves an entry.
type ModifyDNRecord struct {
	common
	NewRDN       string
	DeleteOldRDN bool
	NewSuperior  string
}

// NewModifyDNRecord builds a modify DN record. NewSuperior may be empty.
func NewModifyDNRecord(dn, newRDN string, deleteOldRDN bool, newSuperior string, controls []ldap.Control) *ModifyDNRecord {
	return &ModifyDNRecord{
		common:       common{dn: dn, controls: controls},
		NewRDN:       newRDN,
		DeleteOldRDN: deleteOldRDN,
		NewSuperior:  newSuperior,
	}
}

// Lines implements Record.
func (r *ModifyDNRecord) Lines() []string {
	lines := r.headerLines("moddn")
	lines = append(lines, encodeLine("newrdn", []byte(r.NewRDN)))
	if r.DeleteOldRDN {
		lines = append(lines, "deleteoldrdn: 1")
	} else {
		lines = append(lines, "deleteoldrdn: 0")
	}
	if r.NewSuperior != "" {
		lines = append(lines, encodeLine("newsuperior", []byte(r.NewSuperior)))
	}
	return lines
}

// encodeLine renders "name: value", switching to base64 ("name:: b64") when
// the value is not safe to carry verbatim per RFC 2849.
func encodeLine(name string, value []byte) string {
	if needsBase64(value) {
		return name + ":: " + base64.StdEncoding.EncodeToString(value)
	}
	return name + ": " + string(value)
}

func needsBase64(value []byte) bool {
	if len(value) == 0 {
		return false
	}
	switch value[0] {
	case ' ', ':', '<':
		return true
	}
	if value[len(value)-1] == ' ' {
		return true
	}
	for _, b := range value {
		if b == '\r' || b == '\n' || b == 0 || b > 0x7f {
			return true
		}
	}
	return false
}

func controlLine(ctl ldap.Control) string {
	line := "control: " + ctl.GetControlType()
	cs, ok := ctl.(*ldap.ControlString)
	if !ok {
		return line
	}
	if cs.Criticality {
		line += " true"
	} else {
		line += " false"
	}
	if cs.ControlValue != "" {
		if needsBase64([]byte(cs.ControlValue)) {
			line += ":: " + base64.StdEncoding.EncodeToString([]byte(cs.ControlValue))
		} else {
			line += ": " + cs.ControlValue
		}
	}
	return line
}

