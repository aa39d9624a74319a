package engine

import (
	"fmt"
	"io"
	"strings"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"

	"github.com/ldaptools/ldapbatch/internal/controls"
	"github.com/ldaptools/ldapbatch/internal/ldif"
	"github.com/ldaptools/ldapbatch/internal/result"
)

// display writes the formatted result trailer, successes to standard
// output and failures to standard error, and renders any recognized
// response controls for successes.
func (e *Engine) display(res *result.Result, success bool) {
	w := e.out
	if !success {
		w = e.errOut
	}
	for _, line := range res.Format() {
		fmt.Fprintln(w, line)
	}
	if success {
		e.renderResponseControls(w, res)
	}
}

// echo writes the change record itself as LDIF comment lines.
func (e *Engine) echo(rec ldif.Record) {
	for _, line := range rec.Lines() {
		fmt.Fprintf(e.out, "# %s\n", line)
	}
}

func (e *Engine) renderResponseControls(w io.Writer, res *result.Result) {
	if ctrl := res.Control(controls.OIDPreRead); ctrl != nil {
		e.renderReadEntry(w, "before", ctrl)
	}
	if ctrl := res.Control(controls.OIDPostRead); ctrl != nil {
		e.renderReadEntry(w, "after", ctrl)
	}
	if ctrl := res.Control(controls.OIDAuthorizationIdentityResponse); ctrl != nil {
		if cs, ok := ctrl.(*ldap.ControlString); ok {
			fmt.Fprintf(w, "Authorization identity: %s\n", cs.ControlValue)
		}
	}
}

// renderReadEntry prints the entry carried by a pre-read or post-read
// response control. Binary objectSid values are rendered in their string
// form.
func (e *Engine) renderReadEntry(w io.Writer, when string, ctrl ldap.Control) {
	cs, ok := ctrl.(*ldap.ControlString)
	if !ok {
		return
	}
	entry, err := controls.DecodeReadEntry([]byte(cs.ControlValue))
	if err != nil {
		e.log.Warn().Err(err).Str("when", when).Msg("cannot decode read-entry response control")
		return
	}
	fmt.Fprintf(w, "Target entry %s the operation:\n", when)
	fmt.Fprintf(w, "dn: %s\n", entry.DN)
	for _, attr := range entry.Attributes {
		if strings.EqualFold(attr.Name, "objectSid") {
			for _, raw := range attr.ByteValues {
				fmt.Fprintf(w, "%s: %s\n", attr.Name, objectsid.Decode(raw).String())
			}
			continue
		}
		for _, v := range attr.Values {
			fmt.Fprintf(w, "%s: %s\n", attr.Name, v)
		}
	}
}
