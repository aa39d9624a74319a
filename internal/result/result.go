// Package result models LDAP operation results: the result-code taxonomy,
// the immutable result value decoded from (or re-encoded to) the wire, and
// the comment trailers written for rejected changes.
package result

import (
	"errors"
	"fmt"
	"strings"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// NoMessageID is used when a result is synthesized locally and is not bound
// to any protocol message.
const NoMessageID = -1

// ErrDecode is wrapped by every error returned from Decode.
var ErrDecode = errors.New("malformed LDAP result")

// Result is an immutable description of a server response. Construct it via
// New, FromError, or Decode and do not mutate it afterwards; it may then be
// shared freely.
type Result struct {
	MessageID         int
	Code              ResultCode
	MatchedDN         string
	DiagnosticMessage string
	ReferralURLs      []string
	Controls          []ldap.Control

	opClass ber.Class
	opTag   ber.Tag
}

// New builds a result from its parts. Referral and control slices are
// copied; nil slices normalize to empty.
func New(code ResultCode, matchedDN, diagnosticMessage string, referralURLs []string, controls []ldap.Control) *Result {
	r := &Result{
		MessageID:         NoMessageID,
		Code:              code,
		MatchedDN:         matchedDN,
		DiagnosticMessage: diagnosticMessage,
		ReferralURLs:      make([]string, len(referralURLs)),
		Controls:          make([]ldap.Control, len(controls)),
		opClass:           ber.ClassUniversal,
		opTag:             ber.TagSequence,
	}
	copy(r.ReferralURLs, referralURLs)
	copy(r.Controls, controls)
	return r
}

// NewSuccess is a convenience constructor for a bare success result.
func NewSuccess() *Result {
	return New(Success, "", "", nil, nil)
}

// FromError converts an error returned by the go-ldap library into a
// result. Client-library error codes collapse onto the closest client-side
// result code; a nil error yields a success result.
func FromError(err error) *Result {
	if err == nil {
		return NewSuccess()
	}

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		code := ResultCode(ldapErr.ResultCode)
		switch ldapErr.ResultCode {
		case ldap.ErrorNetwork:
			code = ServerDown
		case ldap.ErrorFilterCompile, ldap.ErrorFilterDecompile:
			code = FilterError
		default:
			if ldapErr.ResultCode >= 200 {
				code = LocalError
			}
		}

		diag := ""
		if ldapErr.Err != nil {
			diag = ldapErr.Err.Error()
		}
		return New(code, ldapErr.MatchedDN, diag, nil, nil)
	}

	return New(LocalError, "", err.Error(), nil, nil)
}

// Decode parses the protocol-op portion of an LDAPResult from a BER packet:
// an ENUMERATED result code, the matched DN, the diagnostic message, and an
// optional [3]-tagged referral sequence. Empty DN and diagnostic strings
// decode to absent. Decode has no side effects on failure.
func Decode(op *ber.Packet) (*Result, error) {
	if op == nil {
		return nil, fmt.Errorf("%w: nil packet", ErrDecode)
	}
	if len(op.Children) < 3 {
		return nil, fmt.Errorf("%w: expected at least 3 elements, got %d", ErrDecode, len(op.Children))
	}

	code, ok := op.Children[0].Value.(int64)
	if !ok {
		return nil, fmt.Errorf("%w: result code is not an enumerated value", ErrDecode)
	}

	matchedDN, err := decodeString(op.Children[1])
	if err != nil {
		return nil, fmt.Errorf("%w: matched DN: %v", ErrDecode, err)
	}
	diagnostic, err := decodeString(op.Children[2])
	if err != nil {
		return nil, fmt.Errorf("%w: diagnostic message: %v", ErrDecode, err)
	}

	var referrals []string
	for _, child := range op.Children[3:] {
		if child.ClassType != ber.ClassContext || child.Tag != 3 {
			continue
		}
		for _, ref := range child.Children {
			url, err := decodeString(ref)
			if err != nil {
				return nil, fmt.Errorf("%w: referral URL: %v", ErrDecode, err)
			}
			referrals = append(referrals, url)
		}
	}

	r := New(ResultCode(code), matchedDN, diagnostic, referrals, nil)
	r.opClass = op.ClassType
	r.opTag = op.Tag
	return r, nil
}

// DecodeControls parses the [0]-tagged controls sequence that may trail the
// protocol op inside the LDAPMessage envelope, attaching the decoded
// response controls to a copy of r.
func (r *Result) DecodeControls(controls *ber.Packet) (*Result, error) {
	if controls == nil {
		return r, nil
	}

	decoded := make([]ldap.Control, 0, len(controls.Children))
	for _, child := range controls.Children {
		c, err := ldap.DecodeControl(child)
		if err != nil {
			return nil, fmt.Errorf("%w: response control: %v", ErrDecode, err)
		}
		decoded = append(decoded, c)
	}

	out := *r
	out.Controls = decoded
	return &out, nil
}

// Encode re-emits the protocol op in the shape Decode consumed. Referral
// URLs round-trip byte-identically.
func (r *Result) Encode() *ber.Packet {
	op := ber.Encode(r.opClass, ber.TypeConstructed, r.opTag, nil, "LDAP Result")
	op.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, int64(r.Code), "Result Code"))
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, r.MatchedDN, "Matched DN"))
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, r.DiagnosticMessage, "Diagnostic Message"))
	if len(r.ReferralURLs) > 0 {
		refs := ber.Encode(ber.ClassContext, ber.TypeConstructed, 3, nil, "Referral")
		for _, url := range r.ReferralURLs {
			refs.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, url, "Referral URL"))
		}
		op.AppendChild(refs)
	}
	return op
}

// EncodeControls re-emits the response controls as the [0]-tagged controls
// sequence, or nil when there are none.
func (r *Result) EncodeControls() *ber.Packet {
	if len(r.Controls) == 0 {
		return nil
	}
	controls := ber.Encode(ber.ClassContext, ber.TypeConstructed, 0, nil, "Controls")
	for _, c := range r.Controls {
		controls.AppendChild(c.Encode())
	}
	return controls
}

// HasControl reports whether a response control with the given OID is
// present.
func (r *Result) HasControl(oid string) bool {
	return r.Control(oid) != nil
}

// Control returns the first response control with the given OID in
// insertion order, or nil.
func (r *Result) Control(oid string) ldap.Control {
	for _, c := range r.Controls {
		if c.GetControlType() == oid {
			return c
		}
	}
	return nil
}

// IsSuccess reports whether the result counts as successful for the change
// engine: either an actual success or a no-op acknowledgment.
func (r *Result) IsSuccess() bool {
	return r.Code == Success || r.Code == NoOperation
}

// String renders a single-line diagnostic form of the result.
func (r *Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "resultCode=%s", r.Code)
	if r.MatchedDN != "" {
		fmt.Fprintf(&b, ", matchedDN=%q", r.MatchedDN)
	}
	if r.DiagnosticMessage != "" {
		fmt.Fprintf(&b, ", diagnosticMessage=%q", r.DiagnosticMessage)
	}
	for _, url := range r.ReferralURLs {
		fmt.Fprintf(&b, ", referralURL=%q", url)
	}
	return b.String()
}

// Format renders the multi-line trailer used for rejected-change comments
// and for the per-operation report on standard output.
func (r *Result) Format() []string {
	lines := []string{fmt.Sprintf("Result Code: %s", r.Code)}
	if r.DiagnosticMessage != "" {
		lines = append(lines, fmt.Sprintf("Diagnostic Message: %s", r.DiagnosticMessage))
	}
	if r.MatchedDN != "" {
		lines = append(lines, fmt.Sprintf("Matched DN: %s", r.MatchedDN))
	}
	for _, url := range r.ReferralURLs {
		lines = append(lines, fmt.Sprintf("Referral URL: %s", url))
	}
	for _, c := range r.Controls {
		lines = append(lines, fmt.Sprintf("Response Control: %s", c.GetControlType()))
	}
	return lines
}

// Extended is a result carrying the extended-response OID and value in
// addition to the common LDAPResult fields.
type Extended struct {
	Result
	OID   string
	Value []byte
}

func decodeString(p *ber.Packet) (string, error) {
	if p == nil {
		return "", errors.New("missing element")
	}
	switch v := p.Value.(type) {
	case string:
		return v, nil
	case nil:
		if p.Data != nil {
			return p.Data.String(), nil
		}
		return "", nil
	default:
		return "", fmt.Errorf("unexpected type %T", v)
	}
}
