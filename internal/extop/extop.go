// Package extop implements the extended operations used for grouped change
// application: LDAP transactions (RFC 5805), the multi-update operation, and
// administrative sessions, plus decoding for the stream-proxy-values
// intermediate response.
package extop

import (
	"fmt"
	"strconv"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// Extended operation and notification OIDs.
const (
	OIDStartTransaction           = "1.3.6.1.1.21.1"
	OIDEndTransaction             = "1.3.6.1.1.21.3"
	OIDAbortedTransaction         = "1.3.6.1.1.21.4"
	OIDStartAdministrativeSession = "1.3.6.1.4.1.30221.2.6.8"
	OIDStreamProxyValuesResponse  = "1.3.6.1.4.1.30221.2.6.9"
	OIDEndAdministrativeSession   = "1.3.6.1.4.1.30221.2.6.13"
	OIDMultiUpdate                = "1.3.6.1.4.1.30221.2.6.17"
	OIDNoticeOfDisconnection      = "1.3.6.1.4.1.1466.20036"
)

var oidNames = map[string]string{
	OIDStartTransaction:           "Start Transaction",
	OIDEndTransaction:             "End Transaction",
	OIDAbortedTransaction:         "Aborted Transaction",
	OIDStartAdministrativeSession: "Start Administrative Session",
	OIDStreamProxyValuesResponse:  "Stream Proxy Values",
	OIDMultiUpdate:                "Multi-Update",
	OIDEndAdministrativeSession:   "End Administrative Session",
	OIDNoticeOfDisconnection:      "Notice of Disconnection",
}

// Describe returns the name registered for an extended operation or
// notification OID, or the OID itself.
func Describe(oid string) string {
	if name, ok := oidNames[oid]; ok {
		return name
	}
	return oid
}

// ResponseValue extracts the raw response value octets from an extended
// response, or nil when the server returned none.
func ResponseValue(resp *ldap.ExtendedResponse) []byte {
	if resp == nil || resp.Value == nil || resp.Value.Data == nil {
		return nil
	}
	return resp.Value.Data.Bytes()
}

func decodeValue(resp *ldap.ExtendedResponse, what string) (*ber.Packet, error) {
	raw := ResponseValue(resp)
	if raw == nil {
		return nil, fmt.Errorf("%s response has no value", what)
	}
	packet, err := ber.DecodePacketErr(raw)
	if err != nil {
		return nil, fmt.Errorf("%s response value: %w", what, err)
	}
	return packet, nil
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return len(b) > 0
}

// FormatID renders an opaque identifier (such as a transaction ID) for
// display: as-is when printable ASCII, otherwise quoted hex.
func FormatID(id []byte) string {
	if isPrintable(id) {
		return string(id)
	}
	return strconv.Quote(fmt.Sprintf("%x", id))
}
