package extop

import (
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

// NewStartTransactionRequest builds the RFC 5805 start-transaction request.
// It carries no value.
func NewStartTransactionRequest() *ldap.ExtendedRequest {
	return ldap.NewExtendedRequest(OIDStartTransaction, nil)
}

// DecodeTransactionID extracts the transaction identifier from a
// start-transaction response. The response value is the raw identifier.
func DecodeTransactionID(resp *ldap.ExtendedResponse) ([]byte, error) {
	id := ResponseValue(resp)
	if len(id) == 0 {
		return nil, fmt.Errorf("start transaction response has no transaction ID")
	}
	return id, nil
}

// NewEndTransactionRequest builds the RFC 5805 end-transaction request,
// committing or aborting the identified transaction.
//
//	txnEndReq ::= SEQUENCE {
//	     commit     BOOLEAN DEFAULT TRUE,
//	     identifier OCTET STRING }
func NewEndTransactionRequest(txnID []byte, commit bool) *ldap.ExtendedRequest {
	value := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "End Transaction Value")
	if !commit {
		value.AppendChild(ber.NewBoolean(ber.ClassUniversal, ber.TypePrimitive, ber.TagBoolean, false, "Commit"))
	}
	value.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, string(txnID), "Transaction ID"))
	return ldap.NewExtendedRequest(OIDEndTransaction, value)
}

// EndTransactionResult reports which update failed when an end-transaction
// request did not complete cleanly.
type EndTransactionResult struct {
	// FailedMessageID identifies the update that caused the transaction to
	// fail, or -1 when the server did not name one.
	FailedMessageID int
}

// DecodeEndTransactionResponse parses the optional end-transaction response
// value. A response without a value decodes to FailedMessageID -1.
func DecodeEndTransactionResponse(resp *ldap.ExtendedResponse) (*EndTransactionResult, error) {
	out := &EndTransactionResult{FailedMessageID: -1}
	if ResponseValue(resp) == nil {
		return out, nil
	}

	value, err := decodeValue(resp, "end transaction")
	if err != nil {
		return nil, err
	}
	for _, child := range value.Children {
		if child.ClassType == ber.ClassUniversal && child.Tag == ber.TagInteger {
			if id, ok := child.Value.(int64); ok {
				out.FailedMessageID = int(id)
			}
		}
	}
	return out, nil
}
