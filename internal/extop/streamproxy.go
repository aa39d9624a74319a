package extop

import (
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"
)

// Stream proxy values result codes.
const (
	StreamProxyAllValuesReturned   int64 = 0
	StreamProxyMoreValuesToReturn  int64 = 1
	StreamProxyAttributeNotIndexed int64 = 2
	StreamProxyProcessingError     int64 = 3
)

// BackendSetValue is one value streamed back for a backend set.
type BackendSetValue struct {
	BackendSetID []byte
	Value        []byte
}

// StreamProxyValuesResponse is the decoded intermediate response emitted
// while a Directory Proxy Server streams DNs or attribute values.
//
//	StreamProxyValuesIntermediateResponse ::= SEQUENCE {
//	     attributeName     [0] LDAPString OPTIONAL,
//	     result            [1] ENUMERATED { allValuesReturned(0),
//	                            moreValuesToReturn(1),
//	                            attributeNotIndexed(2),
//	                            processingError(3) },
//	     diagnosticMessage [2] OCTET STRING OPTIONAL,
//	     values            [4] SET OF BackendSetValue OPTIONAL }
type StreamProxyValuesResponse struct {
	// AttributeName is empty when the streamed values are entry DNs.
	AttributeName     string
	Result            int64
	DiagnosticMessage string
	Values            []BackendSetValue
}

// DecodeStreamProxyValuesResponse parses the intermediate response value.
func DecodeStreamProxyValuesResponse(value []byte) (*StreamProxyValuesResponse, error) {
	packet, err := ber.DecodePacketErr(value)
	if err != nil {
		return nil, fmt.Errorf("stream proxy values response: %w", err)
	}

	out := &StreamProxyValuesResponse{Result: -1}
	for _, child := range packet.Children {
		if child.ClassType != ber.ClassContext {
			return nil, fmt.Errorf("stream proxy values response: unexpected element class %d", child.ClassType)
		}
		switch child.Tag {
		case 0:
			out.AttributeName = child.Data.String()
		case 1:
			parsed, err := ber.ParseInt64(child.Data.Bytes())
			if err != nil {
				return nil, fmt.Errorf("stream proxy values response: result: %w", err)
			}
			out.Result = parsed
		case 2:
			out.DiagnosticMessage = child.Data.String()
		case 4:
			for i, v := range child.Children {
				if len(v.Children) != 2 {
					return nil, fmt.Errorf("stream proxy values response: backend set value %d is malformed", i)
				}
				out.Values = append(out.Values, BackendSetValue{
					BackendSetID: v.Children[0].Data.Bytes(),
					Value:        v.Children[1].Data.Bytes(),
				})
			}
		default:
			return nil, fmt.Errorf("stream proxy values response: unexpected element tag %d", child.Tag)
		}
	}
	if out.Result < 0 {
		return nil, fmt.Errorf("stream proxy values response: missing result element")
	}
	return out, nil
}
