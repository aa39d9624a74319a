package extop

import (
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"

	"github.com/ldaptools/ldapbatch/internal/result"
)

// ErrorBehavior selects how a multi-update request reacts to a failed
// update.
type ErrorBehavior int64

const (
	// ErrorBehaviorAtomic applies all updates or none.
	ErrorBehaviorAtomic ErrorBehavior = 0
	// ErrorBehaviorAbortOnError keeps changes applied before the failure
	// but processes nothing after it.
	ErrorBehaviorAbortOnError ErrorBehavior = 2
	// ErrorBehaviorContinueOnError attempts every update regardless of
	// failures.
	ErrorBehaviorContinueOnError ErrorBehavior = 3
)

func (b ErrorBehavior) String() string {
	switch b {
	case ErrorBehaviorAtomic:
		return "atomic"
	case ErrorBehaviorAbortOnError:
		return "abort-on-error"
	case ErrorBehaviorContinueOnError:
		return "continue-on-error"
	default:
		return fmt.Sprintf("unknown (%d)", int64(b))
	}
}

// MultiUpdateRequest accumulates modifying protocol ops and encodes them as
// a single multi-update extended request.
type MultiUpdateRequest struct {
	Behavior ErrorBehavior

	updates []update
}

type update struct {
	op       *ber.Packet
	controls []ldap.Control
}

// NewMultiUpdateRequest returns an empty request with the given error
// behavior.
func NewMultiUpdateRequest(behavior ErrorBehavior) *MultiUpdateRequest {
	return &MultiUpdateRequest{Behavior: behavior}
}

// Add appends a protocol op (from the Encode*Op helpers) with its request
// controls. Order is preserved.
func (r *MultiUpdateRequest) Add(op *ber.Packet, controls []ldap.Control) {
	r.updates = append(r.updates, update{op: op, controls: controls})
}

// Len reports the number of buffered updates.
func (r *MultiUpdateRequest) Len() int {
	return len(r.updates)
}

// Encode builds the extended request.
//
//	MultiUpdateRequestValue ::= SEQUENCE {
//	     errorBehavior  ENUMERATED { atomic(0), abortOnError(2),
//	                                 continueOnError(3) },
//	     requests       SEQUENCE OF SEQUENCE {
//	          updateOp  CHOICE { add/delete/modify/modifyDN request },
//	          controls  [0] Controls OPTIONAL } }
func (r *MultiUpdateRequest) Encode() *ldap.ExtendedRequest {
	value := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Multi-Update Value")
	value.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, int64(r.Behavior), "Error Behavior"))

	requests := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Requests")
	for _, u := range r.updates {
		wrapper := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Request")
		wrapper.AppendChild(u.op)
		if len(u.controls) > 0 {
			ctls := ber.Encode(ber.ClassContext, ber.TypeConstructed, 0, nil, "Controls")
			for _, c := range u.controls {
				ctls.AppendChild(c.Encode())
			}
			wrapper.AppendChild(ctls)
		}
		requests.AppendChild(wrapper)
	}
	value.AppendChild(requests)

	return ldap.NewExtendedRequest(OIDMultiUpdate, value)
}

// ChangesApplied describes how much of a multi-update took effect.
type ChangesApplied int64

const (
	ChangesAppliedNone    ChangesApplied = 0
	ChangesAppliedAll     ChangesApplied = 1
	ChangesAppliedPartial ChangesApplied = 2
)

func (c ChangesApplied) String() string {
	switch c {
	case ChangesAppliedNone:
		return "none"
	case ChangesAppliedAll:
		return "all"
	case ChangesAppliedPartial:
		return "partial"
	default:
		return fmt.Sprintf("unknown (%d)", int64(c))
	}
}

// MultiUpdateResult is the decoded multi-update response value: the overall
// outcome plus one result per attempted update, in request order.
type MultiUpdateResult struct {
	ChangesApplied ChangesApplied
	Results        []*result.Result
}

// DecodeMultiUpdateResponse parses a multi-update response value.
func DecodeMultiUpdateResponse(resp *ldap.ExtendedResponse) (*MultiUpdateResult, error) {
	value, err := decodeValue(resp, "multi-update")
	if err != nil {
		return nil, err
	}
	if len(value.Children) < 2 {
		return nil, fmt.Errorf("multi-update response value: expected outcome and result list, got %d elements", len(value.Children))
	}

	applied, ok := value.Children[0].Value.(int64)
	if !ok {
		return nil, fmt.Errorf("multi-update response value: changesApplied is not an enumerated value")
	}

	out := &MultiUpdateResult{ChangesApplied: ChangesApplied(applied)}
	for i, wrapper := range value.Children[1].Children {
		if len(wrapper.Children) == 0 {
			return nil, fmt.Errorf("multi-update response value: empty result element %d", i)
		}
		res, err := result.Decode(wrapper.Children[0])
		if err != nil {
			return nil, fmt.Errorf("multi-update response value: result %d: %w", i, err)
		}
		if len(wrapper.Children) > 1 {
			res, err = res.DecodeControls(wrapper.Children[1])
			if err != nil {
				return nil, fmt.Errorf("multi-update response value: result %d controls: %w", i, err)
			}
		}
		out.Results = append(out.Results, res)
	}
	return out, nil
}
