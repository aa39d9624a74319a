package result

import "fmt"

// ResultCode is an LDAP result code as defined by RFC 4511, extended with
// the client-side codes from the C API and the proprietary no-operation
// code returned by servers honoring the no-op request control.
type ResultCode int32

const (
	Success                     ResultCode = 0
	OperationsError             ResultCode = 1
	ProtocolError               ResultCode = 2
	TimeLimitExceeded           ResultCode = 3
	SizeLimitExceeded           ResultCode = 4
	CompareFalse                ResultCode = 5
	CompareTrue                 ResultCode = 6
	AuthMethodNotSupported      ResultCode = 7
	StrongerAuthRequired        ResultCode = 8
	Referral                    ResultCode = 10
	AdminLimitExceeded          ResultCode = 11
	UnavailableCriticalExt      ResultCode = 12
	ConfidentialityRequired     ResultCode = 13
	SASLBindInProgress          ResultCode = 14
	NoSuchAttribute             ResultCode = 16
	UndefinedAttributeType      ResultCode = 17
	InappropriateMatching       ResultCode = 18
	ConstraintViolation         ResultCode = 19
	AttributeOrValueExists      ResultCode = 20
	InvalidAttributeSyntax      ResultCode = 21
	NoSuchObject                ResultCode = 32
	AliasProblem                ResultCode = 33
	InvalidDNSyntax             ResultCode = 34
	AliasDereferencingProblem   ResultCode = 36
	InappropriateAuthentication ResultCode = 48
	InvalidCredentials          ResultCode = 49
	InsufficientAccessRights    ResultCode = 50
	Busy                        ResultCode = 51
	Unavailable                 ResultCode = 52
	UnwillingToPerform          ResultCode = 53
	LoopDetect                  ResultCode = 54
	NamingViolation             ResultCode = 64
	ObjectClassViolation        ResultCode = 65
	NotAllowedOnNonLeaf         ResultCode = 66
	NotAllowedOnRDN             ResultCode = 67
	EntryAlreadyExists          ResultCode = 68
	ObjectClassModsProhibited   ResultCode = 69
	AffectsMultipleDSAs         ResultCode = 71
	Other                       ResultCode = 80

	// Client-side result codes.
	ServerDown            ResultCode = 81
	LocalError            ResultCode = 82
	EncodingError         ResultCode = 83
	DecodingError         ResultCode = 84
	Timeout               ResultCode = 85
	AuthUnknown           ResultCode = 86
	FilterError           ResultCode = 87
	UserCanceled          ResultCode = 88
	ParamError            ResultCode = 89
	NoMemory              ResultCode = 90
	ConnectError          ResultCode = 91
	NotSupported          ResultCode = 92
	ControlNotFound       ResultCode = 93
	NoResultsReturned     ResultCode = 94
	MoreResultsToReturn   ResultCode = 95
	ClientLoop            ResultCode = 96
	ReferralLimitExceeded ResultCode = 97

	// Extended result codes.
	Canceled            ResultCode = 118
	NoSuchOperation     ResultCode = 119
	TooLate             ResultCode = 120
	CannotCancel        ResultCode = 121
	AssertionFailed     ResultCode = 122
	AuthorizationDenied ResultCode = 123

	// NoOperation is returned by servers that honored a request carrying
	// the no-op request control without applying the change.
	NoOperation ResultCode = 16654
)

var codeNames = map[ResultCode]string{
	Success:                     "success",
	OperationsError:             "operations error",
	ProtocolError:               "protocol error",
	TimeLimitExceeded:           "time limit exceeded",
	SizeLimitExceeded:           "size limit exceeded",
	CompareFalse:                "compare false",
	CompareTrue:                 "compare true",
	AuthMethodNotSupported:      "auth method not supported",
	StrongerAuthRequired:        "stronger auth required",
	Referral:                    "referral",
	AdminLimitExceeded:          "admin limit exceeded",
	UnavailableCriticalExt:      "unavailable critical extension",
	ConfidentialityRequired:     "confidentiality required",
	SASLBindInProgress:          "SASL bind in progress",
	NoSuchAttribute:             "no such attribute",
	UndefinedAttributeType:      "undefined attribute type",
	InappropriateMatching:       "inappropriate matching",
	ConstraintViolation:         "constraint violation",
	AttributeOrValueExists:      "attribute or value exists",
	InvalidAttributeSyntax:      "invalid attribute syntax",
	NoSuchObject:                "no such object",
	AliasProblem:                "alias problem",
	InvalidDNSyntax:             "invalid DN syntax",
	AliasDereferencingProblem:   "alias dereferencing problem",
	InappropriateAuthentication: "inappropriate authentication",
	InvalidCredentials:          "invalid credentials",
	InsufficientAccessRights:    "insufficient access rights",
	Busy:                        "busy",
	Unavailable:                 "unavailable",
	UnwillingToPerform:          "unwilling to perform",
	LoopDetect:                  "loop detect",
	NamingViolation:             "naming violation",
	ObjectClassViolation:        "object class violation",
	NotAllowedOnNonLeaf:         "not allowed on non-leaf",
	NotAllowedOnRDN:             "not allowed on RDN",
	EntryAlreadyExists:          "entry already exists",
	ObjectClassModsProhibited:   "object class mods prohibited",
	AffectsMultipleDSAs:         "affects multiple DSAs",
	Other:                       "other",
	ServerDown:                  "server down",
	LocalError:                  "local error",
	EncodingError:               "encoding error",
	DecodingError:               "decoding error",
	Timeout:                     "timeout",
	AuthUnknown:                 "auth unknown",
	FilterError:                 "filter error",
	UserCanceled:                "user canceled",
	ParamError:                  "param error",
	NoMemory:                    "no memory",
	ConnectError:                "connect error",
	NotSupported:                "not supported",
	ControlNotFound:             "control not found",
	NoResultsReturned:           "no results returned",
	MoreResultsToReturn:         "more results to return",
	ClientLoop:                  "client loop",
	ReferralLimitExceeded:       "referral limit exceeded",
	Canceled:                    "canceled",
	NoSuchOperation:             "no such operation",
	TooLate:                     "too late",
	CannotCancel:                "cannot cancel",
	AssertionFailed:             "assertion failed",
	AuthorizationDenied:         "authorization denied",
	NoOperation:                 "no operation",
}

// connectionUnusable lists the codes that indicate the connection that
// produced them can no longer be trusted to carry further operations.
var connectionUnusable = map[ResultCode]bool{
	OperationsError: true,
	ProtocolError:   true,
	Busy:            true,
	Unavailable:     true,
	Other:           true,
	ServerDown:      true,
	LocalError:      true,
	EncodingError:   true,
	DecodingError:   true,
	Timeout:         true,
	NoMemory:        true,
	ConnectError:    true,
}

// Name returns the human-readable name for the result code, or "unknown"
// for codes outside the known palette.
func (c ResultCode) Name() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// String renders the code as "N (name)".
func (c ResultCode) String() string {
	return fmt.Sprintf("%d (%s)", int32(c), c.Name())
}

// IsConnectionUsable reports whether a connection that yielded this result
// code may still be used for subsequent operations.
func (c ResultCode) IsConnectionUsable() bool {
	return !connectionUnusable[c]
}

// IsClientSide reports whether the code was generated by the client library
// rather than returned by a server.
func (c ResultCode) IsClientSide() bool {
	return c >= ServerDown && c <= ReferralLimitExceeded
}

// ExitCode maps the result code onto a process exit status, clamped to the
// 0..255 range available on POSIX systems.
func (c ResultCode) ExitCode() int {
	if c < 0 {
		return 255
	}
	if c > 255 {
		return 255
	}
	return int(c)
}
