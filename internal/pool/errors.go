package pool

import (
	"errors"
	"fmt"

	"github.com/go-ldap/ldap/v3"

	"github.com/ldaptools/ldapbatch/internal/result"
)

// Category groups operation failures for logging and retry decisions.
type Category string

const (
	CategoryConnection     Category = "connection"
	CategoryAuthentication Category = "authentication"
	CategoryPermission     Category = "permission"
	CategoryNotFound       Category = "not_found"
	CategoryConflict       Category = "conflict"
	CategoryValidation     Category = "validation"
	CategoryServer         Category = "server"
	CategoryUnknown        Category = "unknown"
)

// OpError wraps a failed directory operation with enough context to decide
// whether the connection is still usable and whether a retry can help.
type OpError struct {
	Op        string
	DN        string
	Server    string
	Category  Category
	Code      result.ResultCode
	Retryable bool
	Err       error
}

func (e *OpError) Error() string {
	if e.DN != "" {
		return fmt.Sprintf("%s %q on %s: %v", e.Op, e.DN, e.Server, e.Err)
	}
	return fmt.Sprintf("%s on %s: %v", e.Op, e.Server, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether repeating the operation on a fresh
// connection could succeed.
func (e *OpError) IsRetryable() bool {
	return e.Retryable
}

// classify builds an OpError from a go-ldap error. Returns nil for nil.
func classify(op, dn, server string, err error) *OpError {
	if err == nil {
		return nil
	}
	res := result.FromError(err)
	return &OpError{
		Op:        op,
		DN:        dn,
		Server:    server,
		Category:  categorize(res.Code),
		Code:      res.Code,
		Retryable: isRetryableCode(res.Code),
		Err:       err,
	}
}

func categorize(code result.ResultCode) Category {
	switch code {
	case result.ServerDown, result.ConnectError, result.Timeout, result.Unavailable:
		return CategoryConnection
	case result.InvalidCredentials, result.InappropriateAuthentication,
		result.AuthMethodNotSupported, result.StrongerAuthRequired,
		result.ConfidentialityRequired, result.AuthUnknown:
		return CategoryAuthentication
	case result.InsufficientAccessRights, result.AuthorizationDenied:
		return CategoryPermission
	case result.NoSuchObject, result.NoSuchAttribute:
		return CategoryNotFound
	case result.EntryAlreadyExists, result.AttributeOrValueExists,
		result.NotAllowedOnNonLeaf, result.NotAllowedOnRDN:
		return CategoryConflict
	case result.InvalidAttributeSyntax, result.InvalidDNSyntax,
		result.UndefinedAttributeType, result.ObjectClassViolation,
		result.ConstraintViolation, result.NamingViolation,
		result.ParamError, result.FilterError, result.DecodingError:
		return CategoryValidation
	case result.Busy, result.UnwillingToPerform, result.LoopDetect,
		result.TimeLimitExceeded, result.AdminLimitExceeded,
		result.UnavailableCriticalExt, result.Other:
		return CategoryServer
	default:
		return CategoryUnknown
	}
}

// isRetryableCode mirrors the transient-failure set: conditions that a
// replacement connection or a later attempt may clear.
func isRetryableCode(code result.ResultCode) bool {
	switch code {
	case result.Busy, result.Unavailable, result.ServerDown,
		result.ConnectError, result.Timeout, result.TimeLimitExceeded:
		return true
	default:
		return false
	}
}

// isConnectionError reports whether err means the connection that carried
// the operation can no longer be trusted.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Category == CategoryConnection
	}
	return ldap.IsErrorAnyOf(err,
		ldap.ErrorNetwork,
		ldap.LDAPResultServerDown,
		ldap.LDAPResultConnectError,
	)
}
