// Package pool manages the directory connections used by the change
// engine: an ordered failover list of servers, a small synchronous pool,
// bind handling (simple, GSSAPI, external), and operation dispatch that
// converts go-ldap outcomes into the result model.
package pool

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-ldap/ldap/v3"

	"github.com/ldaptools/ldapbatch/internal/result"
)

// AuthMethod selects how new connections authenticate.
type AuthMethod int

const (
	// AuthNone leaves the connection unauthenticated.
	AuthNone AuthMethod = iota
	// AuthSimple binds with a DN and password.
	AuthSimple
	// AuthKerberos binds via GSSAPI.
	AuthKerberos
	// AuthExternal binds with the SASL EXTERNAL mechanism, deriving the
	// identity from the TLS client certificate.
	AuthExternal
)

func (a AuthMethod) String() string {
	switch a {
	case AuthNone:
		return "none"
	case AuthSimple:
		return "simple"
	case AuthKerberos:
		return "kerberos"
	case AuthExternal:
		return "external"
	default:
		return "unknown"
	}
}

// PostConnectFunc runs on every new connection after the dial and TLS
// negotiation but before the bind.
type PostConnectFunc func(conn *ldap.Conn) error

// NotificationFunc receives unsolicited disconnect notifications detected
// by the pool.
type NotificationFunc func(n Notification)

// Notification describes a server-initiated condition not tied to any
// request.
type Notification struct {
	OID     string
	Server  string
	Message string
}

// Config configures a Pool.
type Config struct {
	// URLs is the ordered failover list (ldap:// or ldaps://). The first
	// reachable server wins; later entries are tried in order.
	URLs []string

	Auth         AuthMethod
	BindDN       string
	BindPassword string

	// BindControls are attached to simple bind requests (authorization
	// identity, get-authorization-entry, get-user-resource-limits).
	BindControls []ldap.Control
	// OnBindResult receives the response controls of each successful
	// simple bind.
	OnBindResult func(server string, controls []ldap.Control)

	// Kerberos settings, used when Auth is AuthKerberos.
	KerberosRealm  string
	KerberosKeytab string
	KerberosCCache string
	KerberosConfig string `default:"/etc/krb5.conf"`
	KerberosSPN    string

	// TLSConfig applies to ldaps:// URLs and to StartTLS upgrades.
	TLSConfig *tls.Config
	// UseStartTLS upgrades plain connections before any other traffic.
	UseStartTLS bool

	Timeout time.Duration `default:"30s"`

	// MaxConnections bounds the pool. The engine is single-threaded; the
	// second slot exists only so a replacement can be dialed while the
	// defunct connection is still being torn down.
	MaxConnections int `default:"2"`

	// RetryOnInvalid transparently retries a failed operation once on a
	// replacement connection when the failure is connection-classified.
	RetryOnInvalid bool

	// PostConnect, when set, runs on each new connection before the bind.
	PostConnect PostConnectFunc
}

func (c *Config) validate() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("applying configuration defaults: %w", err)
	}
	if len(c.URLs) == 0 {
		return errors.New("at least one server URL is required")
	}
	if c.MaxConnections < 1 || c.MaxConnections > 2 {
		return fmt.Errorf("MaxConnections must be 1 or 2, got %d", c.MaxConnections)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.Auth == AuthSimple && c.BindDN == "" {
		return errors.New("bind DN is required for simple authentication")
	}
	return nil
}

// BindFailure is returned from New when the initial health-check bind is
// rejected. It carries the server's result so the caller can exit with the
// right code without reporting the failure twice.
type BindFailure struct {
	Result *result.Result
	cause  error
}

func (e *BindFailure) Error() string {
	return fmt.Sprintf("bind failed: %s", e.Result)
}

func (e *BindFailure) Unwrap() error {
	return e.cause
}
