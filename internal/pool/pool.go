package pool

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/ldaptools/ldapbatch/internal/extop"
	"github.com/ldaptools/ldapbatch/internal/result"
)

// Pool is a small synchronous connection pool over an ordered failover
// list of directory servers. It is sized for a single-threaded caller: one
// working connection, with one spare slot for replacement churn.
type Pool struct {
	cfg *Config
	log zerolog.Logger

	mu     sync.Mutex
	idle   []*Conn
	closed bool
	notify NotificationFunc
}

// Conn is a pooled connection. Operations on a Conn run without retry;
// grouped changes that must share one connection (transactions, paged
// sweeps) acquire a Conn and drive it directly.
type Conn struct {
	raw    *ldap.Conn
	server string
}

// Raw exposes the underlying go-ldap connection for request shapes the
// typed helpers do not cover.
func (c *Conn) Raw() *ldap.Conn {
	return c.raw
}

// Server returns the URL of the server this connection is bound to.
func (c *Conn) Server() string {
	return c.server
}

// New validates the configuration and establishes the first connection as
// a health check. A rejected bind surfaces as *BindFailure so the caller
// can report it exactly once.
func New(cfg *Config, log zerolog.Logger) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &Pool{
		cfg: cfg,
		log: log.With().Str("component", "pool").Logger(),
	}
	conn, err := p.connect()
	if err != nil {
		return nil, err
	}
	p.idle = append(p.idle, conn)
	return p, nil
}

// SetNotificationHandler registers the sink for server-initiated
// disconnect conditions detected by the pool.
func (p *Pool) SetNotificationHandler(fn NotificationFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notify = fn
}

// Acquire returns an idle connection, dialing a new one when none is
// available.
func (p *Pool) Acquire() (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("pool is closed")
	}
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()
	return p.connect()
}

// Connect dials and binds one connection to a specific server, bypassing
// the failover list. Referral chasing uses it to reach the server a result
// pointed at; dispose of the connection with ReleaseDefunct.
func (p *Pool) Connect(serverURL string) (*Conn, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("pool is closed")
	}
	return p.connectOne(serverURL)
}

// Release returns a healthy connection to the pool.
func (p *Pool) Release(c *Conn) {
	if c == nil {
		return
	}
	p.mu.Lock()
	if !p.closed && len(p.idle) < p.cfg.MaxConnections {
		p.idle = append(p.idle, c)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	c.close(p.log)
}

// ReleaseDefunct discards a connection that can no longer be trusted.
func (p *Pool) ReleaseDefunct(c *Conn) {
	if c == nil {
		return
	}
	p.log.Debug().Str("server", c.server).Msg("discarding defunct connection")
	c.close(p.log)
}

// ReplaceDefunct discards a broken connection and dials a replacement.
func (p *Pool) ReplaceDefunct(c *Conn) (*Conn, error) {
	p.ReleaseDefunct(c)
	return p.connect()
}

// Close tears down all idle connections. Outstanding acquired connections
// are closed by their eventual Release.
func (p *Pool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()
	for _, c := range idle {
		c.close(p.log)
	}
}

func (c *Conn) close(log zerolog.Logger) {
	if err := c.raw.Close(); err != nil {
		log.Debug().Err(err).Str("server", c.server).Msg("error closing connection")
	}
}

// connect walks the failover list in order and returns the first
// connection that dials, negotiates TLS, and binds. Dial failures move on
// to the next server; if every server fails, the last error wins, with
// bind rejections preferred so they are not masked by a later dial error.
func (p *Pool) connect() (*Conn, error) {
	var lastErr error
	var bindErr *BindFailure
	for _, serverURL := range p.cfg.URLs {
		conn, err := p.connectOne(serverURL)
		if err == nil {
			return conn, nil
		}
		p.log.Warn().Err(err).Str("server", serverURL).Msg("connection attempt failed")
		lastErr = err
		var bf *BindFailure
		if errors.As(err, &bf) {
			bindErr = bf
		}
	}
	if bindErr != nil {
		return nil, bindErr
	}
	return nil, fmt.Errorf("all %d servers failed: %w", len(p.cfg.URLs), lastErr)
}

func (p *Pool) connectOne(serverURL string) (*Conn, error) {
	var raw *ldap.Conn
	var err error
	if strings.HasPrefix(serverURL, "ldaps://") && p.cfg.TLSConfig != nil {
		raw, err = ldap.DialURL(serverURL, ldap.DialWithTLSConfig(p.cfg.TLSConfig))
	} else {
		raw, err = ldap.DialURL(serverURL)
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", serverURL, err)
	}
	raw.SetTimeout(p.cfg.Timeout)

	if p.cfg.UseStartTLS && !strings.HasPrefix(serverURL, "ldaps://") {
		if err := raw.StartTLS(p.cfg.TLSConfig); err != nil {
			raw.Close()
			return nil, fmt.Errorf("StartTLS with %s: %w", serverURL, err)
		}
	}

	if p.cfg.PostConnect != nil {
		if err := p.cfg.PostConnect(raw); err != nil {
			raw.Close()
			return nil, fmt.Errorf("post-connect processing on %s: %w", serverURL, err)
		}
	}

	if err := p.bind(raw, serverURL); err != nil {
		raw.Close()
		return nil, err
	}

	p.log.Debug().Str("server", serverURL).Stringer("auth", p.cfg.Auth).Msg("connection established")
	return &Conn{raw: raw, server: serverURL}, nil
}

func (p *Pool) bind(raw *ldap.Conn, serverURL string) error {
	var err error
	switch p.cfg.Auth {
	case AuthNone:
		return nil
	case AuthSimple:
		var br *ldap.SimpleBindResult
		br, err = raw.SimpleBind(&ldap.SimpleBindRequest{
			Username: p.cfg.BindDN,
			Password: p.cfg.BindPassword,
			Controls: p.cfg.BindControls,
		})
		if err == nil && p.cfg.OnBindResult != nil && br != nil {
			p.cfg.OnBindResult(serverURL, br.Controls)
		}
	case AuthKerberos:
		err = kerberosBind(raw, p.cfg, serverURL)
	case AuthExternal:
		err = raw.ExternalBind()
	default:
		return fmt.Errorf("unsupported authentication method %v", p.cfg.Auth)
	}
	if err != nil {
		return &BindFailure{Result: result.FromError(err), cause: err}
	}
	return nil
}

// reportDisconnect synthesizes a notice-of-disconnection for the sink when
// an operation reveals the server side has gone away.
func (p *Pool) reportDisconnect(server string, err error) {
	p.mu.Lock()
	notify := p.notify
	p.mu.Unlock()
	if notify == nil {
		return
	}
	notify(Notification{
		OID:     extop.OIDNoticeOfDisconnection,
		Server:  server,
		Message: err.Error(),
	})
}
