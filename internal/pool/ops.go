package pool

import (
	"github.com/go-ldap/ldap/v3"

	"github.com/ldaptools/ldapbatch/internal/result"
)

// Conn-level operations run exactly once on this connection and convert
// the outcome into the result model. The returned result is never nil.

// Add sends an add request.
func (c *Conn) Add(req *ldap.AddRequest) (*result.Result, error) {
	err := c.raw.Add(req)
	return c.finish("add", req.DN, err, nil)
}

// Delete sends a delete request.
func (c *Conn) Delete(req *ldap.DelRequest) (*result.Result, error) {
	err := c.raw.Del(req)
	return c.finish("delete", req.DN, err, nil)
}

// Modify sends a modify request. Response controls (pre-read, post-read,
// password policy) are carried on the returned result.
func (c *Conn) Modify(req *ldap.ModifyRequest) (*result.Result, error) {
	mr, err := c.raw.ModifyWithResult(req)
	var controls []ldap.Control
	if mr != nil {
		controls = mr.Controls
	}
	return c.finish("modify", req.DN, err, controls)
}

// ModifyDN sends a modify DN request.
func (c *Conn) ModifyDN(req *ldap.ModifyDNRequest) (*result.Result, error) {
	err := c.raw.ModifyDN(req)
	return c.finish("modify DN", req.DN, err, nil)
}

// Extended sends an extended request and returns the raw response
// alongside the converted result.
func (c *Conn) Extended(req *ldap.ExtendedRequest) (*ldap.ExtendedResponse, *result.Result, error) {
	resp, err := c.raw.Extended(req)
	res, err := c.finish("extended operation", req.Name, err, nil)
	return resp, res, err
}

// Search runs a search request on this connection.
func (c *Conn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, *result.Result, error) {
	sr, err := c.raw.Search(req)
	res, err := c.finish("search", req.BaseDN, err, nil)
	return sr, res, err
}

func (c *Conn) finish(op, dn string, err error, controls []ldap.Control) (*result.Result, error) {
	if err == nil {
		if len(controls) == 0 {
			return result.NewSuccess(), nil
		}
		return result.New(result.Success, "", "", nil, controls), nil
	}
	res := result.FromError(err)
	return res, classify(op, dn, c.server, err)
}

// Pool-level operations acquire a connection, run the operation, and
// return the connection to the pool. When RetryOnInvalid is set, a
// connection-classified failure is retried exactly once on a replacement.

// Add performs an add through the pool.
func (p *Pool) Add(req *ldap.AddRequest) (*result.Result, error) {
	return p.do(func(c *Conn) (*result.Result, error) {
		return c.Add(req)
	})
}

// Delete performs a delete through the pool.
func (p *Pool) Delete(req *ldap.DelRequest) (*result.Result, error) {
	return p.do(func(c *Conn) (*result.Result, error) {
		return c.Delete(req)
	})
}

// Modify performs a modify through the pool.
func (p *Pool) Modify(req *ldap.ModifyRequest) (*result.Result, error) {
	return p.do(func(c *Conn) (*result.Result, error) {
		return c.Modify(req)
	})
}

// ModifyDN performs a modify DN through the pool.
func (p *Pool) ModifyDN(req *ldap.ModifyDNRequest) (*result.Result, error) {
	return p.do(func(c *Conn) (*result.Result, error) {
		return c.ModifyDN(req)
	})
}

// Extended performs an extended operation through the pool.
func (p *Pool) Extended(req *ldap.ExtendedRequest) (*ldap.ExtendedResponse, *result.Result, error) {
	var resp *ldap.ExtendedResponse
	res, err := p.do(func(c *Conn) (*result.Result, error) {
		var r *result.Result
		var e error
		resp, r, e = c.Extended(req)
		return r, e
	})
	return resp, res, err
}

// Search performs a search through the pool.
func (p *Pool) Search(req *ldap.SearchRequest) (*ldap.SearchResult, *result.Result, error) {
	var sr *ldap.SearchResult
	res, err := p.do(func(c *Conn) (*result.Result, error) {
		var r *result.Result
		var e error
		sr, r, e = c.Search(req)
		return r, e
	})
	return sr, res, err
}

func (p *Pool) do(fn func(c *Conn) (*result.Result, error)) (*result.Result, error) {
	conn, err := p.Acquire()
	if err != nil {
		return result.FromError(err), err
	}

	res, err := fn(conn)
	if err == nil || !isConnectionError(err) {
		p.Release(conn)
		return res, err
	}

	p.reportDisconnect(conn.server, err)
	if !p.cfg.RetryOnInvalid {
		p.ReleaseDefunct(conn)
		return res, err
	}

	p.log.Info().Err(err).Str("server", conn.server).Msg("retrying on a replacement connection")
	replacement, rerr := p.ReplaceDefunct(conn)
	if rerr != nil {
		return res, err
	}

	res, err = fn(replacement)
	if err != nil && isConnectionError(err) {
		p.reportDisconnect(replacement.server, err)
		p.ReleaseDefunct(replacement)
		return res, err
	}
	p.Release(replacement)
	return res, err
}
