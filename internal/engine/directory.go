package engine

import (
	"fmt"

	"github.com/go-ldap/ldap/v3"

	"github.com/ldaptools/ldapbatch/internal/pool"
	"github.com/ldaptools/ldapbatch/internal/result"
)

// Conn is one directory connection. Grouped changes that must share a
// single connection (transactions, paged sweeps) hold a Conn for the
// duration of the group.
type Conn interface {
	Add(req *ldap.AddRequest) (*result.Result, error)
	Delete(req *ldap.DelRequest) (*result.Result, error)
	Modify(req *ldap.ModifyRequest) (*result.Result, error)
	ModifyDN(req *ldap.ModifyDNRequest) (*result.Result, error)
	Extended(req *ldap.ExtendedRequest) (*ldap.ExtendedResponse, *result.Result, error)
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, *result.Result, error)
}

// Directory is the engine's view of the connection pool.
type Directory interface {
	Add(req *ldap.AddRequest) (*result.Result, error)
	Delete(req *ldap.DelRequest) (*result.Result, error)
	Modify(req *ldap.ModifyRequest) (*result.Result, error)
	ModifyDN(req *ldap.ModifyDNRequest) (*result.Result, error)
	Extended(req *ldap.ExtendedRequest) (*ldap.ExtendedResponse, *result.Result, error)

	Acquire() (Conn, error)
	Connect(serverURL string) (Conn, error)
	Release(conn Conn)
	ReleaseDefunct(conn Conn)
	ReplaceDefunct(conn Conn) (Conn, error)

	SetNotificationHandler(fn pool.NotificationFunc)
}

// NewDirectory adapts a connection pool to the Directory interface.
func NewDirectory(p *pool.Pool) Directory {
	return &poolDirectory{p: p}
}

type poolDirectory struct {
	p *pool.Pool
}

func (d *poolDirectory) Add(req *ldap.AddRequest) (*result.Result, error) {
	return d.p.Add(req)
}

func (d *poolDirectory) Delete(req *ldap.DelRequest) (*result.Result, error) {
	return d.p.Delete(req)
}

func (d *poolDirectory) Modify(req *ldap.ModifyRequest) (*result.Result, error) {
	return d.p.Modify(req)
}

func (d *poolDirectory) ModifyDN(req *ldap.ModifyDNRequest) (*result.Result, error) {
	return d.p.ModifyDN(req)
}

func (d *poolDirectory) Extended(req *ldap.ExtendedRequest) (*ldap.ExtendedResponse, *result.Result, error) {
	return d.p.Extended(req)
}

func (d *poolDirectory) Acquire() (Conn, error) {
	conn, err := d.p.Acquire()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (d *poolDirectory) Connect(serverURL string) (Conn, error) {
	conn, err := d.p.Connect(serverURL)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (d *poolDirectory) Release(conn Conn) {
	if pc, ok := conn.(*pool.Conn); ok {
		d.p.Release(pc)
	}
}

func (d *poolDirectory) ReleaseDefunct(conn Conn) {
	if pc, ok := conn.(*pool.Conn); ok {
		d.p.ReleaseDefunct(pc)
	}
}

func (d *poolDirectory) ReplaceDefunct(conn Conn) (Conn, error) {
	pc, ok := conn.(*pool.Conn)
	if !ok {
		return nil, fmt.Errorf("cannot replace a connection of type %T", conn)
	}
	replacement, err := d.p.ReplaceDefunct(pc)
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

func (d *poolDirectory) SetNotificationHandler(fn pool.NotificationFunc) {
	d.p.SetNotificationHandler(fn)
}
