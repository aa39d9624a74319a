package engine

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/ldaptools/ldapbatch/internal/extop"
	"github.com/ldaptools/ldapbatch/internal/ldif"
	"github.com/ldaptools/ldapbatch/internal/result"
)

// undeleteSourceAttribute marks an add record as a soft-delete
// resurrection; its presence triggers the undelete control.
const undeleteSourceAttribute = "ds-undelete-from-dn"

// passwordAttributes trigger the conditional password controls on modify.
var passwordAttributes = []string{"userPassword", "authPassword"}

// dispatch applies one change record. A nil result means the request was
// buffered for a later multi-update.
func (e *Engine) dispatch(rec ldif.Record) *result.Result {
	if e.opts.Verbose {
		e.echo(rec)
	}
	switch r := rec.(type) {
	case *ldif.AddRecord:
		return e.doAdd(r)
	case *ldif.DeleteRecord:
		return e.doDelete(r)
	case *ldif.ModifyRecord:
		return e.doModify(r)
	case *ldif.ModifyDNRecord:
		return e.doModifyDN(r)
	default:
		return result.New(result.LocalError, "",
			fmt.Sprintf("unsupported change record type %T", rec), nil, nil)
	}
}

func (e *Engine) doAdd(rec *ldif.AddRecord) *result.Result {
	ctrls := e.comp.forAdd(rec.Controls(), rec.HasAttribute(undeleteSourceAttribute), e.txnID)
	fmt.Fprintf(e.out, "Adding entry %s\n", rec.DN())

	if e.multi != nil {
		e.multi.Add(extop.EncodeAddOp(rec.DN(), rec.Attributes), ctrls)
		return nil
	}
	if e.opts.DryRun {
		fmt.Fprintf(e.out, "Dry run: not sending the add request for %s\n", rec.DN())
		return result.NewSuccess()
	}

	req := &ldap.AddRequest{DN: rec.DN(), Attributes: rec.Attributes, Controls: ctrls}
	if e.txnConn != nil {
		res, _ := e.txnConn.Add(req)
		return res
	}
	res, _ := e.dir.Add(req)
	return e.chaseReferrals(res, func(conn Conn, dn string) *result.Result {
		next := *req
		if dn != "" {
			next.DN = dn
		}
		out, _ := conn.Add(&next)
		return out
	})
}

func (e *Engine) doDelete(rec *ldif.DeleteRecord) *result.Result {
	ctrls := e.comp.forDelete(rec.Controls(), e.txnID)
	fmt.Fprintf(e.out, "Deleting entry %s\n", rec.DN())

	if e.multi != nil {
		e.multi.Add(extop.EncodeDeleteOp(rec.DN()), ctrls)
		return nil
	}
	if e.opts.DryRun {
		fmt.Fprintf(e.out, "Dry run: not sending the delete request for %s\n", rec.DN())
		return result.NewSuccess()
	}

	req := &ldap.DelRequest{DN: rec.DN(), Controls: ctrls}
	if e.txnConn != nil {
		res, _ := e.txnConn.Delete(req)
		return res
	}
	res, _ := e.dir.Delete(req)
	return e.chaseReferrals(res, func(conn Conn, dn string) *result.Result {
		next := *req
		if dn != "" {
			next.DN = dn
		}
		out, _ := conn.Delete(&next)
		return out
	})
}

func (e *Engine) doModify(rec *ldif.ModifyRecord) *result.Result {
	ctrls := e.comp.forModify(rec.Controls(), rec.TargetsAttribute(passwordAttributes...), e.txnID)
	fmt.Fprintf(e.out, "Modifying entry %s\n", rec.DN())

	if e.multi != nil {
		e.multi.Add(extop.EncodeModifyOp(rec.DN(), rec.Changes), ctrls)
		return nil
	}
	if e.opts.DryRun {
		fmt.Fprintf(e.out, "Dry run: not sending the modify request for %s\n", rec.DN())
		return result.NewSuccess()
	}

	req := &ldap.ModifyRequest{DN: rec.DN(), Changes: rec.Changes, Controls: ctrls}
	if e.txnConn != nil {
		res, _ := e.txnConn.Modify(req)
		return res
	}
	res, _ := e.dir.Modify(req)
	return e.chaseReferrals(res, func(conn Conn, dn string) *result.Result {
		next := *req
		if dn != "" {
			next.DN = dn
		}
		out, _ := conn.Modify(&next)
		return out
	})
}

func (e *Engine) doModifyDN(rec *ldif.ModifyDNRecord) *result.Result {
	ctrls := e.comp.forModifyDN(rec.Controls(), e.txnID)
	fmt.Fprintf(e.out, "Modifying the DN of entry %s\n", rec.DN())

	if e.multi != nil {
		e.multi.Add(extop.EncodeModifyDNOp(rec.DN(), rec.NewRDN, rec.DeleteOldRDN, rec.NewSuperior), ctrls)
		return nil
	}
	if e.opts.DryRun {
		fmt.Fprintf(e.out, "Dry run: not sending the modify DN request for %s\n", rec.DN())
		return result.NewSuccess()
	}

	req := &ldap.ModifyDNRequest{
		DN:           rec.DN(),
		NewRDN:       rec.NewRDN,
		DeleteOldRDN: rec.DeleteOldRDN,
		NewSuperior:  rec.NewSuperior,
		Controls:     ctrls,
	}
	if e.txnConn != nil {
		res, _ := e.txnConn.ModifyDN(req)
		return res
	}
	res, _ := e.dir.ModifyDN(req)
	return e.chaseReferrals(res, func(conn Conn, dn string) *result.Result {
		next := *req
		if dn != "" {
			next.DN = dn
		}
		out, _ := conn.ModifyDN(&next)
		return out
	})
}

// referralHopLimit bounds a referral chase so looped referrals terminate.
const referralHopLimit = 5

// chaseReferrals follows referral results over one-shot connections. The
// referral URL's DN part, when present, re-targets the request; apply
// re-issues the request on the referred server.
func (e *Engine) chaseReferrals(res *result.Result, apply func(conn Conn, dn string) *result.Result) *result.Result {
	if !e.opts.FollowReferrals {
		return res
	}
	for hop := 0; hop < referralHopLimit; hop++ {
		if res == nil || res.Code != result.Referral || len(res.ReferralURLs) == 0 {
			return res
		}
		conn, dn, ok := e.connectReferral(res.ReferralURLs)
		if !ok {
			return res
		}
		res = apply(conn, dn)
		e.dir.ReleaseDefunct(conn)
	}
	if res != nil && res.Code == result.Referral {
		return result.New(result.ReferralLimitExceeded, "",
			fmt.Sprintf("gave up after following %d referral hops", referralHopLimit),
			res.ReferralURLs, nil)
	}
	return res
}

// connectReferral opens a connection to the first reachable referral URL.
func (e *Engine) connectReferral(urls []string) (Conn, string, bool) {
	for _, ref := range urls {
		server, dn, err := splitReferralURL(ref)
		if err != nil {
			e.log.Debug().Str("url", ref).Err(err).Msg("skipping unusable referral URL")
			continue
		}
		conn, err := e.dir.Connect(server)
		if err != nil {
			e.log.Debug().Str("server", server).Err(err).Msg("referred server is unreachable")
			continue
		}
		fmt.Fprintf(e.out, "Following referral to %s\n", server)
		return conn, dn, true
	}
	return nil, "", false
}

// splitReferralURL separates an LDAP referral URL into the server to dial
// and the optional target DN carried in the URL path.
func splitReferralURL(ref string) (server, dn string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "ldap" && u.Scheme != "ldaps" {
		return "", "", fmt.Errorf("unsupported referral scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("referral URL %q has no host", ref)
	}
	return u.Scheme + "://" + u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func rejectComment(rec ldif.Record) string {
	switch rec.(type) {
	case *ldif.AddRecord:
		return "Unable to add entry"
	case *ldif.DeleteRecord:
		return "Unable to delete entry"
	case *ldif.ModifyRecord:
		return "Unable to modify entry"
	case *ldif.ModifyDNRecord:
		return "Unable to modify the DN of entry"
	default:
		return "Unable to apply change record"
	}
}
