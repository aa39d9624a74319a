package engine

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/ldaptools/ldapbatch/internal/ldif"
	"github.com/ldaptools/ldapbatch/internal/result"
)

// runBulk applies one modify record to every configured target: explicit
// DNs first, then DN files, then filters, then filter files, each in the
// order supplied. A non-modify record in this mode is a parameter error.
func (e *Engine) runBulk(ctx context.Context, rec ldif.Record) bool {
	mod, ok := rec.(*ldif.ModifyRecord)
	if !ok {
		res := result.New(result.ParamError, "",
			"only modify change records may be combined with target selection", nil, nil)
		e.rejects.Reject("Unable to apply a non-modify change record to selected targets", rec, res)
		e.display(res, false)
		fatal := !e.opts.ContinueOnError
		e.note(result.ParamError, fatal)
		return !fatal
	}

	if e.opts.Verbose {
		e.echo(rec)
	}
	for _, dn := range e.opts.DNTargets {
		if !e.modifyWithDN(ctx, mod, dn) {
			return false
		}
	}
	for _, path := range e.opts.DNFiles {
		dns, err := readListFile(path)
		if err != nil {
			e.fileFailure("target DNs", path, err)
			return false
		}
		for _, dn := range dns {
			if !e.modifyWithDN(ctx, mod, dn) {
				return false
			}
		}
	}
	for _, filter := range e.opts.Filters {
		if !e.modifyMatchingFilter(ctx, mod, filter) {
			return false
		}
	}
	for _, path := range e.opts.FilterFiles {
		filters, err := readListFile(path)
		if err != nil {
			e.fileFailure("search filters", path, err)
			return false
		}
		for _, filter := range filters {
			if !e.modifyMatchingFilter(ctx, mod, filter) {
				return false
			}
		}
	}
	return true
}

func (e *Engine) modifyWithDN(ctx context.Context, rec *ldif.ModifyRecord, dn string) bool {
	e.barrier.await(ctx)
	target := rec.WithDN(dn)
	return e.interpret(target, e.doModify(target))
}

// modifyMatchingFilter runs a paged subtree search under the record's DN
// and applies the modification to every matching entry. One connection is
// pinned for the whole sweep; a connection-classified search failure is
// retried once on a replacement when retries are enabled, and the
// processed-DN set keeps retried pages idempotent.
func (e *Engine) modifyMatchingFilter(ctx context.Context, rec *ldif.ModifyRecord, filter string) bool {
	conn, err := e.dir.Acquire()
	if err != nil {
		res := result.FromError(err)
		e.rejects.Reject("Unable to acquire a connection for a filtered modify pass", rec, res)
		e.display(res, false)
		e.note(res.Code, true)
		return false
	}

	processed := make(map[string]struct{})
	paging := ldap.NewControlPaging(uint32(e.opts.SearchPageSize))
	retried := false

	for {
		if ctx.Err() != nil {
			e.dir.Release(conn)
			e.note(result.UserCanceled, true)
			return false
		}

		req := ldap.NewSearchRequest(rec.DN(), ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
			0, 0, false, filter, []string{"1.1"}, e.comp.forSearch(paging))
		sr, res, err := conn.Search(req)

		// Entries from a partial page are applied before the failure is
		// judged; the processed set keeps a retried page from repeating them.
		if sr != nil {
			for _, entry := range sr.Entries {
				key := foldDN(entry.DN)
				if _, done := processed[key]; done {
					continue
				}
				processed[key] = struct{}{}
				target := rec.WithDN(entry.DN)
				e.barrier.await(ctx)
				if !e.interpret(target, e.doModify(target)) {
					e.dir.Release(conn)
					return false
				}
			}
		}

		if err != nil || !res.IsSuccess() {
			if res.Code.IsConnectionUsable() {
				e.rejects.Reject(fmt.Sprintf("Search with filter %q failed", filter), rec, res)
				e.display(res, false)
				fatal := !e.opts.ContinueOnError
				e.note(res.Code, fatal)
				e.dir.Release(conn)
				return !fatal
			}
			if e.opts.RetryFailedOperations && !retried {
				retried = true
				replacement, rerr := e.dir.ReplaceDefunct(conn)
				if rerr == nil {
					conn = replacement
					continue
				}
			} else {
				e.dir.ReleaseDefunct(conn)
			}
			e.rejects.Reject(fmt.Sprintf("Search with filter %q failed", filter), rec, res)
			e.display(res, false)
			e.note(res.Code, true)
			return false
		}

		pagingResult, ok := ldap.FindControl(sr.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging)
		if !ok {
			missing := result.New(result.ControlNotFound, "",
				fmt.Sprintf("the response to the search with filter %q did not include a simple paged results control", filter),
				nil, nil)
			e.rejects.Reject("Paged search response missing its continuation control", rec, missing)
			e.display(missing, false)
			e.note(result.ControlNotFound, true)
			e.dir.Release(conn)
			return false
		}
		if len(pagingResult.Cookie) == 0 {
			break
		}
		paging.SetCookie(pagingResult.Cookie)
	}

	e.dir.Release(conn)
	return true
}

func (e *Engine) fileFailure(what, path string, err error) {
	res := result.New(result.LocalError, "", err.Error(), nil, nil)
	e.rejects.Reject(fmt.Sprintf("Unable to read %s from %s", what, path), nil, res)
	e.display(res, false)
	e.note(result.LocalError, true)
}

// readListFile reads one value per line, skipping blank lines and
// comments. Used for DN files and filter files.
func readListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var values []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		values = append(values, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return values, nil
}
