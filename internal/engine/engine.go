package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/ldaptools/ldapbatch/internal/extop"
	"github.com/ldaptools/ldapbatch/internal/ldif"
	"github.com/ldaptools/ldapbatch/internal/pool"
	"github.com/ldaptools/ldapbatch/internal/result"
)

// RecordSource yields change records in input order. io.EOF ends the
// stream; a *ldif.ParseError may allow reading to continue.
type RecordSource interface {
	Read() (ldif.Record, error)
}

// Engine drives a batch run: it pulls change records, composes and
// dispatches requests, applies the failure policy, and finalizes any
// grouping mode.
type Engine struct {
	opts    *Options
	dir     Directory
	reader  RecordSource
	rejects *ldif.RejectWriter
	comp    *composer
	barrier *rateBarrier
	log     zerolog.Logger
	out     io.Writer
	errOut  io.Writer

	txnID   []byte
	txnConn Conn
	multi   *extop.MultiUpdateRequest

	fatalCode   result.ResultCode
	hasFatal    bool
	failureCode result.ResultCode
	hasFailure  bool
}

// New builds an engine over a validated option set. rejects may be nil.
func New(dir Directory, reader RecordSource, rejects *ldif.RejectWriter, opts *Options, log zerolog.Logger, out, errOut io.Writer) (*Engine, error) {
	comp, err := newComposer(&opts.Controls)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		opts:    opts,
		dir:     dir,
		reader:  reader,
		rejects: rejects,
		comp:    comp,
		log:     log.With().Str("component", "engine").Logger(),
		out:     out,
		errOut:  errOut,
	}
	if opts.RatePerSecond > 0 {
		e.barrier = newRateBarrier(opts.RatePerSecond)
	}
	return e, nil
}

// Run processes the whole stream and returns the final result code: the
// first fatal failure if any, else the first continuable failure, else
// success.
func (e *Engine) Run(ctx context.Context) result.ResultCode {
	e.dir.SetNotificationHandler(e.handleNotification)

	if e.opts.MultiUpdate {
		e.multi = extop.NewMultiUpdateRequest(e.opts.MultiUpdateErrorBehavior)
	}
	if e.opts.UseTransaction {
		if !e.beginTransaction() {
			return e.finalCode()
		}
	}

	e.loop(ctx)
	e.finish()
	return e.finalCode()
}

func (e *Engine) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			e.note(result.UserCanceled, true)
			return
		}
		if !e.opts.BulkModify() {
			e.barrier.await(ctx)
		}

		rec, err := e.reader.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if !e.handleReadError(err) {
				return
			}
			continue
		}

		if e.opts.BulkModify() {
			if !e.runBulk(ctx, rec) {
				return
			}
			continue
		}
		if !e.applyRecord(rec) {
			return
		}
	}
}

func (e *Engine) handleReadError(err error) bool {
	var perr *ldif.ParseError
	if errors.As(err, &perr) {
		res := result.New(result.LocalError, "", perr.Error(), nil, nil)
		e.rejects.RejectLines("Unable to parse a change record", perr.RecordLines, res)
		fmt.Fprintf(e.errOut, "Unable to parse a change record: %v\n", perr)
		if perr.MayContinueReading && !e.opts.UseTransaction {
			e.note(result.LocalError, false)
			return true
		}
		e.note(result.LocalError, true)
		return false
	}

	res := result.New(result.LocalError, "", err.Error(), nil, nil)
	e.rejects.Reject("Unable to read a change record", nil, res)
	fmt.Fprintf(e.errOut, "Unable to read a change record: %v\n", err)
	e.note(result.LocalError, true)
	return false
}

func (e *Engine) applyRecord(rec ldif.Record) bool {
	res := e.dispatch(rec)
	if res == nil {
		// buffered for multi-update
		return true
	}
	return e.interpret(rec, res)
}

// interpret applies the failure policy to one operation result and
// reports whether the loop may continue.
func (e *Engine) interpret(rec ldif.Record, res *result.Result) bool {
	switch res.Code {
	case result.Success, result.NoOperation:
		e.display(res, true)
		return true
	case result.AssertionFailed:
		comment := fmt.Sprintf("The assertion %q did not match the target entry", e.comp.assertionFilter)
		e.rejects.Reject(comment, rec, res)
		e.display(res, false)
		e.note(res.Code, true)
		return false
	}

	e.rejects.Reject(rejectComment(rec), rec, res)
	e.display(res, false)
	fatal := e.opts.UseTransaction || !e.opts.ContinueOnError
	e.note(res.Code, fatal)
	return !fatal
}

func (e *Engine) beginTransaction() bool {
	conn, err := e.dir.Acquire()
	if err != nil {
		fmt.Fprintf(e.errOut, "Unable to acquire a connection to start a transaction: %v\n", err)
		e.note(result.FromError(err).Code, true)
		return false
	}
	resp, res, err := conn.Extended(extop.NewStartTransactionRequest())
	if err != nil || !res.IsSuccess() {
		fmt.Fprintln(e.errOut, "Unable to start a transaction")
		e.display(res, false)
		e.dir.ReleaseDefunct(conn)
		e.note(res.Code, true)
		return false
	}
	id, err := extop.DecodeTransactionID(resp)
	if err != nil {
		fmt.Fprintf(e.errOut, "Unable to decode the transaction identifier: %v\n", err)
		e.dir.Release(conn)
		e.note(result.DecodingError, true)
		return false
	}
	e.txnID = id
	e.txnConn = conn
	fmt.Fprintf(e.out, "Started transaction %s\n", extop.FormatID(id))
	return true
}

// finish settles the grouping mode: commits or aborts an open
// transaction, or sends the buffered multi-update request.
func (e *Engine) finish() {
	if e.txnConn != nil {
		e.endTransaction()
		return
	}
	if e.multi != nil {
		e.sendMultiUpdate()
	}
}

func (e *Engine) endTransaction() {
	commit := !e.hasFatal
	resp, res, err := e.txnConn.Extended(extop.NewEndTransactionRequest(e.txnID, commit))
	if err != nil || !res.IsSuccess() {
		fmt.Fprintf(e.errOut, "Unable to end transaction %s\n", extop.FormatID(e.txnID))
		e.display(res, false)
		if resp != nil {
			if etr, derr := extop.DecodeEndTransactionResponse(resp); derr == nil && etr.FailedMessageID >= 0 {
				fmt.Fprintf(e.errOut, "The operation with message ID %d caused the transaction to fail\n", etr.FailedMessageID)
			}
		}
		e.note(res.Code, true)
	} else if commit {
		fmt.Fprintf(e.out, "Transaction %s committed\n", extop.FormatID(e.txnID))
	} else {
		fmt.Fprintf(e.out, "Transaction %s aborted\n", extop.FormatID(e.txnID))
	}
	e.dir.Release(e.txnConn)
	e.txnConn = nil
}

func (e *Engine) sendMultiUpdate() {
	if e.multi.Len() == 0 {
		return
	}
	fmt.Fprintf(e.out, "Sending a multi-update request containing %d operations\n", e.multi.Len())
	resp, res, err := e.dir.Extended(e.multi.Encode())
	if err != nil || !res.IsSuccess() {
		fmt.Fprintln(e.errOut, "The multi-update request failed")
		e.display(res, false)
		e.note(res.Code, true)
		return
	}
	e.display(res, true)

	mur, err := extop.DecodeMultiUpdateResponse(resp)
	if err != nil {
		fmt.Fprintf(e.errOut, "Unable to decode the multi-update response: %v\n", err)
		e.note(result.DecodingError, true)
		return
	}
	fmt.Fprintf(e.out, "Multi-update changes applied: %s\n", mur.ChangesApplied)
	for i, opRes := range mur.Results {
		fmt.Fprintf(e.out, "Operation %d:\n", i+1)
		ok := opRes.Code == result.Success || opRes.Code == result.NoOperation
		e.display(opRes, ok)
		if !ok {
			e.note(opRes.Code, false)
		}
	}
}

func (e *Engine) note(code result.ResultCode, fatal bool) {
	if fatal {
		if !e.hasFatal {
			e.hasFatal = true
			e.fatalCode = code
		}
		return
	}
	if !e.hasFailure {
		e.hasFailure = true
		e.failureCode = code
	}
}

func (e *Engine) finalCode() result.ResultCode {
	if e.hasFatal {
		return e.fatalCode
	}
	if e.hasFailure {
		return e.failureCode
	}
	return result.Success
}

func (e *Engine) handleNotification(n pool.Notification) {
	fmt.Fprintf(e.errOut, "Unsolicited notification from %s: %s: %s\n",
		n.Server, extop.Describe(n.OID), n.Message)
}
