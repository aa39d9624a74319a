package ldif

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/ldaptools/ldapbatch/internal/result"
)

// RejectWriter appends rejected change records to an LDIF file, each
// preceded by a comment and a formatted result trailer. The version header
// is written exactly once, before the first entry. Write failures are
// logged and swallowed: losing a reject note must never abort the run.
type RejectWriter struct {
	w      *Writer
	closer io.Closer
	log    zerolog.Logger
}

// NewRejectWriter opens (appending) or creates the reject file.
func NewRejectWriter(path string, log zerolog.Logger) (*RejectWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening reject file: %w", err)
	}
	return &RejectWriter{
		w:      NewWriter(f),
		closer: f,
		log:    log.With().Str("component", "reject").Str("path", path).Logger(),
	}, nil
}

// NewRejectWriterTo builds a reject writer over an arbitrary writer.
func NewRejectWriterTo(w io.Writer, log zerolog.Logger) *RejectWriter {
	return &RejectWriter{w: NewWriter(w), log: log.With().Str("component", "reject").Logger()}
}

// Reject records one failed change record. Any of comment, rec, and res may
// be zero.
func (r *RejectWriter) Reject(comment string, rec Record, res *result.Result) {
	var lines []string
	if rec != nil {
		lines = rec.Lines()
	}
	r.write(comment, lines, res)
}

// RejectLines records a failure for raw record lines, used when the record
// itself could not be parsed.
func (r *RejectWriter) RejectLines(comment string, recordLines []string, res *result.Result) {
	r.write(comment, recordLines, res)
}

func (r *RejectWriter) write(comment string, recordLines []string, res *result.Result) {
	if r == nil {
		return
	}
	if err := r.w.WriteVersionHeader(); err != nil {
		r.log.Error().Err(err).Msg("cannot write reject file header")
		return
	}
	if comment != "" {
		if err := r.w.WriteComment(comment); err != nil {
			r.log.Error().Err(err).Msg("cannot write reject comment")
			return
		}
	}
	if res != nil {
		for _, line := range res.Format() {
			if err := r.w.WriteComment(line); err != nil {
				r.log.Error().Err(err).Msg("cannot write reject result trailer")
				return
			}
		}
	}
	if len(recordLines) > 0 {
		if err := r.w.WriteLines(recordLines); err != nil {
			r.log.Error().Err(err).Msg("cannot write rejected record")
			return
		}
	} else if err := r.w.WriteLines(nil); err != nil {
		r.log.Error().Err(err).Msg("cannot write reject separator")
		return
	}
	if err := r.w.Flush(); err != nil {
		r.log.Error().Err(err).Msg("cannot flush reject file")
	}
}

// Close flushes and closes the underlying file.
func (r *RejectWriter) Close() {
	if r == nil {
		return
	}
	if err := r.w.Flush(); err != nil {
		r.log.Error().Err(err).Msg("cannot flush reject file")
	}
	if r.closer != nil {
		if err := r.closer.Close(); err != nil {
			r.log.Error().Err(err).Msg("cannot close reject file")
		}
	}
}
