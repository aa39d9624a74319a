package ldif

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// TrailingSpaceBehavior selects how the reader treats attribute values with
// trailing spaces, which RFC 2849 requires to be base64-encoded.
type TrailingSpaceBehavior int

const (
	// TrailingSpaceReject fails the record.
	TrailingSpaceReject TrailingSpaceBehavior = iota
	// TrailingSpaceStrip removes the trailing spaces.
	TrailingSpaceStrip
	// TrailingSpaceRetain keeps the value as written.
	TrailingSpaceRetain
)

// ParseError describes a malformed change record.
type ParseError struct {
	// Line is the 1-based input line where the problem was detected.
	Line int
	// Message is the human-readable cause.
	Message string
	// MayContinueReading reports whether the reader is positioned at the
	// next record and can keep going.
	MayContinueReading bool
	// RecordLines are the raw unfolded lines of the offending record, for
	// echoing into a reject file.
	RecordLines []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// ReaderOptions configure a Reader.
type ReaderOptions struct {
	// DefaultAdd treats records without a changetype as adds.
	DefaultAdd bool
	// TrailingSpaces selects the trailing-space policy.
	TrailingSpaces TrailingSpaceBehavior
}

// Reader streams change records from LDIF input.
type Reader struct {
	scanner *bufio.Scanner
	opts    ReaderOptions

	line int
	eof  bool
}

// maxLineBytes bounds a single raw input line.
const maxLineBytes = 1 << 20

// NewReader returns a reader over r.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{scanner: scanner, opts: opts}
}

// Read returns the next change record, io.EOF at end of input, or a
// *ParseError for malformed content.
func (r *Reader) Read() (Record, error) {
	for {
		lines, first, err := r.nextParagraph()
		if err != nil {
			return nil, err
		}
		if lines == nil {
			return nil, io.EOF
		}

		// A version line may stand alone or head a record. Concatenated
		// input files put one at each file boundary, so any paragraph may
		// carry it; a record paragraph must start with dn: regardless.
		if strings.HasPrefix(lines[0], "version:") {
			lines = lines[1:]
			if len(lines) == 0 {
				continue
			}
			first++
		}

		return r.parseRecord(lines, first)
	}
}

// nextParagraph collects one blank-line-delimited group of unfolded,
// comment-stripped lines. Returns (nil, _, nil) at end of input.
func (r *Reader) nextParagraph() ([]string, int, error) {
	var lines []string
	first := 0
	flush := func(raw string) {
		if raw == "" || strings.HasPrefix(raw, "#") {
			return
		}
		if len(lines) == 0 {
			first = r.line
		}
		lines = append(lines, raw)
	}

	var current strings.Builder
	haveCurrent := false
	endParagraph := false
	for !endParagraph {
		raw, ok := r.nextLine()
		if !ok {
			if err := r.scanner.Err(); err != nil {
				return nil, 0, fmt.Errorf("reading LDIF input: %w", err)
			}
			endParagraph = true
			raw = ""
		}
		switch {
		case raw == "":
			if haveCurrent {
				flush(current.String())
				current.Reset()
				haveCurrent = false
			}
			if len(lines) > 0 {
				return lines, first, nil
			}
			if endParagraph {
				return nil, 0, nil
			}
		case raw[0] == ' ':
			if !haveCurrent {
				return nil, 0, &ParseError{
					Line:               r.line,
					Message:            "continuation line with no preceding line",
					MayContinueReading: true,
				}
			}
			current.WriteString(raw[1:])
		default:
			if haveCurrent {
				flush(current.String())
				current.Reset()
			}
			current.WriteString(raw)
			haveCurrent = true
		}
	}
	return lines, first, nil
}

func (r *Reader) nextLine() (string, bool) {
	if r.eof {
		return "", false
	}
	if !r.scanner.Scan() {
		r.eof = true
		return "", false
	}
	r.line++
	return strings.TrimSuffix(r.scanner.Text(), "\r"), true
}

func (r *Reader) parseRecord(lines []string, firstLine int) (Record, error) {
	fail := func(offset int, format string, args ...any) (Record, error) {
		return nil, &ParseError{
			Line:               firstLine + offset,
			Message:            fmt.Sprintf(format, args...),
			MayContinueReading: true,
			RecordLines:        lines,
		}
	}

	name, value, err := r.splitLine(lines[0])
	if err != nil {
		return fail(0, "%v", err)
	}
	if !strings.EqualFold(name, "dn") {
		return fail(0, "record must start with a dn: line, found %q", name)
	}
	dn := string(value)

	idx := 1
	var ctls []ldap.Control
	for idx < len(lines) {
		name, value, err := r.splitLine(lines[idx])
		if err != nil {
			return fail(idx, "%v", err)
		}
		if !strings.EqualFold(name, "control") {
			break
		}
		ctl, err := parseControlLine(string(value))
		if err != nil {
			return fail(idx, "%v", err)
		}
		ctls = append(ctls, ctl)
		idx++
	}

	changeType := ""
	if idx < len(lines) {
		name, value, err := r.splitLine(lines[idx])
		if err != nil {
			return fail(idx, "%v", err)
		}
		if strings.EqualFold(name, "changetype") {
			changeType = strings.ToLower(string(value))
			idx++
		}
	}
	if changeType == "" {
		if !r.opts.DefaultAdd {
			return fail(0, "record for %q has no changetype and default-add is not enabled", dn)
		}
		changeType = "add"
	}

	rest := lines[idx:]
	switch changeType {
	case "add":
		attrs, badLine, err := r.parseAttributes(rest)
		if err != nil {
			return fail(idx+badLine, "%v", err)
		}
		if len(attrs) == 0 {
			return fail(0, "add record for %q has no attributes", dn)
		}
		return NewAddRecord(dn, attrs, ctls), nil
	case "delete":
		if len(rest) > 0 {
			return fail(idx, "delete record for %q has trailing content", dn)
		}
		return NewDeleteRecord(dn, ctls), nil
	case "modify":
		changes, badLine, err := r.parseChanges(rest)
		if err != nil {
			return fail(idx+badLine, "%v", err)
		}
		return NewModifyRecord(dn, changes, ctls), nil
	case "moddn", "modrdn":
		rec, badLine, err := r.parseModifyDN(dn, ctls, rest)
		if err != nil {
			return fail(idx+badLine, "%v", err)
		}
		return rec, nil
	default:
		return fail(0, "unsupported changetype %q", changeType)
	}
}

func (r *Reader) parseAttributes(lines []string) ([]ldap.Attribute, int, error) {
	var attrs []ldap.Attribute
	index := map[string]int{}
	for i, line := range lines {
		name, value, err := r.splitLine(line)
		if err != nil {
			return nil, i, err
		}
		key := strings.ToLower(name)
		if pos, ok := index[key]; ok {
			attrs[pos].Vals = append(attrs[pos].Vals, string(value))
			continue
		}
		index[key] = len(attrs)
		attrs = append(attrs, ldap.Attribute{Type: name, Vals: []string{string(value)}})
	}
	return attrs, 0, nil
}

var modifyOps = map[string]uint{
	"add":       ldap.AddAttribute,
	"delete":    ldap.DeleteAttribute,
	"replace":   ldap.ReplaceAttribute,
	"increment": ldap.IncrementAttribute,
}

func (r *Reader) parseChanges(lines []string) ([]ldap.Change, int, error) {
	var changes []ldap.Change
	i := 0
	for i < len(lines) {
		opName, attrRaw, err := r.splitLine(lines[i])
		if err != nil {
			return nil, i, err
		}
		op, ok := modifyOps[strings.ToLower(opName)]
		if !ok {
			return nil, i, fmt.Errorf("expected a modify operation (add/delete/replace/increment), found %q", opName)
		}
		attr := string(attrRaw)
		change := ldap.Change{Operation: op, Modification: ldap.PartialAttribute{Type: attr}}
		i++
		for i < len(lines) && lines[i] != "-" {
			name, value, err := r.splitLine(lines[i])
			if err != nil {
				return nil, i, err
			}
			if !strings.EqualFold(name, attr) {
				return nil, i, fmt.Errorf("value line for %q does not match the %s target %q", name, modifyOpNames[op], attr)
			}
			change.Modification.Vals = append(change.Modification.Vals, string(value))
			i++
		}
		if i < len(lines) {
			i++ // consume "-"
		}
		changes = append(changes, change)
	}
	return changes, 0, nil
}

func (r *Reader) parseModifyDN(dn string, ctls []ldap.Control, lines []string) (Record, int, error) {
	newRDN := ""
	deleteOld := false
	haveNewRDN := false
	haveDeleteOld := false
	newSuperior := ""
	for i, line := range lines {
		name, value, err := r.splitLine(line)
		if err != nil {
			return nil, i, err
		}
		switch strings.ToLower(name) {
		case "newrdn":
			newRDN = string(value)
			haveNewRDN = true
		case "deleteoldrdn":
			switch string(value) {
			case "1", "true":
				deleteOld = true
			case "0", "false":
				deleteOld = false
			default:
				return nil, i, fmt.Errorf("deleteoldrdn must be 0 or 1, found %q", value)
			}
			haveDeleteOld = true
		case "newsuperior":
			newSuperior = string(value)
		default:
			return nil, i, fmt.Errorf("unexpected line %q in modify DN record", name)
		}
	}
	if !haveNewRDN {
		return nil, 0, fmt.Errorf("modify DN record for %q has no newrdn", dn)
	}
	if !haveDeleteOld {
		return nil, 0, fmt.Errorf("modify DN record for %q has no deleteoldrdn", dn)
	}
	return NewModifyDNRecord(dn, newRDN, deleteOld, newSuperior, ctls), 0, nil
}

// splitLine separates "name: value", handling base64 (::) and file URL (:<)
// value forms and applying the trailing-space policy.
func (r *Reader) splitLine(line string) (string, []byte, error) {
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return "", nil, fmt.Errorf("line %q has no attribute separator", line)
	}
	name := line[:colon]
	rest := line[colon+1:]

	switch {
	case strings.HasPrefix(rest, ":"):
		encoded := strings.TrimLeft(rest[1:], " ")
		value, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return "", nil, fmt.Errorf("invalid base64 value for %q: %v", name, err)
		}
		return name, value, nil
	case strings.HasPrefix(rest, "<"):
		return "", nil, fmt.Errorf("URL-valued attribute %q is not supported", name)
	default:
		value := strings.TrimLeft(rest, " ")
		if strings.HasSuffix(value, " ") {
			switch r.opts.TrailingSpaces {
			case TrailingSpaceReject:
				return "", nil, fmt.Errorf("value for %q ends with unencoded trailing spaces", name)
			case TrailingSpaceStrip:
				value = strings.TrimRight(value, " ")
			}
		}
		return name, []byte(value), nil
	}
}

// parseControlLine parses the RFC 2849 control extension:
// "oid [true|false] [: value | :: base64-value]".
func parseControlLine(s string) (ldap.Control, error) {
	s = strings.TrimSpace(s)
	oid := s
	rest := ""
	if i := strings.IndexAny(s, " :"); i >= 0 {
		oid = s[:i]
		rest = strings.TrimLeft(s[i:], " ")
	}
	if oid == "" {
		return nil, fmt.Errorf("control line has no OID")
	}

	criticality := false
	if tok, after, _ := strings.Cut(rest, " "); tok == "true" || tok == "false" {
		criticality, _ = strconv.ParseBool(tok)
		rest = strings.TrimLeft(after, " ")
	} else if tok, after, ok := strings.Cut(rest, ":"); ok && (strings.TrimSpace(tok) == "true" || strings.TrimSpace(tok) == "false") {
		criticality, _ = strconv.ParseBool(strings.TrimSpace(tok))
		rest = ":" + after
	}

	value := ""
	switch {
	case rest == "":
	case strings.HasPrefix(rest, "::"):
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimLeft(rest[2:], " "))
		if err != nil {
			return nil, fmt.Errorf("control value is not valid base64: %v", err)
		}
		value = string(decoded)
	case strings.HasPrefix(rest, ":"):
		value = strings.TrimLeft(rest[1:], " ")
	default:
		return nil, fmt.Errorf("malformed control line near %q", rest)
	}
	return ldap.NewControlString(oid, criticality, value), nil
}
