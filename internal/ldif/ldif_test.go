package ldif

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldaptools/ldapbatch/internal/result"
)

func readAll(t *testing.T, input string, opts ReaderOptions) []Record {
	t.Helper()
	r := NewReader(strings.NewReader(input), opts)
	var records []Record
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return records
		}
		require.NoError(t, err)
		records = append(records, rec)
	}
}

func TestReadAddRecord(t *testing.T) {
	input := `version: 1

# a new user
dn: uid=jdoe,ou=people,dc=example,dc=com
changetype: add
objectClass: inetOrgPerson
objectClass: person
cn: John Doe
sn:: RG/DqQ==
description: spans
  two lines
`
	records := readAll(t, input, ReaderOptions{})
	require.Len(t, records, 1)

	add, ok := records[0].(*AddRecord)
	require.True(t, ok)
	assert.Equal(t, "uid=jdoe,ou=people,dc=example,dc=com", add.DN())
	require.Len(t, add.Attributes, 4)
	assert.Equal(t, []string{"inetOrgPerson", "person"}, add.Attributes[0].Vals)
	assert.Equal(t, "Doé", add.Attributes[2].Vals[0], "base64 value must decode")
	assert.Equal(t, "spanstwo lines", add.Attributes[3].Vals[0], "continuation joins without the leading space")
	assert.True(t, add.HasAttribute("OBJECTCLASS"))
	assert.False(t, add.HasAttribute("ds-undelete-from-dn"))
}

func TestReadConcatenatedFilesWithVersionHeaders(t *testing.T) {
	input := `version: 1
dn: uid=a,dc=example,dc=com
changetype: delete

version: 1

dn: uid=b,dc=example,dc=com
changetype: delete
`
	records := readAll(t, input, ReaderOptions{})
	require.Len(t, records, 2, "a version header at a file boundary is not a record")
	assert.Equal(t, "uid=a,dc=example,dc=com", records[0].DN())
	assert.Equal(t, "uid=b,dc=example,dc=com", records[1].DN())
}

func TestReadDefaultAdd(t *testing.T) {
	input := "dn: uid=a,dc=example,dc=com\ncn: A\n"

	_, err := NewReader(strings.NewReader(input), ReaderOptions{}).Read()
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.MayContinueReading)

	records := readAll(t, input, ReaderOptions{DefaultAdd: true})
	require.Len(t, records, 1)
	_, ok := records[0].(*AddRecord)
	assert.True(t, ok)
}

func TestReadDeleteAndModifyDN(t *testing.T) {
	input := `dn: uid=old,ou=people,dc=example,dc=com
changetype: delete

dn: uid=old,ou=people,dc=example,dc=com
changetype: modrdn
newrdn: uid=new
deleteoldrdn: 1
newsuperior: ou=archive,dc=example,dc=com
`
	records := readAll(t, input, ReaderOptions{})
	require.Len(t, records, 2)

	_, ok := records[0].(*DeleteRecord)
	require.True(t, ok)

	mdn, ok := records[1].(*ModifyDNRecord)
	require.True(t, ok)
	assert.Equal(t, "uid=new", mdn.NewRDN)
	assert.True(t, mdn.DeleteOldRDN)
	assert.Equal(t, "ou=archive,dc=example,dc=com", mdn.NewSuperior)
}

func TestReadModifyRecord(t *testing.T) {
	input := `dn: uid=jdoe,ou=people,dc=example,dc=com
control: 1.3.6.1.4.1.4203.1.10.2 true
control: 1.2.3.4 false: opaque
changetype: modify
replace: userPassword
userPassword: s3cret
-
add: description
description: first
description: second
-
delete: seeAlso
-
increment: uidNumber
uidNumber: 1
-
`
	records := readAll(t, input, ReaderOptions{})
	require.Len(t, records, 1)

	mod, ok := records[0].(*ModifyRecord)
	require.True(t, ok)
	require.Len(t, mod.Changes, 4)
	assert.Equal(t, uint(ldap.ReplaceAttribute), mod.Changes[0].Operation)
	assert.Equal(t, []string{"s3cret"}, mod.Changes[0].Modification.Vals)
	assert.Equal(t, uint(ldap.AddAttribute), mod.Changes[1].Operation)
	assert.Equal(t, []string{"first", "second"}, mod.Changes[1].Modification.Vals)
	assert.Equal(t, uint(ldap.DeleteAttribute), mod.Changes[2].Operation)
	assert.Empty(t, mod.Changes[2].Modification.Vals)
	assert.Equal(t, uint(ldap.IncrementAttribute), mod.Changes[3].Operation)

	assert.True(t, mod.TargetsAttribute("userpassword", "authpassword"))
	assert.False(t, mod.TargetsAttribute("authpassword"))

	require.Len(t, mod.Controls(), 2)
	first := mod.Controls()[0].(*ldap.ControlString)
	assert.Equal(t, "1.3.6.1.4.1.4203.1.10.2", first.GetControlType())
	assert.True(t, first.Criticality)
	second := mod.Controls()[1].(*ldap.ControlString)
	assert.False(t, second.Criticality)
	assert.Equal(t, "opaque", second.ControlValue)
}

func TestTrailingSpaceBehavior(t *testing.T) {
	input := "dn: uid=a,dc=example,dc=com\nchangetype: add\ncn: padded  \n"

	_, err := NewReader(strings.NewReader(input), ReaderOptions{TrailingSpaces: TrailingSpaceReject}).Read()
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Message, "trailing spaces")
	assert.NotEmpty(t, perr.RecordLines)

	rec, err := NewReader(strings.NewReader(input), ReaderOptions{TrailingSpaces: TrailingSpaceStrip}).Read()
	require.NoError(t, err)
	assert.Equal(t, "padded", rec.(*AddRecord).Attributes[0].Vals[0])

	rec, err = NewReader(strings.NewReader(input), ReaderOptions{TrailingSpaces: TrailingSpaceRetain}).Read()
	require.NoError(t, err)
	assert.Equal(t, "padded  ", rec.(*AddRecord).Attributes[0].Vals[0])
}

func TestParseErrorRecovery(t *testing.T) {
	input := `dn: uid=bad,dc=example,dc=com
changetype: teleport

dn: uid=good,dc=example,dc=com
changetype: delete
`
	r := NewReader(strings.NewReader(input), ReaderOptions{})

	_, err := r.Read()
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.MayContinueReading)
	assert.Contains(t, perr.Message, "teleport")

	rec, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "uid=good,dc=example,dc=com", rec.DN())

	_, err = r.Read()
	assert.Equal(t, io.EOF, err)
}

func TestRecordLines(t *testing.T) {
	rec := NewModifyRecord("uid=a,dc=example,dc=com", []ldap.Change{
		{Operation: ldap.ReplaceAttribute, Modification: ldap.PartialAttribute{Type: "cn", Vals: []string{"A"}}},
	}, nil)
	assert.Equal(t, []string{
		"dn: uid=a,dc=example,dc=com",
		"changetype: modify",
		"replace: cn",
		"cn: A",
		"-",
	}, rec.Lines())

	add := NewAddRecord("uid=b,dc=example,dc=com", []ldap.Attribute{
		{Type: "description", Vals: []string{" leading space"}},
	}, nil)
	lines := add.Lines()
	assert.Equal(t, "description:: IGxlYWRpbmcgc3BhY2U=", lines[len(lines)-1])
}

func TestReaderWriterRoundTrip(t *testing.T) {
	input := `dn: uid=a,dc=example,dc=com
changetype: modify
replace: cn
cn: A
-

dn: uid=b,dc=example,dc=com
changetype: delete
`
	records := readAll(t, input, ReaderOptions{})
	require.Len(t, records, 2)

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, rec := range records {
		require.NoError(t, w.WriteRecord(rec))
	}
	require.NoError(t, w.Flush())

	again := readAll(t, buf.String(), ReaderOptions{})
	require.Len(t, again, 2)
	assert.Equal(t, records[0].Lines(), again[0].Lines())
	assert.Equal(t, records[1].Lines(), again[1].Lines())
}

func TestRejectWriter(t *testing.T) {
	var buf bytes.Buffer
	rw := NewRejectWriterTo(&buf, zerolog.Nop())

	res := result.New(result.NoSuchObject, "dc=example,dc=com", "entry not found", nil, nil)
	rw.Reject("Unable to delete entry", NewDeleteRecord("uid=x,dc=example,dc=com", nil), res)
	rw.Reject("Unable to read a change record", nil, result.New(result.LocalError, "", "", nil, nil))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "version: 1"), "header must be written exactly once")
	assert.Contains(t, out, "# Unable to delete entry")
	assert.Contains(t, out, "# Result Code: 32 (no such object)")
	assert.Contains(t, out, "# Diagnostic Message: entry not found")
	assert.Contains(t, out, "# Matched DN: dc=example,dc=com")
	assert.Contains(t, out, "dn: uid=x,dc=example,dc=com")
	assert.Contains(t, out, "# Result Code: 82 (local error)")
	assert.True(t, strings.HasPrefix(out, "version: 1\n"))
}

func TestLongCommentNotFolded(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	long := strings.Repeat("x", 300)
	require.NoError(t, w.WriteComment(long))
	require.NoError(t, w.Flush())
	assert.Equal(t, "# "+long+"\n", buf.String())
}
