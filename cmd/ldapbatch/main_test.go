package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldaptools/ldapbatch/internal/controls"
	"github.com/ldaptools/ldapbatch/internal/extop"
	"github.com/ldaptools/ldapbatch/internal/ldif"
	"github.com/ldaptools/ldapbatch/internal/pool"
)

func TestParseFlagsRepeatableValues(t *testing.T) {
	a, err := parseFlags([]string{
		"-url", "ldap://a:389",
		"-url", "ldap://b:389",
		"-file", "one.ldif",
		"-file", "two.ldif",
		"-modifyEntriesMatchingFilter", "(st=CA)",
	})
	require.NoError(t, err)
	assert.Equal(t, stringList{"ldap://a:389", "ldap://b:389"}, a.urls)
	assert.Equal(t, stringList{"one.ldif", "two.ldif"}, a.files)
	assert.Equal(t, stringList{"(st=CA)"}, a.filters)
}

func TestParseFlagsRejectsPositionalArguments(t *testing.T) {
	_, err := parseFlags([]string{"stray.ldif"})
	assert.ErrorContains(t, err, "unexpected arguments")
}

func TestBuildOptions(t *testing.T) {
	a, err := parseFlags([]string{
		"-multiUpdateErrorBehavior", "abort-on-error",
		"-postReadAttribute", "cn",
		"-suppressOperationalAttributeUpdates", "lastmod",
		"-control", "1.2.3.4:true",
	})
	require.NoError(t, err)

	opts, err := buildOptions(a)
	require.NoError(t, err)
	assert.True(t, opts.MultiUpdate)
	assert.Equal(t, extop.ErrorBehaviorAbortOnError, opts.MultiUpdateErrorBehavior)
	assert.True(t, opts.Controls.PostRead, "a post-read attribute implies the control")
	assert.Equal(t, []int64{controls.SuppressLastMod}, opts.Controls.SuppressOperationalAttributes)
	require.Len(t, opts.Controls.Generic, 1)
	assert.Equal(t, "1.2.3.4", opts.Controls.Generic[0].GetControlType())
	assert.Equal(t, 100, opts.SearchPageSize)
}

func TestBuildOptionsRejectsUnknownBehavior(t *testing.T) {
	a, err := parseFlags([]string{"-multiUpdateErrorBehavior", "sometimes"})
	require.NoError(t, err)
	_, err = buildOptions(a)
	assert.ErrorContains(t, err, "sometimes")
}

func TestBuildOptionsRejectsExclusiveFlags(t *testing.T) {
	a, err := parseFlags([]string{"-useTransaction", "-continueOnError"})
	require.NoError(t, err)
	_, err = buildOptions(a)
	assert.ErrorContains(t, err, "continue-on-error")
}

func TestBuildPoolConfigAuthDerivation(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want pool.AuthMethod
	}{
		{"anonymous", nil, pool.AuthNone},
		{"simple", []string{"-bindDN", "cn=admin"}, pool.AuthSimple},
		{"kerberos wins", []string{"-useKerberos", "-bindDN", "user@EXAMPLE.COM"}, pool.AuthKerberos},
		{"external", []string{"-externalAuth"}, pool.AuthExternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := parseFlags(tt.argv)
			require.NoError(t, err)
			cfg := buildPoolConfig(a, zerolog.Nop(), io.Discard)
			assert.Equal(t, tt.want, cfg.Auth)
		})
	}
}

func TestBuildPoolConfigBindControls(t *testing.T) {
	a, err := parseFlags([]string{
		"-authorizationIdentity",
		"-getUserResourceLimits",
		"-getAuthorizationEntryAttribute", "cn",
	})
	require.NoError(t, err)
	cfg := buildPoolConfig(a, zerolog.Nop(), io.Discard)

	var got []string
	for _, c := range cfg.BindControls {
		got = append(got, c.GetControlType())
	}
	assert.Equal(t, []string{
		controls.OIDAuthorizationIdentityRequest,
		controls.OIDGetAuthorizationEntry,
		controls.OIDGetUserResourceLimits,
	}, got)
	assert.NotNil(t, cfg.OnBindResult)
}

func TestBuildPoolConfigTLS(t *testing.T) {
	a, err := parseFlags([]string{"-url", "ldaps://secure:636", "-insecureSkipVerify"})
	require.NoError(t, err)
	cfg := buildPoolConfig(a, zerolog.Nop(), io.Discard)
	require.NotNil(t, cfg.TLSConfig)
	assert.True(t, cfg.TLSConfig.InsecureSkipVerify)

	a, err = parseFlags([]string{"-url", "ldap://plain:389"})
	require.NoError(t, err)
	assert.Nil(t, buildPoolConfig(a, zerolog.Nop(), io.Discard).TLSConfig)
}

func TestTrailingSpaceBehavior(t *testing.T) {
	got, err := trailingSpaceBehavior(&arguments{})
	require.NoError(t, err)
	assert.Equal(t, ldif.TrailingSpaceReject, got)

	got, err = trailingSpaceBehavior(&arguments{stripTrailing: true})
	require.NoError(t, err)
	assert.Equal(t, ldif.TrailingSpaceStrip, got)

	_, err = trailingSpaceBehavior(&arguments{stripTrailing: true, retainTrailing: true})
	assert.Error(t, err)
}

func TestOpenInputConcatenatesFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.ldif")
	second := filepath.Join(dir, "second.ldif")
	require.NoError(t, os.WriteFile(first, []byte("version: 1\ndn: uid=a,dc=x\nchangetype: delete"), 0o600))
	require.NoError(t, os.WriteFile(second, []byte("version: 1\n\ndn: uid=b,dc=x\nchangetype: delete\n"), 0o600))

	r, cleanup, err := openInput([]string{first, second})
	require.NoError(t, err)
	defer cleanup()

	reader := ldif.NewReader(r, ldif.ReaderOptions{})
	rec, err := reader.Read()
	require.NoError(t, err)
	assert.Equal(t, "uid=a,dc=x", rec.DN())
	rec, err = reader.Read()
	require.NoError(t, err)
	assert.Equal(t, "uid=b,dc=x", rec.DN())
	_, err = reader.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeCharacterSet(t *testing.T) {
	r, err := decodeCharacterSet(strings.NewReader("cn: caf\xe9"), "ISO-8859-1")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "cn: café", string(got))

	passthrough := strings.NewReader("cn: plain")
	r, err = decodeCharacterSet(passthrough, "UTF-8")
	require.NoError(t, err)
	assert.Equal(t, io.Reader(passthrough), r, "UTF-8 input is not transcoded")

	_, err = decodeCharacterSet(strings.NewReader(""), "no-such-charset")
	assert.ErrorContains(t, err, "no-such-charset")
}

func TestOpenInputMissingFile(t *testing.T) {
	_, _, err := openInput([]string{filepath.Join(t.TempDir(), "absent.ldif")})
	assert.Error(t, err)
}
