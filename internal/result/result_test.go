package result

import (
	"bytes"
	"errors"
	"testing"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeResultPacket(code int64, matchedDN, diagnostic string, referrals []string) *ber.Packet {
	op := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "LDAP Result")
	op.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, code, "Result Code"))
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, matchedDN, "Matched DN"))
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, diagnostic, "Diagnostic Message"))
	if len(referrals) > 0 {
		refs := ber.Encode(ber.ClassContext, ber.TypeConstructed, 3, nil, "Referral")
		for _, url := range referrals {
			refs.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, url, "Referral URL"))
		}
		op.AppendChild(refs)
	}
	return op
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		packet   *ber.Packet
		wantCode ResultCode
		wantDN   string
		wantDiag string
		wantRefs []string
		wantErr  bool
	}{
		{
			name:     "success with empty strings",
			packet:   encodeResultPacket(0, "", "", nil),
			wantCode: Success,
			wantDN:   "",
			wantDiag: "",
			wantRefs: []string{},
		},
		{
			name:     "no such object with matched DN",
			packet:   encodeResultPacket(32, "dc=example,dc=com", "entry not found", nil),
			wantCode: NoSuchObject,
			wantDN:   "dc=example,dc=com",
			wantDiag: "entry not found",
			wantRefs: []string{},
		},
		{
			name:     "referral result",
			packet:   encodeResultPacket(10, "", "", []string{"ldap://ds1.example.com/", "ldap://ds2.example.com/"}),
			wantCode: Referral,
			wantRefs: []string{"ldap://ds1.example.com/", "ldap://ds2.example.com/"},
		},
		{
			name:    "nil packet",
			packet:  nil,
			wantErr: true,
		},
		{
			name:    "truncated packet",
			packet:  ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, ""),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Decode(tt.packet)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrDecode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, r.Code)
			assert.Equal(t, tt.wantDN, r.MatchedDN)
			assert.Equal(t, tt.wantDiag, r.DiagnosticMessage)
			assert.Equal(t, tt.wantRefs, r.ReferralURLs)
			assert.NotNil(t, r.Controls, "controls must normalize to empty, never nil")
		})
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		packet *ber.Packet
	}{
		{"plain success", encodeResultPacket(0, "", "", nil)},
		{"failure with all fields", encodeResultPacket(53, "ou=people,dc=example,dc=com", "server unwilling", nil)},
		{"referrals", encodeResultPacket(10, "", "", []string{"ldap://a/", "ldap://b/", "ldap://c/"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := tt.packet.Bytes()

			r, err := Decode(tt.packet)
			require.NoError(t, err)

			got := r.Encode().Bytes()
			assert.True(t, bytes.Equal(want, got), "re-encoded packet differs from original")
		})
	}
}

func TestDecodeControls(t *testing.T) {
	paging := ldap.NewControlPaging(100)
	controls := ber.Encode(ber.ClassContext, ber.TypeConstructed, 0, nil, "Controls")
	controls.AppendChild(paging.Encode())

	base := NewSuccess()
	r, err := base.DecodeControls(controls)
	require.NoError(t, err)
	require.Len(t, r.Controls, 1)
	assert.Equal(t, ldap.ControlTypePaging, r.Controls[0].GetControlType())

	// The original result is untouched.
	assert.Empty(t, base.Controls)
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ResultCode
	}{
		{
			name:     "nil error",
			err:      nil,
			wantCode: Success,
		},
		{
			name:     "ldap error passes code through",
			err:      ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such entry")),
			wantCode: NoSuchObject,
		},
		{
			name:     "network error maps to server down",
			err:      ldap.NewError(ldap.ErrorNetwork, errors.New("connection reset")),
			wantCode: ServerDown,
		},
		{
			name:     "filter compile error",
			err:      ldap.NewError(ldap.ErrorFilterCompile, errors.New("bad filter")),
			wantCode: FilterError,
		},
		{
			name:     "generic error maps to local error",
			err:      errors.New("disk full"),
			wantCode: LocalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := FromError(tt.err)
			assert.Equal(t, tt.wantCode, r.Code)
		})
	}
}

func TestResultControlLookup(t *testing.T) {
	first := ldap.NewControlString("1.2.3.4", false, "first")
	second := ldap.NewControlString("1.2.3.4", false, "second")
	other := ldap.NewControlString("5.6.7.8", true, "")

	r := New(Success, "", "", nil, []ldap.Control{first, second, other})

	assert.True(t, r.HasControl("1.2.3.4"))
	assert.True(t, r.HasControl("5.6.7.8"))
	assert.False(t, r.HasControl("9.9.9.9"))

	got := r.Control("1.2.3.4")
	require.NotNil(t, got)
	assert.Same(t, ldap.Control(first), got, "lookup must return the first match in insertion order")
}

func TestResultCodeClassification(t *testing.T) {
	tests := []struct {
		code       ResultCode
		usable     bool
		clientSide bool
	}{
		{Success, true, false},
		{NoSuchObject, true, false},
		{AssertionFailed, true, false},
		{Busy, false, false},
		{ServerDown, false, true},
		{DecodingError, false, true},
		{ParamError, true, true},
		{ControlNotFound, true, true},
		{NoOperation, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.code.Name(), func(t *testing.T) {
			assert.Equal(t, tt.usable, tt.code.IsConnectionUsable())
			assert.Equal(t, tt.clientSide, tt.code.IsClientSide())
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, Success.ExitCode())
	assert.Equal(t, 32, NoSuchObject.ExitCode())
	assert.Equal(t, 122, AssertionFailed.ExitCode())
	assert.Equal(t, 255, NoOperation.ExitCode())
}

func TestIsSuccess(t *testing.T) {
	assert.True(t, NewSuccess().IsSuccess())
	assert.True(t, New(NoOperation, "", "", nil, nil).IsSuccess())
	assert.False(t, New(NoSuchObject, "", "", nil, nil).IsSuccess())
}
