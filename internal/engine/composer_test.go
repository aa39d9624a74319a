package engine

import (
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldaptools/ldapbatch/internal/controls"
	"github.com/ldaptools/ldapbatch/internal/extop"
)

func oids(ctrls []ldap.Control) []string {
	out := make([]string, len(ctrls))
	for i, c := range ctrls {
		out[i] = c.GetControlType()
	}
	return out
}

func TestComposerAttachmentByOperationType(t *testing.T) {
	opts := &ControlOptions{
		NoOperation:                  true,
		PermissiveModify:             true,
		SubtreeDelete:                true,
		IgnoreNoUserModification:     true,
		NameWithEntryUUID:            true,
		SuppressReferentialIntegrity: true,
		PasswordPolicy:               true,
		PreRead:                      true,
		PreReadAttributes:            []string{"cn, sn"},
		PostRead:                     true,
		ManageDsaIT:                  true,
		ProxyAs:                      "dn:uid=admin,dc=x",
	}
	comp, err := newComposer(opts)
	require.NoError(t, err)

	add := oids(comp.forAdd(nil, false, nil))
	assert.Contains(t, add, controls.OIDIgnoreNoUserModification)
	assert.Contains(t, add, controls.OIDNameWithEntryUUID)
	assert.Contains(t, add, controls.OIDPostRead)
	assert.Contains(t, add, controls.OIDPasswordPolicy)
	assert.Contains(t, add, controls.OIDNoOp)
	assert.Contains(t, add, controls.OIDProxiedAuthorizationV2)
	assert.NotContains(t, add, controls.OIDPreRead)
	assert.NotContains(t, add, controls.OIDPermissiveModify)
	assert.NotContains(t, add, controls.OIDSubtreeDelete)
	assert.NotContains(t, add, controls.OIDUndelete, "undelete needs both the flag and the trigger attribute")

	del := oids(comp.forDelete(nil, nil))
	assert.Contains(t, del, controls.OIDSubtreeDelete)
	assert.Contains(t, del, controls.OIDSuppressReferentialIntegrityUpdates)
	assert.Contains(t, del, controls.OIDPreRead)
	assert.NotContains(t, del, controls.OIDPostRead)
	assert.NotContains(t, del, controls.OIDPasswordPolicy)

	mod := oids(comp.forModify(nil, false, nil))
	assert.Contains(t, mod, controls.OIDPermissiveModify)
	assert.Contains(t, mod, controls.OIDPreRead)
	assert.Contains(t, mod, controls.OIDPostRead)
	assert.Contains(t, mod, controls.OIDPasswordPolicy)
	assert.NotContains(t, mod, controls.OIDSubtreeDelete)

	mdn := oids(comp.forModifyDN(nil, nil))
	assert.Contains(t, mdn, controls.OIDSuppressReferentialIntegrityUpdates)
	assert.Contains(t, mdn, controls.OIDPreRead)
	assert.Contains(t, mdn, controls.OIDPostRead)
	assert.NotContains(t, mdn, controls.OIDPasswordPolicy)

	search := oids(comp.forSearch(ldap.NewControlPaging(10)))
	assert.Equal(t, []string{controls.OIDProxiedAuthorizationV2, ldap.ControlTypePaging}, search)
}

func TestComposerConditionalControls(t *testing.T) {
	opts := &ControlOptions{
		PasswordValidationDetails: true,
		RetireCurrentPassword:     true,
		AllowUndelete:             true,
	}
	comp, err := newComposer(opts)
	require.NoError(t, err)

	plain := oids(comp.forModify(nil, false, nil))
	assert.NotContains(t, plain, controls.OIDPasswordValidationDetails)
	assert.NotContains(t, plain, controls.OIDRetirePassword)

	password := oids(comp.forModify(nil, true, nil))
	assert.Contains(t, password, controls.OIDPasswordValidationDetails)
	assert.Contains(t, password, controls.OIDRetirePassword)

	assert.NotContains(t, oids(comp.forAdd(nil, false, nil)), controls.OIDUndelete)
	assert.Contains(t, oids(comp.forAdd(nil, true, nil)), controls.OIDUndelete)
}

func TestComposerTransactionPrefixAndRecordControls(t *testing.T) {
	comp, err := newComposer(&ControlOptions{NoOperation: true})
	require.NoError(t, err)

	recCtrl := ldap.NewControlString("1.2.3.4", false, "")
	got := oids(comp.forModify([]ldap.Control{recCtrl}, false, []byte("txn")))
	assert.Equal(t, []string{
		controls.OIDTransactionSpecification,
		controls.OIDNoOp,
		"1.2.3.4",
	}, got)
}

func TestComposerRejectsBadAssertionFilter(t *testing.T) {
	_, err := newComposer(&ControlOptions{AssertionFilter: "uid=missing-parens"})
	assert.Error(t, err)
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{
			name:    "transaction with multi-update",
			opts:    Options{UseTransaction: true, MultiUpdate: true},
			wantErr: "mutually exclusive",
		},
		{
			name:    "transaction with continue-on-error",
			opts:    Options{UseTransaction: true, ContinueOnError: true},
			wantErr: "continue-on-error",
		},
		{
			name:    "transaction with dry-run",
			opts:    Options{UseTransaction: true, DryRun: true},
			wantErr: "dry-run",
		},
		{
			name:    "transaction with reject file",
			opts:    Options{UseTransaction: true, RejectFilePresent: true},
			wantErr: "reject file",
		},
		{
			name:    "multi-update with bulk selection",
			opts:    Options{MultiUpdate: true, Filters: []string{"(a=b)"}},
			wantErr: "bulk-modify",
		},
		{
			name:    "multi-update with rate limit",
			opts:    Options{MultiUpdate: true, RatePerSecond: 5},
			wantErr: "rate limiting",
		},
		{
			name:    "both proxied authorization versions",
			opts:    Options{Controls: ControlOptions{ProxyV1DN: "uid=a", ProxyAs: "dn:uid=a"}},
			wantErr: "proxied authorization",
		},
		{
			name:    "hard and soft delete",
			opts:    Options{Controls: ControlOptions{HardDelete: true, SoftDelete: true}},
			wantErr: "hard-delete and soft-delete",
		},
		{
			name:    "transaction with no-op control",
			opts:    Options{UseTransaction: true, Controls: ControlOptions{NoOperation: true}},
			wantErr: "no-op",
		},
		{
			name:    "soft delete with subtree delete",
			opts:    Options{Controls: ControlOptions{SoftDelete: true, SubtreeDelete: true}},
			wantErr: "soft-delete and subtree-delete",
		},
		{
			name:    "follow referrals with manage DSA IT",
			opts:    Options{FollowReferrals: true, Controls: ControlOptions{ManageDsaIT: true}},
			wantErr: "manage-DSA-IT",
		},
		{
			name:    "bulk selection with dry-run",
			opts:    Options{DryRun: true, DNTargets: []string{"uid=a,dc=x"}},
			wantErr: "dry-run",
		},
		{
			name:    "bulk selection with default-add",
			opts:    Options{DefaultAdd: true, Filters: []string{"(st=CA)"}},
			wantErr: "default-add",
		},
		{
			name:    "bulk selection with undeletes",
			opts:    Options{Controls: ControlOptions{AllowUndelete: true}, DNFiles: []string{"dns.txt"}},
			wantErr: "undeletes",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	valid := Options{MultiUpdate: true, MultiUpdateErrorBehavior: extop.ErrorBehaviorAtomic}
	require.NoError(t, valid.Validate())
	assert.Equal(t, 100, valid.SearchPageSize, "defaults must be applied")
}
