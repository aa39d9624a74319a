package engine

import (
	"fmt"

	"github.com/go-ldap/ldap/v3"

	"github.com/ldaptools/ldapbatch/internal/controls"
)

// Program identity reported through the operation-purpose control and the
// administrative session request.
const (
	applicationName    = "ldapbatch"
	applicationVersion = "1.0.0"
)

// composer holds the per-operation-type control lists derived from the
// configured options. Lists are built once and shared across requests;
// conditional controls are appended per record at dispatch time.
type composer struct {
	add      []ldap.Control
	del      []ldap.Control
	modify   []ldap.Control
	modifyDN []ldap.Control
	search   []ldap.Control

	// password fires on modify records touching userPassword/authPassword,
	// undelete on add records carrying ds-undelete-from-dn.
	password []ldap.Control
	undelete ldap.Control

	assertionFilter string
}

// newComposer resolves the control options into concrete control lists:
// operation-type-specific controls first, then cross-operation controls,
// then raw generic controls.
func newComposer(o *ControlOptions) (*composer, error) {
	c := &composer{assertionFilter: o.AssertionFilter}

	if o.PermissiveModify {
		c.modify = append(c.modify, controls.NewPermissiveModify())
	}
	if o.SubtreeDelete {
		c.del = append(c.del, controls.NewSubtreeDelete())
	}
	if o.HardDelete {
		c.del = append(c.del, controls.NewHardDelete())
	}
	if o.SoftDelete {
		c.del = append(c.del, controls.NewSoftDelete())
	}
	if o.SuppressReferentialIntegrity {
		c.del = append(c.del, controls.NewSuppressReferentialIntegrity())
		c.modifyDN = append(c.modifyDN, controls.NewSuppressReferentialIntegrity())
	}
	if o.IgnoreNoUserModification {
		c.add = append(c.add, controls.NewIgnoreNoUserModification())
	}
	if o.NameWithEntryUUID {
		c.add = append(c.add, controls.NewNameWithEntryUUID())
	}
	if o.PreRead {
		pre := controls.NewPreRead(o.PreReadAttributes...)
		c.del = append(c.del, pre)
		c.modify = append(c.modify, pre)
		c.modifyDN = append(c.modifyDN, pre)
	}
	if o.PostRead {
		post := controls.NewPostRead(o.PostReadAttributes...)
		c.add = append(c.add, post)
		c.modify = append(c.modify, post)
		c.modifyDN = append(c.modifyDN, post)
	}
	if o.PasswordPolicy {
		pp := controls.NewPasswordPolicy()
		c.add = append(c.add, pp)
		c.modify = append(c.modify, pp)
	}

	var cross []ldap.Control
	if o.NoOperation {
		cross = append(cross, controls.NewNoOp())
	}
	if o.ReplicationRepair {
		cross = append(cross, controls.NewReplicationRepair())
	}
	if o.UseAssuredReplication {
		cross = append(cross, &controls.AssuredReplication{
			MinimumLocalLevel:  o.AssuredLocalLevel,
			MinimumRemoteLevel: o.AssuredRemoteLevel,
			Timeout:            o.AssuredTimeout,
		})
	}
	if o.AssertionFilter != "" {
		assertion, err := controls.NewAssertion(o.AssertionFilter)
		if err != nil {
			return nil, fmt.Errorf("assertion filter: %w", err)
		}
		cross = append(cross, assertion)
	}
	if o.OperationPurpose != "" {
		cross = append(cross, &controls.OperationPurpose{
			ApplicationName:    applicationName,
			ApplicationVersion: applicationVersion,
			RequestPurpose:     o.OperationPurpose,
		})
	}
	if o.ManageDsaIT {
		cross = append(cross, ldap.NewControlManageDsaIT(true))
	}
	if len(o.SuppressOperationalAttributes) > 0 {
		cross = append(cross, &controls.SuppressOperationalAttributeUpdate{
			Types: o.SuppressOperationalAttributes,
		})
	}

	var proxied ldap.Control
	if o.ProxyV1DN != "" {
		proxied = controls.NewProxiedAuthorizationV1(o.ProxyV1DN)
	}
	if o.ProxyAs != "" {
		proxied = controls.NewProxiedAuthorizationV2(o.ProxyAs)
	}
	if proxied != nil {
		cross = append(cross, proxied)
		c.search = append(c.search, proxied)
	}

	cross = append(cross, o.Generic...)

	c.add = append(c.add, cross...)
	c.del = append(c.del, cross...)
	c.modify = append(c.modify, cross...)
	c.modifyDN = append(c.modifyDN, cross...)

	if o.PasswordValidationDetails {
		c.password = append(c.password, controls.NewPasswordValidationDetails())
	}
	if o.RetireCurrentPassword {
		c.password = append(c.password, controls.NewRetirePassword())
	}
	if o.PurgeCurrentPassword {
		c.password = append(c.password, controls.NewPurgePassword())
	}
	if o.AllowUndelete {
		c.undelete = controls.NewUndelete()
	}

	return c, nil
}

// forAdd composes the control list for an add of the given record
// content. txnID, when non-nil, prepends a transaction-specification
// control.
func (c *composer) forAdd(recordControls []ldap.Control, hasUndeleteSource bool, txnID []byte) []ldap.Control {
	out := c.base(c.add, recordControls, txnID)
	if c.undelete != nil && hasUndeleteSource {
		out = append(out, c.undelete)
	}
	return out
}

func (c *composer) forDelete(recordControls []ldap.Control, txnID []byte) []ldap.Control {
	return c.base(c.del, recordControls, txnID)
}

func (c *composer) forModify(recordControls []ldap.Control, targetsPassword bool, txnID []byte) []ldap.Control {
	out := c.base(c.modify, recordControls, txnID)
	if targetsPassword {
		out = append(out, c.password...)
	}
	return out
}

func (c *composer) forModifyDN(recordControls []ldap.Control, txnID []byte) []ldap.Control {
	return c.base(c.modifyDN, recordControls, txnID)
}

func (c *composer) forSearch(paging *ldap.ControlPaging) []ldap.Control {
	out := make([]ldap.Control, 0, len(c.search)+1)
	out = append(out, c.search...)
	return append(out, paging)
}

func (c *composer) base(global, recordControls []ldap.Control, txnID []byte) []ldap.Control {
	out := make([]ldap.Control, 0, len(global)+len(recordControls)+1)
	if txnID != nil {
		out = append(out, controls.NewTransactionSpecification(txnID))
	}
	out = append(out, global...)
	return append(out, recordControls...)
}
