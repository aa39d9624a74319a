// Package engine applies a stream of LDIF change records to a directory:
// per-record request composition and control attachment, optional
// transactional or multi-update grouping, paged bulk modification over
// search filters, failure policy, and rate limiting.
package engine

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-ldap/ldap/v3"

	"github.com/ldaptools/ldapbatch/internal/extop"
)

// ControlOptions selects the request controls attached to outgoing
// operations. Flag controls are attached per the operation-type rules in
// buildControls; conditional controls fire on record content.
type ControlOptions struct {
	NoOperation                  bool
	PermissiveModify             bool
	SubtreeDelete                bool
	HardDelete                   bool
	SoftDelete                   bool
	ReplicationRepair            bool
	IgnoreNoUserModification     bool
	NameWithEntryUUID            bool
	ManageDsaIT                  bool
	SuppressReferentialIntegrity bool
	PasswordPolicy               bool

	// Conditional modify controls, attached when a modification targets
	// userPassword or authPassword.
	PasswordValidationDetails bool
	RetireCurrentPassword     bool
	PurgeCurrentPassword      bool

	// AllowUndelete attaches the undelete control to add records carrying
	// a ds-undelete-from-dn attribute.
	AllowUndelete bool

	PreRead            bool
	PreReadAttributes  []string
	PostRead           bool
	PostReadAttributes []string

	AssertionFilter string
	ProxyV1DN       string
	ProxyAs         string

	// OperationPurpose is free-form intent text; the application name and
	// version are filled in by the engine.
	OperationPurpose string

	UseAssuredReplication bool
	AssuredLocalLevel     int64
	AssuredRemoteLevel    int64
	AssuredTimeout        time.Duration

	// SuppressOperationalAttributes holds parsed suppression categories
	// (see controls.ParseSuppressType).
	SuppressOperationalAttributes []int64

	// Generic carries raw controls from repeated --control flags.
	Generic []ldap.Control
}

// Options configures a single engine run.
type Options struct {
	DryRun                bool
	Verbose               bool
	ContinueOnError       bool
	FollowReferrals       bool
	RetryFailedOperations bool
	RatePerSecond         int
	SearchPageSize        int `default:"100"`

	UseTransaction           bool
	MultiUpdate              bool
	MultiUpdateErrorBehavior extop.ErrorBehavior

	// Bulk-modify selectors, applied per record in the order below and,
	// within each slice, in the order supplied.
	DNTargets   []string
	DNFiles     []string
	Filters     []string
	FilterFiles []string

	// RejectFilePresent feeds the grouping exclusion rules; the reject
	// writer itself is handed to New separately.
	RejectFilePresent bool

	// DefaultAdd mirrors the reader option for exclusion validation; the
	// reader itself is configured by the caller.
	DefaultAdd bool

	Controls ControlOptions
}

// BulkModify reports whether any bulk-modify selector is configured.
func (o *Options) BulkModify() bool {
	return len(o.DNTargets) > 0 || len(o.DNFiles) > 0 ||
		len(o.Filters) > 0 || len(o.FilterFiles) > 0
}

func (o *Options) grouped() bool {
	return o.UseTransaction || o.MultiUpdate
}

// Validate applies defaults and enforces the flag-exclusion rules. A
// violation maps onto the parameter-error exit code in the caller.
func (o *Options) Validate() error {
	if err := defaults.Set(o); err != nil {
		return fmt.Errorf("applying option defaults: %w", err)
	}

	if o.UseTransaction && o.MultiUpdate {
		return fmt.Errorf("transactions and multi-update are mutually exclusive")
	}
	if o.Controls.ProxyV1DN != "" && o.Controls.ProxyAs != "" {
		return fmt.Errorf("proxied authorization v1 and v2 are mutually exclusive")
	}
	if o.Controls.HardDelete && o.Controls.SoftDelete {
		return fmt.Errorf("hard-delete and soft-delete are mutually exclusive")
	}
	if o.Controls.RetireCurrentPassword && o.Controls.PurgeCurrentPassword {
		return fmt.Errorf("retiring and purging the current password are mutually exclusive")
	}
	if o.Controls.SoftDelete && o.Controls.SubtreeDelete {
		return fmt.Errorf("soft-delete and subtree-delete are mutually exclusive")
	}
	if o.FollowReferrals && o.Controls.ManageDsaIT {
		return fmt.Errorf("follow-referrals and the manage-DSA-IT control are mutually exclusive")
	}
	if o.RatePerSecond < 0 {
		return fmt.Errorf("rate per second cannot be negative")
	}
	if o.SearchPageSize < 1 {
		return fmt.Errorf("search page size must be positive")
	}

	if o.grouped() {
		mode := "a transaction"
		if o.MultiUpdate {
			mode = "multi-update"
		}
		incompatible := []struct {
			set  bool
			what string
		}{
			{o.ContinueOnError, "continue-on-error"},
			{o.FollowReferrals, "follow-referrals"},
			{o.RetryFailedOperations, "retry-failed-operations"},
			{o.DryRun, "dry-run"},
			{o.RejectFilePresent, "a reject file"},
			{o.BulkModify(), "bulk-modify target selection"},
			{o.Controls.NoOperation, "the no-op control"},
			{o.Controls.NameWithEntryUUID, "the name-with-entryUUID control"},
			{o.Controls.PermissiveModify, "the permissive-modify control"},
			{o.Controls.SubtreeDelete, "the subtree-delete control"},
			{o.Controls.HardDelete, "the hard-delete control"},
			{o.Controls.SoftDelete, "the soft-delete control"},
			{o.Controls.IgnoreNoUserModification, "the ignore-no-user-modification control"},
			{o.Controls.AllowUndelete, "undeletes"},
			{o.MultiUpdate && o.RatePerSecond > 0, "rate limiting"},
		}
		for _, rule := range incompatible {
			if rule.set {
				return fmt.Errorf("%s cannot be combined with %s", mode, rule.what)
			}
		}
	}

	if o.BulkModify() {
		incompatible := []struct {
			set  bool
			what string
		}{
			{o.DryRun, "dry-run"},
			{o.DefaultAdd, "default-add"},
			{o.Controls.AllowUndelete, "undeletes"},
		}
		for _, rule := range incompatible {
			if rule.set {
				return fmt.Errorf("bulk-modify target selection cannot be combined with %s", rule.what)
			}
		}
	}

	return nil
}
