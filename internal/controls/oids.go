// Package controls implements the request controls attached to batch
// modification operations, plus decoding for the response controls the
// server may return. Every request control satisfies ldap.Control so it can
// be passed straight into go-ldap request constructors.
package controls

// Request control OIDs.
const (
	OIDAssertion                           = "1.3.6.1.1.12"
	OIDPreRead                             = "1.3.6.1.1.13.1"
	OIDPostRead                            = "1.3.6.1.1.13.2"
	OIDTransactionSpecification            = "1.3.6.1.1.21.2"
	OIDProxiedAuthorizationV1              = "2.16.840.1.113730.3.4.12"
	OIDProxiedAuthorizationV2              = "2.16.840.1.113730.3.4.18"
	OIDAuthorizationIdentityRequest        = "2.16.840.1.113730.3.4.16"
	OIDAuthorizationIdentityResponse       = "2.16.840.1.113730.3.4.15"
	OIDManageDsaIT                         = "2.16.840.1.113730.3.4.2"
	OIDPasswordPolicy                      = "1.3.6.1.4.1.42.2.27.8.5.1"
	OIDNoOp                                = "1.3.6.1.4.1.4203.1.10.2"
	OIDPermissiveModify                    = "1.2.840.113556.1.4.1413"
	OIDSubtreeDelete                       = "1.2.840.113556.1.4.805"
	OIDSimplePagedResults                  = "1.2.840.113556.1.4.319"
	OIDIgnoreNoUserModification            = "1.3.6.1.4.1.30221.2.5.5"
	OIDGetAuthorizationEntry               = "1.3.6.1.4.1.30221.2.5.6"
	OIDAssuredReplication                  = "1.3.6.1.4.1.30221.2.5.18"
	OIDOperationPurpose                    = "1.3.6.1.4.1.30221.2.5.19"
	OIDSoftDelete                          = "1.3.6.1.4.1.30221.2.5.20"
	OIDHardDelete                          = "1.3.6.1.4.1.30221.2.5.22"
	OIDUndelete                            = "1.3.6.1.4.1.30221.2.5.23"
	OIDGetUserResourceLimits               = "1.3.6.1.4.1.30221.2.5.25"
	OIDSuppressOperationalAttributeUpdate  = "1.3.6.1.4.1.30221.2.5.27"
	OIDSuppressReferentialIntegrityUpdates = "1.3.6.1.4.1.30221.2.5.30"
	OIDRetirePassword                      = "1.3.6.1.4.1.30221.2.5.31"
	OIDPurgePassword                       = "1.3.6.1.4.1.30221.2.5.32"
	OIDPasswordValidationDetails           = "1.3.6.1.4.1.30221.2.5.40"
	OIDNameWithEntryUUID                   = "1.3.6.1.4.1.30221.2.5.44"
	OIDReplicationRepair                   = "1.3.6.1.4.1.30221.1.5.2"
)

var oidNames = map[string]string{
	OIDAssertion:                           "Assertion",
	OIDPreRead:                             "Pre-Read",
	OIDPostRead:                            "Post-Read",
	OIDTransactionSpecification:            "Transaction Specification",
	OIDProxiedAuthorizationV1:              "Proxied Authorization v1",
	OIDProxiedAuthorizationV2:              "Proxied Authorization v2",
	OIDAuthorizationIdentityRequest:        "Authorization Identity Request",
	OIDAuthorizationIdentityResponse:       "Authorization Identity Response",
	OIDManageDsaIT:                         "ManageDsaIT",
	OIDPasswordPolicy:                      "Password Policy",
	OIDNoOp:                                "No-Op",
	OIDPermissiveModify:                    "Permissive Modify",
	OIDSubtreeDelete:                       "Subtree Delete",
	OIDSimplePagedResults:                  "Simple Paged Results",
	OIDIgnoreNoUserModification:            "Ignore NO-USER-MODIFICATION",
	OIDGetAuthorizationEntry:               "Get Authorization Entry",
	OIDAssuredReplication:                  "Assured Replication",
	OIDOperationPurpose:                    "Operation Purpose",
	OIDSoftDelete:                          "Soft Delete",
	OIDHardDelete:                          "Hard Delete",
	OIDUndelete:                            "Undelete",
	OIDGetUserResourceLimits:               "Get User Resource Limits",
	OIDSuppressOperationalAttributeUpdate:  "Suppress Operational Attribute Update",
	OIDSuppressReferentialIntegrityUpdates: "Suppress Referential Integrity Updates",
	OIDRetirePassword:                      "Retire Password",
	OIDPurgePassword:                       "Purge Password",
	OIDPasswordValidationDetails:           "Password Validation Details",
	OIDNameWithEntryUUID:                   "Name With entryUUID",
	OIDReplicationRepair:                   "Replication Repair",
}

// Describe returns the human-readable name registered for the OID, or the
// OID itself when it is not a known control.
func Describe(oid string) string {
	if name, ok := oidNames[oid]; ok {
		return name
	}
	return oid
}
