package controls

import (
	"fmt"
	"strings"
	"time"

	ber "github.com/go-asn1-ber/asn1-ber"
)

// OperationPurpose annotates a request with the application and intent
// behind it for server-side auditing.
type OperationPurpose struct {
	ApplicationName    string
	ApplicationVersion string
	CodeLocation       string
	RequestPurpose     string
}

// GetControlType implements ldap.Control.
func (c *OperationPurpose) GetControlType() string {
	return OIDOperationPurpose
}

// Encode implements ldap.Control.
func (c *OperationPurpose) Encode() *ber.Packet {
	value := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Operation Purpose Value")
	if c.ApplicationName != "" {
		value.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 0, c.ApplicationName, "Application Name"))
	}
	if c.ApplicationVersion != "" {
		value.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 1, c.ApplicationVersion, "Application Version"))
	}
	if c.CodeLocation != "" {
		value.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 2, c.CodeLocation, "Code Location"))
	}
	if c.RequestPurpose != "" {
		value.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 3, c.RequestPurpose, "Request Purpose"))
	}
	return encode(OIDOperationPurpose, false, value)
}

// String implements ldap.Control.
func (c *OperationPurpose) String() string {
	return fmt.Sprintf("Control Type: %s (%q) Criticality: false Purpose: %s", Describe(OIDOperationPurpose), OIDOperationPurpose, c.RequestPurpose)
}

// Assurance levels for AssuredReplication. Local levels describe servers in
// the same location, remote levels describe other locations.
const (
	AssuredLocalNone                int64 = 0
	AssuredLocalReceivedAnyServer   int64 = 1
	AssuredLocalProcessedAllServers int64 = 2

	AssuredRemoteNone                      int64 = 0
	AssuredRemoteReceivedAnyLocation       int64 = 1
	AssuredRemoteReceivedAllLocations      int64 = 2
	AssuredRemoteProcessedAllRemoteServers int64 = 3
)

// AssuredReplication delays the response until the change has reached the
// requested level of replication assurance.
type AssuredReplication struct {
	MinimumLocalLevel  int64
	MinimumRemoteLevel int64
	Timeout            time.Duration
}

// GetControlType implements ldap.Control.
func (c *AssuredReplication) GetControlType() string {
	return OIDAssuredReplication
}

// Encode implements ldap.Control.
func (c *AssuredReplication) Encode() *ber.Packet {
	value := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Assured Replication Value")
	value.AppendChild(ber.NewInteger(ber.ClassContext, ber.TypePrimitive, 0, c.MinimumLocalLevel, "Minimum Local Level"))
	value.AppendChild(ber.NewInteger(ber.ClassContext, ber.TypePrimitive, 1, c.MinimumRemoteLevel, "Minimum Remote Level"))
	if c.Timeout > 0 {
		value.AppendChild(ber.NewInteger(ber.ClassContext, ber.TypePrimitive, 2, c.Timeout.Milliseconds(), "Timeout Millis"))
	}
	return encode(OIDAssuredReplication, false, value)
}

// String implements ldap.Control.
func (c *AssuredReplication) String() string {
	return fmt.Sprintf("Control Type: %s (%q) Criticality: false Local Level: %d Remote Level: %d", Describe(OIDAssuredReplication), OIDAssuredReplication, c.MinimumLocalLevel, c.MinimumRemoteLevel)
}

// Operational attribute update categories recognized by
// SuppressOperationalAttributeUpdate.
const (
	SuppressLastAccessTime int64 = 0
	SuppressLastLoginTime  int64 = 1
	SuppressLastLoginIP    int64 = 2
	SuppressLastMod        int64 = 3
)

var suppressNames = map[int64]string{
	SuppressLastAccessTime: "last-access-time",
	SuppressLastLoginTime:  "last-login-time",
	SuppressLastLoginIP:    "last-login-ip",
	SuppressLastMod:        "lastmod",
}

// ParseSuppressType maps a command-line token onto a suppression category.
func ParseSuppressType(s string) (int64, error) {
	for v, name := range suppressNames {
		if strings.EqualFold(s, name) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown operational attribute category %q", s)
}

// SuppressOperationalAttributeUpdate prevents the server from updating the
// listed operational attributes as a side effect of the operation.
type SuppressOperationalAttributeUpdate struct {
	Types []int64
}

// GetControlType implements ldap.Control.
func (c *SuppressOperationalAttributeUpdate) GetControlType() string {
	return OIDSuppressOperationalAttributeUpdate
}

// Encode implements ldap.Control.
func (c *SuppressOperationalAttributeUpdate) Encode() *ber.Packet {
	types := ber.Encode(ber.ClassContext, ber.TypeConstructed, 0, nil, "Suppress Types")
	for _, t := range c.Types {
		types.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, t, "Suppress Type"))
	}
	value := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Suppress Operational Attribute Update Value")
	value.AppendChild(types)
	return encode(OIDSuppressOperationalAttributeUpdate, false, value)
}

// String implements ldap.Control.
func (c *SuppressOperationalAttributeUpdate) String() string {
	names := make([]string, 0, len(c.Types))
	for _, t := range c.Types {
		names = append(names, suppressNames[t])
	}
	return fmt.Sprintf("Control Type: %s (%q) Criticality: false Types: %s", Describe(OIDSuppressOperationalAttributeUpdate), OIDSuppressOperationalAttributeUpdate, strings.Join(names, ","))
}

// GetAuthorizationEntry asks the server to return the authentication and
// authorization entries on the bind response.
type GetAuthorizationEntry struct {
	IncludeAuthNEntry bool
	IncludeAuthZEntry bool
	Attributes        []string
}

// GetControlType implements ldap.Control.
func (c *GetAuthorizationEntry) GetControlType() string {
	return OIDGetAuthorizationEntry
}

// Encode implements ldap.Control.
func (c *GetAuthorizationEntry) Encode() *ber.Packet {
	value := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Get Authorization Entry Value")
	if !c.IncludeAuthNEntry {
		value.AppendChild(ber.NewBoolean(ber.ClassContext, ber.TypePrimitive, 0, false, "Include AuthN Entry"))
	}
	if !c.IncludeAuthZEntry {
		value.AppendChild(ber.NewBoolean(ber.ClassContext, ber.TypePrimitive, 1, false, "Include AuthZ Entry"))
	}
	if len(c.Attributes) > 0 {
		attrs := ber.Encode(ber.ClassContext, ber.TypeConstructed, 2, nil, "Attributes")
		for _, name := range c.Attributes {
			attrs.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, name, "Attribute"))
		}
		value.AppendChild(attrs)
	}
	return encode(OIDGetAuthorizationEntry, false, value)
}

// String implements ldap.Control.
func (c *GetAuthorizationEntry) String() string {
	return fmt.Sprintf("Control Type: %s (%q) Criticality: false", Describe(OIDGetAuthorizationEntry), OIDGetAuthorizationEntry)
}
