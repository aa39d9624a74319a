// Command ldapbatch reads LDIF change records and applies them to a
// directory server: adds, deletes, modifies, and DN modifications, with an
// extensive set of request controls, optional transactional or multi-update
// grouping, and paged bulk modification over search filters.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/ldaptools/ldapbatch/internal/controls"
	"github.com/ldaptools/ldapbatch/internal/engine"
	"github.com/ldaptools/ldapbatch/internal/extop"
	"github.com/ldaptools/ldapbatch/internal/ldif"
	"github.com/ldaptools/ldapbatch/internal/pool"
	"github.com/ldaptools/ldapbatch/internal/result"
)

// stringList collects repeatable flags in order.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type arguments struct {
	urls           stringList
	discoverDomain string
	bindDN         string
	bindPassword   string
	useKerberos    bool
	krbRealm       string
	krbKeytab      string
	krbCCache      string
	krbConfig      string
	krbSPN         string
	useExternal    bool
	useStartTLS    bool
	insecureTLS    bool
	adminSession   bool
	timeout        time.Duration
	retryFailed    bool

	files          stringList
	characterSet   string
	rejectFile     string
	defaultAdd     bool
	stripTrailing  bool
	retainTrailing bool

	dryRun          bool
	verbose         bool
	continueOnError bool
	followReferrals bool
	ratePerSecond   int
	searchPageSize  int

	useTransaction      bool
	multiUpdateBehavior string

	modifyDNs     stringList
	modifyDNFiles stringList
	filters       stringList
	filterFiles   stringList

	noOperation          bool
	permissiveModify     bool
	subtreeDelete        bool
	hardDelete           bool
	softDelete           bool
	replicationRepair    bool
	ignoreNoUserMod      bool
	nameWithEntryUUID    bool
	manageDsaIT          bool
	suppressReferential  bool
	passwordPolicy       bool
	passwordValidation   bool
	retirePassword       bool
	purgePassword        bool
	allowUndelete        bool
	preRead              bool
	preReadAttrs         stringList
	postRead             bool
	postReadAttrs        stringList
	assertionFilter      string
	proxyV1DN            string
	proxyAs              string
	operationPurpose     string
	assuredReplication   bool
	assuredLocalLevel    string
	assuredRemoteLevel   string
	assuredTimeout       time.Duration
	suppressOperational  stringList
	genericControls      stringList
	authzIdentity        bool
	getAuthzEntry        bool
	getAuthzEntryAttrs   stringList
	getUserResourceLimit bool
}

func parseFlags(argv []string) (*arguments, error) {
	a := &arguments{}
	fs := flag.NewFlagSet("ldapbatch", flag.ContinueOnError)

	fs.Var(&a.urls, "url", "Directory server URL (repeatable; tried in order)")
	fs.StringVar(&a.discoverDomain, "discoverDomain", "", "Discover servers for this domain through DNS SRV records")
	fs.StringVar(&a.bindDN, "bindDN", "", "DN (or Kerberos principal) to authenticate as")
	fs.StringVar(&a.bindPassword, "bindPassword", "", "Password for the bind identity")
	fs.BoolVar(&a.useKerberos, "useKerberos", false, "Authenticate with Kerberos/GSSAPI")
	fs.StringVar(&a.krbRealm, "kerberosRealm", "", "Kerberos realm")
	fs.StringVar(&a.krbKeytab, "kerberosKeytab", "", "Path to a Kerberos keytab")
	fs.StringVar(&a.krbCCache, "kerberosCCache", "", "Path to a Kerberos credential cache")
	fs.StringVar(&a.krbConfig, "kerberosConfig", "", "Path to krb5.conf")
	fs.StringVar(&a.krbSPN, "kerberosSPN", "", "Service principal name override")
	fs.BoolVar(&a.useExternal, "externalAuth", false, "Authenticate with SASL EXTERNAL")
	fs.BoolVar(&a.useStartTLS, "useStartTLS", false, "Upgrade the connection with StartTLS")
	fs.BoolVar(&a.insecureTLS, "insecureSkipVerify", false, "Skip TLS certificate verification")
	fs.BoolVar(&a.adminSession, "useAdministrativeSession", false, "Request a dedicated administrative session on each connection")
	fs.DurationVar(&a.timeout, "timeout", 0, "Network timeout (0 uses the default)")
	fs.BoolVar(&a.retryFailed, "retryFailedOperations", false, "Retry once on a replacement connection after a connection failure")

	fs.Var(&a.files, "file", "LDIF change-record file (repeatable; standard input if absent)")
	fs.StringVar(&a.characterSet, "characterSet", "UTF-8", "Character set of the LDIF input")
	fs.StringVar(&a.rejectFile, "rejectFile", "", "File collecting rejected change records")
	fs.BoolVar(&a.defaultAdd, "defaultAdd", false, "Treat records without a changetype as adds")
	fs.BoolVar(&a.stripTrailing, "stripTrailingSpaces", false, "Strip illegal trailing spaces from LDIF values")
	fs.BoolVar(&a.retainTrailing, "retainTrailingSpaces", false, "Retain illegal trailing spaces in LDIF values")

	fs.BoolVar(&a.dryRun, "dryRun", false, "Report what would be done without sending requests")
	fs.BoolVar(&a.verbose, "verbose", false, "Echo each change record before applying it")
	fs.BoolVar(&a.continueOnError, "continueOnError", false, "Keep processing after a failed operation")
	fs.BoolVar(&a.followReferrals, "followReferrals", false, "Follow referrals returned by the server")
	fs.IntVar(&a.ratePerSecond, "ratePerSecond", 0, "Cap the number of operations per second")
	fs.IntVar(&a.searchPageSize, "searchPageSize", 0, "Page size for bulk-modify searches")

	fs.BoolVar(&a.useTransaction, "useTransaction", false, "Apply all changes in one LDAP transaction")
	fs.StringVar(&a.multiUpdateBehavior, "multiUpdateErrorBehavior", "", "Send all changes as one multi-update request: atomic, abort-on-error, or continue-on-error")

	fs.Var(&a.modifyDNs, "modifyEntryWithDN", "Apply each modify record to this DN (repeatable)")
	fs.Var(&a.modifyDNFiles, "modifyEntriesWithDNsFromFile", "File of DNs to apply each modify record to (repeatable)")
	fs.Var(&a.filters, "modifyEntriesMatchingFilter", "Apply each modify record to all entries matching this filter (repeatable)")
	fs.Var(&a.filterFiles, "modifyEntriesMatchingFiltersFromFile", "File of filters selecting entries to modify (repeatable)")

	fs.BoolVar(&a.noOperation, "noOperation", false, "Attach the no-op control: validate without applying")
	fs.BoolVar(&a.permissiveModify, "permissiveModify", false, "Attach the permissive modify control to modify requests")
	fs.BoolVar(&a.subtreeDelete, "subtreeDelete", false, "Attach the subtree delete control to delete requests")
	fs.BoolVar(&a.hardDelete, "hardDelete", false, "Attach the hard delete control to delete requests")
	fs.BoolVar(&a.softDelete, "softDelete", false, "Attach the soft delete control to delete requests")
	fs.BoolVar(&a.replicationRepair, "replicationRepair", false, "Attach the replication repair control")
	fs.BoolVar(&a.ignoreNoUserMod, "ignoreNoUserModification", false, "Allow writes to NO-USER-MODIFICATION attributes on add")
	fs.BoolVar(&a.nameWithEntryUUID, "nameWithEntryUUID", false, "Let the server name added entries with their entryUUID")
	fs.BoolVar(&a.manageDsaIT, "manageDsaIT", false, "Treat referral entries as regular entries")
	fs.BoolVar(&a.suppressReferential, "suppressReferentialIntegrityUpdates", false, "Suppress referential integrity processing on delete and modify DN")
	fs.BoolVar(&a.passwordPolicy, "usePasswordPolicyControl", false, "Attach the password policy control to add and modify requests")
	fs.BoolVar(&a.passwordValidation, "getPasswordValidationDetails", false, "Request password validation details when changing passwords")
	fs.BoolVar(&a.retirePassword, "retireCurrentPassword", false, "Retire the current password when changing passwords")
	fs.BoolVar(&a.purgePassword, "purgeCurrentPassword", false, "Purge the current password when changing passwords")
	fs.BoolVar(&a.allowUndelete, "allowUndelete", false, "Allow add records to undelete soft-deleted entries")
	fs.BoolVar(&a.preRead, "preRead", false, "Request the target entry as it was before each change")
	fs.Var(&a.preReadAttrs, "preReadAttribute", "Attribute to include in pre-read entries (repeatable; comma or space separated)")
	fs.BoolVar(&a.postRead, "postRead", false, "Request the target entry as it is after each change")
	fs.Var(&a.postReadAttrs, "postReadAttribute", "Attribute to include in post-read entries (repeatable; comma or space separated)")
	fs.StringVar(&a.assertionFilter, "assertionFilter", "", "Only apply each change if the target entry matches this filter")
	fs.StringVar(&a.proxyV1DN, "proxyV1As", "", "Proxied authorization v1 DN")
	fs.StringVar(&a.proxyAs, "proxyAs", "", "Proxied authorization v2 identity (dn: or u: form)")
	fs.StringVar(&a.operationPurpose, "operationPurpose", "", "Free-form purpose text recorded with each operation")
	fs.BoolVar(&a.assuredReplication, "useAssuredReplication", false, "Delay responses until replication assurance is met")
	fs.StringVar(&a.assuredLocalLevel, "assuredReplicationLocalLevel", "", "Local assurance level: none, received-any-server, processed-all-servers")
	fs.StringVar(&a.assuredRemoteLevel, "assuredReplicationRemoteLevel", "", "Remote assurance level: none, received-any-remote-location, received-all-remote-locations, processed-all-remote-servers")
	fs.DurationVar(&a.assuredTimeout, "assuredReplicationTimeout", 0, "Maximum time to wait for replication assurance")
	fs.Var(&a.suppressOperational, "suppressOperationalAttributeUpdates", "Operational attribute category to leave untouched: last-access-time, last-login-time, last-login-ip, lastmod (repeatable)")
	fs.Var(&a.genericControls, "control", "Arbitrary control as oid[:criticality[:value|::base64value]] (repeatable)")
	fs.BoolVar(&a.authzIdentity, "authorizationIdentity", false, "Request the authorization identity on bind")
	fs.BoolVar(&a.getAuthzEntry, "getAuthorizationEntryAttributes", false, "Request the authorization entry on bind")
	fs.Var(&a.getAuthzEntryAttrs, "getAuthorizationEntryAttribute", "Attribute to include in the authorization entry (repeatable)")
	fs.BoolVar(&a.getUserResourceLimit, "getUserResourceLimits", false, "Request the user's resource limits on bind")

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return a, nil
}

func buildOptions(a *arguments) (*engine.Options, error) {
	opts := &engine.Options{
		DryRun:                a.dryRun,
		Verbose:               a.verbose,
		ContinueOnError:       a.continueOnError,
		FollowReferrals:       a.followReferrals,
		RetryFailedOperations: a.retryFailed,
		RatePerSecond:         a.ratePerSecond,
		SearchPageSize:        a.searchPageSize,
		UseTransaction:        a.useTransaction,
		DNTargets:             a.modifyDNs,
		DNFiles:               a.modifyDNFiles,
		Filters:               a.filters,
		FilterFiles:           a.filterFiles,
		RejectFilePresent:     a.rejectFile != "",
		DefaultAdd:            a.defaultAdd,
	}

	if a.multiUpdateBehavior != "" {
		opts.MultiUpdate = true
		switch a.multiUpdateBehavior {
		case "atomic":
			opts.MultiUpdateErrorBehavior = extop.ErrorBehaviorAtomic
		case "abort-on-error":
			opts.MultiUpdateErrorBehavior = extop.ErrorBehaviorAbortOnError
		case "continue-on-error":
			opts.MultiUpdateErrorBehavior = extop.ErrorBehaviorContinueOnError
		default:
			return nil, fmt.Errorf("unknown multi-update error behavior %q", a.multiUpdateBehavior)
		}
	}

	c := &opts.Controls
	c.NoOperation = a.noOperation
	c.PermissiveModify = a.permissiveModify
	c.SubtreeDelete = a.subtreeDelete
	c.HardDelete = a.hardDelete
	c.SoftDelete = a.softDelete
	c.ReplicationRepair = a.replicationRepair
	c.IgnoreNoUserModification = a.ignoreNoUserMod
	c.NameWithEntryUUID = a.nameWithEntryUUID
	c.ManageDsaIT = a.manageDsaIT
	c.SuppressReferentialIntegrity = a.suppressReferential
	c.PasswordPolicy = a.passwordPolicy
	c.PasswordValidationDetails = a.passwordValidation
	c.RetireCurrentPassword = a.retirePassword
	c.PurgeCurrentPassword = a.purgePassword
	c.AllowUndelete = a.allowUndelete
	c.PreRead = a.preRead || len(a.preReadAttrs) > 0
	c.PreReadAttributes = a.preReadAttrs
	c.PostRead = a.postRead || len(a.postReadAttrs) > 0
	c.PostReadAttributes = a.postReadAttrs
	c.AssertionFilter = a.assertionFilter
	c.ProxyV1DN = a.proxyV1DN
	c.ProxyAs = a.proxyAs
	c.OperationPurpose = a.operationPurpose

	if a.assuredReplication {
		c.UseAssuredReplication = true
		local, err := parseAssuredLevel(a.assuredLocalLevel, map[string]int64{
			"none":                  controls.AssuredLocalNone,
			"received-any-server":   controls.AssuredLocalReceivedAnyServer,
			"processed-all-servers": controls.AssuredLocalProcessedAllServers,
		})
		if err != nil {
			return nil, fmt.Errorf("local assurance level: %w", err)
		}
		remote, err := parseAssuredLevel(a.assuredRemoteLevel, map[string]int64{
			"none":                          controls.AssuredRemoteNone,
			"received-any-remote-location":  controls.AssuredRemoteReceivedAnyLocation,
			"received-all-remote-locations": controls.AssuredRemoteReceivedAllLocations,
			"processed-all-remote-servers":  controls.AssuredRemoteProcessedAllRemoteServers,
		})
		if err != nil {
			return nil, fmt.Errorf("remote assurance level: %w", err)
		}
		c.AssuredLocalLevel = local
		c.AssuredRemoteLevel = remote
		c.AssuredTimeout = a.assuredTimeout
	}

	for _, name := range a.suppressOperational {
		st, err := controls.ParseSuppressType(name)
		if err != nil {
			return nil, err
		}
		c.SuppressOperationalAttributes = append(c.SuppressOperationalAttributes, st)
	}
	for _, spec := range a.genericControls {
		ctrl, err := controls.Parse(spec)
		if err != nil {
			return nil, err
		}
		c.Generic = append(c.Generic, ctrl)
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func parseAssuredLevel(s string, levels map[string]int64) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if v, ok := levels[strings.ToLower(s)]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("unknown assurance level %q", s)
}

func buildPoolConfig(a *arguments, log zerolog.Logger, errOut io.Writer) *pool.Config {
	cfg := &pool.Config{
		URLs:           a.urls,
		BindDN:         a.bindDN,
		BindPassword:   a.bindPassword,
		KerberosRealm:  a.krbRealm,
		KerberosKeytab: a.krbKeytab,
		KerberosCCache: a.krbCCache,
		KerberosSPN:    a.krbSPN,
		UseStartTLS:    a.useStartTLS,
		Timeout:        a.timeout,
		RetryOnInvalid: a.retryFailed,
	}
	if a.krbConfig != "" {
		cfg.KerberosConfig = a.krbConfig
	}
	if len(cfg.URLs) == 0 {
		cfg.URLs = []string{"ldap://localhost:389"}
	}

	switch {
	case a.useKerberos:
		cfg.Auth = pool.AuthKerberos
	case a.useExternal:
		cfg.Auth = pool.AuthExternal
	case a.bindDN != "":
		cfg.Auth = pool.AuthSimple
	default:
		cfg.Auth = pool.AuthNone
	}

	if a.useStartTLS || a.insecureTLS || hasLDAPSURL(cfg.URLs) {
		cfg.TLSConfig = &tls.Config{InsecureSkipVerify: a.insecureTLS}
	}

	if a.authzIdentity {
		cfg.BindControls = append(cfg.BindControls, controls.NewAuthorizationIdentity())
	}
	if a.getAuthzEntry || len(a.getAuthzEntryAttrs) > 0 {
		cfg.BindControls = append(cfg.BindControls, &controls.GetAuthorizationEntry{
			IncludeAuthNEntry: true,
			IncludeAuthZEntry: true,
			Attributes:        a.getAuthzEntryAttrs,
		})
	}
	if a.getUserResourceLimit {
		cfg.BindControls = append(cfg.BindControls, controls.NewGetUserResourceLimits())
	}
	if len(cfg.BindControls) > 0 {
		cfg.OnBindResult = func(server string, ctrls []ldap.Control) {
			for _, ctrl := range ctrls {
				if ctrl.GetControlType() != controls.OIDAuthorizationIdentityResponse {
					continue
				}
				if cs, ok := ctrl.(*ldap.ControlString); ok {
					fmt.Fprintf(errOut, "Authorization identity on %s: %s\n", server, cs.ControlValue)
				}
			}
		}
	}

	if a.adminSession {
		clientName := applicationClientName()
		cfg.PostConnect = func(conn *ldap.Conn) error {
			_, err := conn.Extended(extop.NewStartAdministrativeSessionRequest(clientName, true))
			if err != nil {
				return fmt.Errorf("starting an administrative session: %w", err)
			}
			log.Debug().Str("client", clientName).Msg("administrative session started")
			return nil
		}
	}
	return cfg
}

func applicationClientName() string {
	return "ldapbatch-" + uuid.NewString()
}

func hasLDAPSURL(urls []string) bool {
	for _, u := range urls {
		if strings.HasPrefix(u, "ldaps://") {
			return true
		}
	}
	return false
}

// decodeCharacterSet wraps r so input in the named character set is
// transcoded to UTF-8 before LDIF parsing. UTF-8 input passes through
// untouched.
func decodeCharacterSet(r io.Reader, name string) (io.Reader, error) {
	if name == "" || strings.EqualFold(name, "UTF-8") || strings.EqualFold(name, "UTF8") {
		return r, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported character set %q", name)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// openInput concatenates the LDIF files, separated by blank lines so a
// record ending at EOF of one file does not merge into the next.
func openInput(paths []string) (io.Reader, func(), error) {
	if len(paths) == 0 {
		return os.Stdin, func() {}, nil
	}
	var readers []io.Reader
	var files []*os.File
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			for _, open := range files {
				open.Close()
			}
			return nil, nil, err
		}
		files = append(files, f)
		if len(readers) > 0 {
			readers = append(readers, strings.NewReader("\n\n"))
		}
		readers = append(readers, f)
	}
	cleanup := func() {
		for _, f := range files {
			f.Close()
		}
	}
	return io.MultiReader(readers...), cleanup, nil
}

func trailingSpaceBehavior(a *arguments) (ldif.TrailingSpaceBehavior, error) {
	if a.stripTrailing && a.retainTrailing {
		return 0, errors.New("stripping and retaining trailing spaces are mutually exclusive")
	}
	switch {
	case a.stripTrailing:
		return ldif.TrailingSpaceStrip, nil
	case a.retainTrailing:
		return ldif.TrailingSpaceRetain, nil
	default:
		return ldif.TrailingSpaceReject, nil
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if s := os.Getenv("LDAPBATCH_LOG_LEVEL"); s != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(s)); err == nil {
			level = parsed
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, out, errOut io.Writer) int {
	_ = godotenv.Load()
	log := newLogger()

	a, err := parseFlags(argv)
	if err != nil {
		return result.ParamError.ExitCode()
	}

	opts, err := buildOptions(a)
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return result.ParamError.ExitCode()
	}
	trailing, err := trailingSpaceBehavior(a)
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return result.ParamError.ExitCode()
	}

	input, closeInput, err := openInput(a.files)
	if err != nil {
		fmt.Fprintf(errOut, "Unable to open the LDIF input: %v\n", err)
		return result.LocalError.ExitCode()
	}
	defer closeInput()
	input, err = decodeCharacterSet(input, a.characterSet)
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return result.ParamError.ExitCode()
	}

	var rejects *ldif.RejectWriter
	if a.rejectFile != "" {
		rejects, err = ldif.NewRejectWriter(a.rejectFile, log)
		if err != nil {
			fmt.Fprintf(errOut, "Unable to open the reject file: %v\n", err)
			return result.LocalError.ExitCode()
		}
		defer rejects.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.discoverDomain != "" {
		discovered, err := pool.NewDiscovery(log).DiscoverURLs(ctx, a.discoverDomain)
		if err != nil {
			fmt.Fprintf(errOut, "Server discovery failed: %v\n", err)
			return result.ConnectError.ExitCode()
		}
		a.urls = append(a.urls, discovered...)
	}

	p, err := pool.New(buildPoolConfig(a, log, errOut), log)
	if err != nil {
		var bindErr *pool.BindFailure
		if errors.As(err, &bindErr) {
			// the health check already reported invalid credentials
			if bindErr.Result.Code != result.InvalidCredentials {
				fmt.Fprintf(errOut, "%v\n", bindErr)
			}
			return bindErr.Result.Code.ExitCode()
		}
		fmt.Fprintf(errOut, "Unable to connect: %v\n", err)
		return result.ConnectError.ExitCode()
	}
	defer p.Close()

	reader := ldif.NewReader(input, ldif.ReaderOptions{
		DefaultAdd:     a.defaultAdd,
		TrailingSpaces: trailing,
	})

	e, err := engine.New(engine.NewDirectory(p), reader, rejects, opts, log, out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "%v\n", err)
		return result.ParamError.ExitCode()
	}

	return e.Run(ctx).ExitCode()
}
