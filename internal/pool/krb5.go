package pool

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

// kerberosBind authenticates conn via GSSAPI. Credentials are taken in
// priority order: credential cache, keytab, password.
func kerberosBind(conn *ldap.Conn, cfg *Config, serverURL string) error {
	client, err := newGSSAPIClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	spn := cfg.KerberosSPN
	if spn == "" {
		spn, err = defaultServicePrincipal(serverURL)
		if err != nil {
			return err
		}
	}
	return conn.GSSAPIBind(client, spn, "")
}

func newGSSAPIClient(cfg *Config) (*gssapi.Client, error) {
	if ccache := kerberosCCachePath(cfg); ccache != "" {
		client, err := gssapi.NewClientFromCCache(ccache, cfg.KerberosConfig)
		if err != nil {
			return nil, fmt.Errorf("kerberos credential cache %s: %w", ccache, err)
		}
		return client, nil
	}

	username, realm, err := splitPrincipal(cfg)
	if err != nil {
		return nil, err
	}

	if keytab := kerberosKeytabPath(cfg); keytab != "" {
		client, err := gssapi.NewClientWithKeytab(username, realm, keytab,
			cfg.KerberosConfig, krb5client.DisablePAFXFAST(true))
		if err != nil {
			return nil, fmt.Errorf("kerberos keytab %s: %w", keytab, err)
		}
		return client, nil
	}

	if cfg.BindPassword == "" {
		return nil, fmt.Errorf("no kerberos credentials: need a credential cache, keytab, or password")
	}
	client, err := gssapi.NewClientWithPassword(username, realm, cfg.BindPassword,
		cfg.KerberosConfig, krb5client.DisablePAFXFAST(true))
	if err != nil {
		return nil, fmt.Errorf("kerberos password authentication for %s@%s: %w", username, realm, err)
	}
	return client, nil
}

// splitPrincipal derives the Kerberos principal name and realm from the
// bind identity. "user@EXAMPLE.COM" carries its own realm; a bare name
// needs the configured one.
func splitPrincipal(cfg *Config) (username, realm string, err error) {
	username = cfg.BindDN
	realm = cfg.KerberosRealm
	if at := strings.LastIndex(username, "@"); at > 0 {
		realm = username[at+1:]
		username = username[:at]
	}
	if username == "" {
		return "", "", fmt.Errorf("kerberos authentication requires a principal name")
	}
	if realm == "" {
		return "", "", fmt.Errorf("kerberos realm not set and not present in principal %q", username)
	}
	return username, strings.ToUpper(realm), nil
}

// defaultServicePrincipal builds "ldap/<host>" from the server URL.
func defaultServicePrincipal(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parsing server URL for SPN: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("server URL %q has no host for SPN construction", serverURL)
	}
	return "ldap/" + host, nil
}

func kerberosCCachePath(cfg *Config) string {
	if cfg.KerberosCCache != "" {
		return cfg.KerberosCCache
	}
	if env := os.Getenv("KRB5CCNAME"); env != "" {
		path := strings.TrimPrefix(env, "FILE:")
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func kerberosKeytabPath(cfg *Config) string {
	if cfg.KerberosKeytab != "" {
		return cfg.KerberosKeytab
	}
	if env := os.Getenv("KRB5_KTNAME"); env != "" {
		path := strings.TrimPrefix(env, "FILE:")
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
