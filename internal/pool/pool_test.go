package pool

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldaptools/ldapbatch/internal/result"
)

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{URLs: []string{"ldap://ds1.example.com"}}
	require.NoError(t, cfg.validate())

	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.MaxConnections)
	assert.Equal(t, "/etc/krb5.conf", cfg.KerberosConfig)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "no servers",
			cfg:     Config{},
			wantErr: "at least one server URL",
		},
		{
			name: "too many connections",
			cfg: Config{
				URLs:           []string{"ldap://ds1.example.com"},
				MaxConnections: 5,
			},
			wantErr: "MaxConnections",
		},
		{
			name: "simple bind without DN",
			cfg: Config{
				URLs: []string{"ldap://ds1.example.com"},
				Auth: AuthSimple,
			},
			wantErr: "bind DN is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAuthMethodString(t *testing.T) {
	assert.Equal(t, "none", AuthNone.String())
	assert.Equal(t, "simple", AuthSimple.String())
	assert.Equal(t, "kerberos", AuthKerberos.String())
	assert.Equal(t, "external", AuthExternal.String())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCategory  Category
		wantCode      result.ResultCode
		wantRetryable bool
	}{
		{
			name:          "network failure",
			err:           ldap.NewError(ldap.ErrorNetwork, errors.New("broken pipe")),
			wantCategory:  CategoryConnection,
			wantCode:      result.ServerDown,
			wantRetryable: true,
		},
		{
			name:          "invalid credentials",
			err:           ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad password")),
			wantCategory:  CategoryAuthentication,
			wantCode:      result.InvalidCredentials,
			wantRetryable: false,
		},
		{
			name:          "no such object",
			err:           ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("missing")),
			wantCategory:  CategoryNotFound,
			wantCode:      result.NoSuchObject,
			wantRetryable: false,
		},
		{
			name:          "server busy",
			err:           ldap.NewError(ldap.LDAPResultBusy, errors.New("try later")),
			wantCategory:  CategoryServer,
			wantCode:      result.Busy,
			wantRetryable: true,
		},
		{
			name:          "entry exists",
			err:           ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("duplicate")),
			wantCategory:  CategoryConflict,
			wantCode:      result.EntryAlreadyExists,
			wantRetryable: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opErr := classify("add", "uid=x,dc=example,dc=com", "ldap://ds1", tt.err)
			require.NotNil(t, opErr)
			assert.Equal(t, tt.wantCategory, opErr.Category)
			assert.Equal(t, tt.wantCode, opErr.Code)
			assert.Equal(t, tt.wantRetryable, opErr.IsRetryable())
			assert.ErrorIs(t, opErr, tt.err)
			assert.Contains(t, opErr.Error(), "uid=x,dc=example,dc=com")
		})
	}

	assert.Nil(t, classify("add", "", "", nil))
}

func TestIsConnectionError(t *testing.T) {
	netErr := ldap.NewError(ldap.ErrorNetwork, errors.New("gone"))
	assert.True(t, isConnectionError(netErr))
	assert.True(t, isConnectionError(classify("modify", "", "ldap://ds1", netErr)))

	opErr := ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("missing"))
	assert.False(t, isConnectionError(opErr))
	assert.False(t, isConnectionError(classify("modify", "", "ldap://ds1", opErr)))
	assert.False(t, isConnectionError(nil))
}

func TestBindFailure(t *testing.T) {
	cause := ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad password"))
	bf := &BindFailure{Result: result.FromError(cause), cause: cause}

	assert.Equal(t, result.InvalidCredentials, bf.Result.Code)
	assert.Contains(t, bf.Error(), "bind failed")
	assert.ErrorIs(t, bf, cause)
}

func TestSplitPrincipal(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantUser  string
		wantRealm string
		wantErr   bool
	}{
		{
			name:      "realm from principal",
			cfg:       Config{BindDN: "admin@example.com"},
			wantUser:  "admin",
			wantRealm: "EXAMPLE.COM",
		},
		{
			name:      "configured realm",
			cfg:       Config{BindDN: "admin", KerberosRealm: "EXAMPLE.COM"},
			wantUser:  "admin",
			wantRealm: "EXAMPLE.COM",
		},
		{
			name:      "principal realm wins",
			cfg:       Config{BindDN: "admin@SUB.EXAMPLE.COM", KerberosRealm: "EXAMPLE.COM"},
			wantUser:  "admin",
			wantRealm: "SUB.EXAMPLE.COM",
		},
		{
			name:    "no realm anywhere",
			cfg:     Config{BindDN: "admin"},
			wantErr: true,
		},
		{
			name:    "no principal",
			cfg:     Config{KerberosRealm: "EXAMPLE.COM"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, realm, err := splitPrincipal(&tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, user)
			assert.Equal(t, tt.wantRealm, realm)
		})
	}
}

func TestDefaultServicePrincipal(t *testing.T) {
	spn, err := defaultServicePrincipal("ldaps://ds1.example.com:636")
	require.NoError(t, err)
	assert.Equal(t, "ldap/ds1.example.com", spn)

	_, err = defaultServicePrincipal("not a url://")
	assert.Error(t, err)
}

func TestKerberosCredentialPaths(t *testing.T) {
	dir := t.TempDir()
	ccache := filepath.Join(dir, "krb5cc_1000")
	require.NoError(t, os.WriteFile(ccache, []byte("x"), 0o600))

	t.Run("explicit ccache wins", func(t *testing.T) {
		cfg := &Config{KerberosCCache: "/explicit/ccache"}
		assert.Equal(t, "/explicit/ccache", kerberosCCachePath(cfg))
	})

	t.Run("env ccache with FILE prefix", func(t *testing.T) {
		t.Setenv("KRB5CCNAME", "FILE:"+ccache)
		assert.Equal(t, ccache, kerberosCCachePath(&Config{}))
	})

	t.Run("env ccache missing file ignored", func(t *testing.T) {
		t.Setenv("KRB5CCNAME", filepath.Join(dir, "does-not-exist"))
		assert.Empty(t, kerberosCCachePath(&Config{}))
	})

	t.Run("env keytab", func(t *testing.T) {
		keytab := filepath.Join(dir, "service.keytab")
		require.NoError(t, os.WriteFile(keytab, []byte("x"), 0o600))
		t.Setenv("KRB5_KTNAME", keytab)
		assert.Equal(t, keytab, kerberosKeytabPath(&Config{}))
	})
}

func TestCategorizeUnknown(t *testing.T) {
	assert.Equal(t, CategoryUnknown, categorize(result.ResultCode(9999)))
	assert.Equal(t, CategoryValidation, categorize(result.ParamError))
	assert.Equal(t, CategoryPermission, categorize(result.AuthorizationDenied))
}
