package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr       = ":8080"
	defaultIngestInterval = time.Minute
	defaultSplunkURL      = "https://localhost:8089"
	defaultSplunkApp      = "flare"
	defaultAuthScheme     = "Splunk"
	defaultFlareAPIURL    = "https://api.flare.io"
	defaultFlareTimeout   = 30 * time.Second

	BackendSplunk   = "splunk"
	BackendVault    = "vault"
	BackendPostgres = "postgres"
)

type Config struct {
	ConfigFile        string
	HTTPAddr          string
	MetricsAddr       string
	AuthCookieSecure  bool
	IngestInterval    time.Duration
	CredentialRealm   string
	CredentialBackend string
	ConfigBackend     string
	DatabaseURL       string
	Splunk            Splunk
	Vault             Vault
	Flare             Flare
}

type Splunk struct {
	URL                string        `toml:"url"`
	Token              string        `toml:"token"`
	AuthScheme         string        `toml:"auth_scheme"`
	App                string        `toml:"app"`
	InsecureSkipVerify bool          `toml:"insecure_skip_verify"`
	Timeout            time.Duration `toml:"timeout"`
}

type Vault struct {
	Address          string `toml:"address"`
	Namespace        string `toml:"namespace"`
	AuthType         string `toml:"auth_type"`
	Token            string `toml:"token"`
	AppRoleMountPath string `toml:"approle_mount_path"`
	AppRoleRoleID    string `toml:"approle_role_id"`
	AppRoleSecretID  string `toml:"approle_secret_id"`
	TLSSkipVerify    bool   `toml:"tls_skip_verify"`
	TLSCACertFile    string `toml:"tls_ca_cert_file"`
	Mount            string `toml:"mount"`
	PathPrefix       string `toml:"path_prefix"`
}

type Flare struct {
	APIURL  string        `toml:"api_url"`
	Timeout time.Duration `toml:"timeout"`
}

// fileConfig is the layout of CONFIG_FILE. Environment variables override
// every value it sets.
type fileConfig struct {
	HTTPAddr          string        `toml:"http_addr"`
	MetricsAddr       string        `toml:"metrics_addr"`
	AuthCookieSecure  bool          `toml:"auth_cookie_secure"`
	IngestInterval    time.Duration `toml:"ingest_interval"`
	CredentialRealm   string        `toml:"credential_realm"`
	CredentialBackend string        `toml:"credential_backend"`
	ConfigBackend     string        `toml:"config_backend"`
	DatabaseURL       string        `toml:"database_url"`
	Splunk            Splunk        `toml:"splunk"`
	Vault             Vault         `toml:"vault"`
	Flare             Flare         `toml:"flare"`
}

type LoadOptions struct {
	RequireDatabaseURL bool
}

func Load() (Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, err
		}
	}

	cfg := defaults()
	cfg.ConfigFile = strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	cfg.CredentialBackend = strings.ToLower(strings.TrimSpace(cfg.CredentialBackend))
	cfg.ConfigBackend = strings.ToLower(strings.TrimSpace(cfg.ConfigBackend))

	if opts.RequireDatabaseURL && cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		HTTPAddr:          defaultHTTPAddr,
		IngestInterval:    defaultIngestInterval,
		CredentialBackend: BackendSplunk,
		ConfigBackend:     BackendSplunk,
		Splunk: Splunk{
			URL:        defaultSplunkURL,
			AuthScheme: defaultAuthScheme,
			App:        defaultSplunkApp,
		},
		Flare: Flare{
			APIURL:  defaultFlareAPIURL,
			Timeout: defaultFlareTimeout,
		},
	}
}

func (cfg *Config) applyFile(path string) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %s: unknown key %q", path, undecoded[0].String())
	}

	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)
	cfg.AuthCookieSecure = cfg.AuthCookieSecure || fc.AuthCookieSecure
	if md.IsDefined("ingest_interval") {
		cfg.IngestInterval = fc.IngestInterval
	}
	setString(&cfg.CredentialRealm, fc.CredentialRealm)
	setString(&cfg.CredentialBackend, fc.CredentialBackend)
	setString(&cfg.ConfigBackend, fc.ConfigBackend)
	setString(&cfg.DatabaseURL, fc.DatabaseURL)

	setString(&cfg.Splunk.URL, fc.Splunk.URL)
	setString(&cfg.Splunk.Token, fc.Splunk.Token)
	setString(&cfg.Splunk.AuthScheme, fc.Splunk.AuthScheme)
	setString(&cfg.Splunk.App, fc.Splunk.App)
	cfg.Splunk.InsecureSkipVerify = cfg.Splunk.InsecureSkipVerify || fc.Splunk.InsecureSkipVerify
	if fc.Splunk.Timeout > 0 {
		cfg.Splunk.Timeout = fc.Splunk.Timeout
	}

	v := fc.Vault
	setString(&cfg.Vault.Address, v.Address)
	setString(&cfg.Vault.Namespace, v.Namespace)
	setString(&cfg.Vault.AuthType, v.AuthType)
	setString(&cfg.Vault.Token, v.Token)
	setString(&cfg.Vault.AppRoleMountPath, v.AppRoleMountPath)
	setString(&cfg.Vault.AppRoleRoleID, v.AppRoleRoleID)
	setString(&cfg.Vault.AppRoleSecretID, v.AppRoleSecretID)
	cfg.Vault.TLSSkipVerify = cfg.Vault.TLSSkipVerify || v.TLSSkipVerify
	setString(&cfg.Vault.TLSCACertFile, v.TLSCACertFile)
	setString(&cfg.Vault.Mount, v.Mount)
	setString(&cfg.Vault.PathPrefix, v.PathPrefix)

	setString(&cfg.Flare.APIURL, fc.Flare.APIURL)
	if fc.Flare.Timeout > 0 {
		cfg.Flare.Timeout = fc.Flare.Timeout
	}
	return nil
}

func (cfg *Config) applyEnv() {
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = getenvDefault("METRICS_ADDR", cfg.MetricsAddr)
	cfg.AuthCookieSecure = getenvBoolDefault("AUTH_COOKIE_SECURE", cfg.AuthCookieSecure)
	if v := os.Getenv("INGEST_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.IngestInterval = d
		}
	}
	cfg.CredentialRealm = getenvDefault("CREDENTIAL_REALM", cfg.CredentialRealm)
	cfg.CredentialBackend = getenvDefault("CREDENTIAL_BACKEND", cfg.CredentialBackend)
	cfg.ConfigBackend = getenvDefault("CONFIG_BACKEND", cfg.ConfigBackend)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", cfg.DatabaseURL)

	cfg.Splunk.URL = getenvDefault("SPLUNK_URL", cfg.Splunk.URL)
	cfg.Splunk.Token = getenvDefault("SPLUNK_TOKEN", cfg.Splunk.Token)
	cfg.Splunk.AuthScheme = getenvDefault("SPLUNK_AUTH_SCHEME", cfg.Splunk.AuthScheme)
	cfg.Splunk.App = getenvDefault("SPLUNK_APP", cfg.Splunk.App)
	cfg.Splunk.InsecureSkipVerify = getenvBoolDefault("SPLUNK_INSECURE_SKIP_VERIFY", cfg.Splunk.InsecureSkipVerify)
	cfg.Splunk.Timeout = getenvDurationDefault("SPLUNK_TIMEOUT", cfg.Splunk.Timeout)

	cfg.Vault.Address = getenvDefault("VAULT_ADDR", cfg.Vault.Address)
	cfg.Vault.Namespace = getenvDefault("VAULT_NAMESPACE", cfg.Vault.Namespace)
	cfg.Vault.AuthType = getenvDefault("VAULT_AUTH_TYPE", cfg.Vault.AuthType)
	cfg.Vault.Token = getenvDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.AppRoleMountPath = getenvDefault("VAULT_APPROLE_MOUNT_PATH", cfg.Vault.AppRoleMountPath)
	cfg.Vault.AppRoleRoleID = getenvDefault("VAULT_APPROLE_ROLE_ID", cfg.Vault.AppRoleRoleID)
	cfg.Vault.AppRoleSecretID = getenvDefault("VAULT_APPROLE_SECRET_ID", cfg.Vault.AppRoleSecretID)
	cfg.Vault.TLSSkipVerify = getenvBoolDefault("VAULT_SKIP_VERIFY", cfg.Vault.TLSSkipVerify)
	cfg.Vault.TLSCACertFile = getenvDefault("VAULT_CACERT", cfg.Vault.TLSCACertFile)
	cfg.Vault.Mount = getenvDefault("VAULT_KV_MOUNT", cfg.Vault.Mount)
	cfg.Vault.PathPrefix = getenvDefault("VAULT_PATH_PREFIX", cfg.Vault.PathPrefix)

	cfg.Flare.APIURL = getenvDefault("FLARE_API_URL", cfg.Flare.APIURL)
	cfg.Flare.Timeout = getenvDurationDefault("FLARE_TIMEOUT", cfg.Flare.Timeout)
}

// Validate checks that the selected backends have what they need.
func (cfg Config) Validate() error {
	switch cfg.CredentialBackend {
	case BackendSplunk:
	case BackendVault:
		if strings.TrimSpace(cfg.Vault.Address) == "" {
			return errors.New("VAULT_ADDR is required when CREDENTIAL_BACKEND=vault")
		}
	default:
		return fmt.Errorf("unsupported CREDENTIAL_BACKEND %q", cfg.CredentialBackend)
	}
	switch cfg.ConfigBackend {
	case BackendSplunk:
	case BackendPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required when CONFIG_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unsupported CONFIG_BACKEND %q", cfg.ConfigBackend)
	}
	if cfg.usesSplunk() && strings.TrimSpace(cfg.Splunk.URL) == "" {
		return errors.New("SPLUNK_URL is required")
	}
	return nil
}

func (cfg Config) usesSplunk() bool {
	return cfg.CredentialBackend == BackendSplunk || cfg.ConfigBackend == BackendSplunk
}

// VaultCACertPEM reads the CA bundle named by Vault.TLSCACertFile.
func (cfg Config) VaultCACertPEM() (string, error) {
	path := strings.TrimSpace(cfg.Vault.TLSCACertFile)
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read vault ca cert: %w", err)
	}
	return string(b), nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getenvBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true":
		return true
	case "0", "false":
		return false
	default:
		return def
	}
}
