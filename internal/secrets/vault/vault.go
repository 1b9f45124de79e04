// Package vault stores Flare credentials in a HashiCorp Vault KV version 2
// secrets engine. It is an alternative to the splunkd password store.
package vault

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	neturl "net/url"
	"slices"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/flare-systems/flare-splunk/internal/metrics"
	"github.com/flare-systems/flare-splunk/internal/settings"
)

// Supported auth methods and path defaults.
const (
	AuthTypeToken   = "token"
	AuthTypeAppRole = "approle"

	DefaultMount      = "secret"
	DefaultPathPrefix = "flare-splunk"
)

// Options configures the Vault connection and where credentials live.
type Options struct {
	Address          string
	Namespace        string
	AuthType         string
	Token            string
	AppRoleMountPath string
	AppRoleRoleID    string
	AppRoleSecretID  string
	TLSSkipVerify    bool
	TLSCACertPEM     string

	// Mount is the KV v2 mount. Defaults to DefaultMount.
	Mount string
	// PathPrefix is the folder under the mount holding the credentials.
	PathPrefix string
}

// Client implements settings.Vault on a KV v2 mount. Each credential is one
// secret named after its composite id.
type Client struct {
	client      *vaultapi.Client
	namespace   string
	addressHost string
	mount       string
	prefix      string
}

// New connects and authenticates to Vault.
func New(opts Options) (*Client, error) {
	address := strings.TrimSpace(opts.Address)
	if address == "" {
		return nil, errors.New("vault address is required")
	}
	authType := strings.ToLower(strings.TrimSpace(opts.AuthType))
	if authType == "" {
		authType = AuthTypeToken
	}

	cfg := vaultapi.DefaultConfig()
	cfg.Address = address
	cfg.MaxRetries = 2
	cfg.HttpClient = &http.Client{
		Timeout:   30 * time.Second,
		Transport: buildHTTPTransport(opts.TLSSkipVerify, strings.TrimSpace(opts.TLSCACertPEM)),
	}
	addressHost := ""
	if parsed, err := neturl.Parse(address); err == nil {
		addressHost = strings.ToLower(strings.TrimSpace(parsed.Hostname()))
	}

	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client setup: %w", err)
	}
	namespace := strings.TrimSpace(opts.Namespace)
	if namespace != "" {
		client.SetNamespace(namespace)
	}

	switch authType {
	case AuthTypeToken:
		token := strings.TrimSpace(opts.Token)
		if token == "" {
			return nil, errors.New("vault token is required")
		}
		client.SetToken(token)
	case AuthTypeAppRole:
		if err := appRoleLogin(client, opts); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("vault auth type is invalid")
	}

	mount := normalizePath(opts.Mount)
	if mount == "" {
		mount = DefaultMount
	}
	prefix := normalizePath(opts.PathPrefix)
	if prefix == "" {
		prefix = DefaultPathPrefix
	}

	return &Client{
		client:      client,
		namespace:   namespace,
		addressHost: addressHost,
		mount:       mount,
		prefix:      prefix,
	}, nil
}

func appRoleLogin(client *vaultapi.Client, opts Options) error {
	roleID := strings.TrimSpace(opts.AppRoleRoleID)
	secretID := strings.TrimSpace(opts.AppRoleSecretID)
	mountPath := normalizePath(opts.AppRoleMountPath)
	if mountPath == "" {
		mountPath = "approle"
	}
	if roleID == "" {
		return errors.New("vault AppRole role ID is required")
	}
	if secretID == "" {
		return errors.New("vault AppRole secret ID is required")
	}
	loginPath := "auth/" + mountPath + "/login"
	secret, err := client.Logical().Write(loginPath, map[string]any{
		"role_id":   roleID,
		"secret_id": secretID,
	})
	if err != nil {
		return fmt.Errorf("vault approle login at %s: %w", loginPath, err)
	}
	if secret == nil || secret.Auth == nil || strings.TrimSpace(secret.Auth.ClientToken) == "" {
		return errors.New("vault approle login succeeded without client token")
	}
	client.SetToken(secret.Auth.ClientToken)
	return nil
}

// ListCredentials reads every credential under the path prefix.
func (c *Client) ListCredentials(ctx context.Context) (out []settings.Credential, err error) {
	defer func() { metrics.ObserveRemoteRequest("vault", err) }()

	ids, err := c.listKeys(ctx, c.metadataPath(""))
	if err != nil {
		return nil, err
	}
	out = make([]settings.Credential, 0, len(ids))
	for _, id := range ids {
		// Nested folders are not credentials.
		if strings.HasSuffix(id, "/") {
			continue
		}
		data, err := c.read(ctx, c.dataPath(id))
		if err != nil {
			return nil, err
		}
		fields := stringMap(data["data"])
		if len(fields) == 0 {
			continue
		}
		out = append(out, settings.Credential{
			ID:    id,
			Realm: fields["realm"],
			Key:   fields["key"],
			Value: fields["value"],
		})
	}
	slices.SortFunc(out, func(a, b settings.Credential) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// CreateCredential writes a new secret version for key in realm.
func (c *Client) CreateCredential(ctx context.Context, realm, key, value string) (err error) {
	defer func() { metrics.ObserveRemoteRequest("vault", err) }()

	id := settings.CredentialID(realm, key)
	path := c.dataPath(id)
	_, err = c.client.Logical().WriteWithContext(ctx, path, map[string]any{
		"data": map[string]any{
			"realm": realm,
			"key":   key,
			"value": value,
		},
	})
	if err != nil {
		return fmt.Errorf("vault write %s: %w", path, c.withNamespaceHint(err))
	}
	return nil
}

// DeleteCredential removes every version of the secret.
func (c *Client) DeleteCredential(ctx context.Context, id string) (err error) {
	defer func() { metrics.ObserveRemoteRequest("vault", err) }()

	path := c.metadataPath(id)
	if _, err = c.client.Logical().DeleteWithContext(ctx, path); err != nil {
		return fmt.Errorf("vault delete %s: %w", path, c.withNamespaceHint(err))
	}
	return nil
}

func (c *Client) dataPath(id string) string {
	return c.mount + "/data/" + c.prefix + "/" + id
}

func (c *Client) metadataPath(id string) string {
	path := c.mount + "/metadata/" + c.prefix
	if id != "" {
		path += "/" + id
	}
	return path
}

func (c *Client) listKeys(ctx context.Context, path string) ([]string, error) {
	secret, err := c.client.Logical().ListWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("vault list %s: %w", path, c.withNamespaceHint(err))
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}
	return dedupeNonEmpty(stringSlice(secret.Data["keys"])), nil
}

func (c *Client) read(ctx context.Context, path string) (map[string]any, error) {
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("vault read %s: %w", path, c.withNamespaceHint(err))
	}
	if secret == nil || secret.Data == nil {
		return map[string]any{}, nil
	}
	return secret.Data, nil
}

func stringSlice(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func stringMap(raw any) map[string]string {
	value, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(value))
	for key, item := range value {
		if s, ok := item.(string); ok {
			out[key] = s
		}
	}
	return out
}

func dedupeNonEmpty(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func normalizePath(path string) string {
	return strings.Trim(strings.TrimSpace(path), "/")
}

func (c *Client) withNamespaceHint(err error) error {
	if err == nil || strings.TrimSpace(c.namespace) != "" {
		return err
	}
	if !strings.HasSuffix(c.addressHost, ".hashicorp.cloud") {
		return err
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "permission denied") && !strings.Contains(msg, "403") {
		return err
	}
	return fmt.Errorf("%w (tip: set namespace to \"admin\" for HCP Vault Dedicated)", err)
}

func buildHTTPTransport(skipVerify bool, caCertPEM string) http.RoundTripper {
	base, _ := http.DefaultTransport.(*http.Transport)
	if base == nil {
		return http.DefaultTransport
	}
	transport := base.Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: skipVerify, // #nosec G402 -- operator opt-in
	}
	if caCertPEM != "" {
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM([]byte(caCertPEM)) {
			transport.TLSClientConfig.RootCAs = pool
		}
	}
	return transport
}

var _ settings.Vault = (*Client)(nil)
