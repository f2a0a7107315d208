// SPDX-License-Identifier: LGPL-3.0-or-later

// Package credentials resolves cloud-provider credentials for the
// resolver package from HashiCorp Vault's KV v2 secrets engine, so a
// deployment can hand hyperfetch a Vault path instead of baking access
// keys into its configuration file.
package credentials

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig names the Vault connection and the KV v2 mount credentials
// are read from.
type VaultConfig struct {
	Address       string
	Token         string
	Namespace     string
	Mount         string
	TLSSkipVerify bool
}

// Store resolves a named credential set, e.g. the access key/secret pair
// a resolver needs to reach a cloud object store.
type Store interface {
	Get(ctx context.Context, name string) (map[string]string, error)
}

// VaultStore reads credential sets from Vault's KV v2 engine.
type VaultStore struct {
	client *vault.Client
	mount  string
}

// NewVaultStore builds a client the same way the teacher's secrets
// manager does: a fixed address and token, optional Enterprise
// namespace, and an optional TLS-skip-verify escape hatch for
// self-signed dev clusters.
func NewVaultStore(cfg VaultConfig) (*VaultStore, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("vault address is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("vault token is required")
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	if cfg.TLSSkipVerify {
		vaultCfg.HttpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}

	return &VaultStore{client: client, mount: mount}, nil
}

// Get reads the credential set stored at name, e.g. "aws/s3-exports"
// holding "access_key_id"/"secret_access_key" keys.
func (v *VaultStore) Get(ctx context.Context, name string) (map[string]string, error) {
	path := v.credentialPath(name)

	secret, err := v.client.KVv2(v.mount).Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read vault secret %s: %w", name, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault secret not found: %s", name)
	}

	values := make(map[string]string, len(secret.Data))
	for k, raw := range secret.Data {
		if str, ok := raw.(string); ok {
			values[k] = str
		}
	}
	return values, nil
}

// credentialPath strips a leading "<mount>/" prefix from name, so callers
// may pass either the mount-qualified path or the bare path beneath the
// mount; any other prefix is kept as part of the path.
func (v *VaultStore) credentialPath(name string) string {
	return strings.TrimPrefix(name, v.mount+"/")
}

// Health checks Vault connectivity and seal status before a resolver
// relies on it.
func (v *VaultStore) Health(ctx context.Context) error {
	health, err := v.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if !health.Initialized {
		return fmt.Errorf("vault is not initialized")
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}
