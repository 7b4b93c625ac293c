package integration

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"
)

type vaultIntegration struct {
	client *api.Client
	mount  string
	path   string
	key    string
}

// newVault builds the Vault integration, which writes the new password into
// a KV v2 secret so other machines can pick it up. Address and token fall
// back to the standard VAULT_ADDR/VAULT_TOKEN environment handling of the
// Vault client.
func newVault(settings Settings) (Integration, error) {
	cfg := api.DefaultConfig()
	if settings.Vault.Address != "" {
		cfg.Address = settings.Vault.Address
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if settings.Vault.Token != "" {
		client.SetToken(settings.Vault.Token)
	}
	v := &vaultIntegration{
		client: client,
		mount:  settings.Vault.Mount,
		path:   settings.Vault.Path,
		key:    settings.Vault.Key,
	}
	if v.mount == "" {
		v.mount = "secret"
	}
	if v.path == "" {
		return nil, fmt.Errorf("vault integration requires integration.vault.path")
	}
	if v.key == "" {
		v.key = "password"
	}
	return v, nil
}

func (v *vaultIntegration) Name() string { return "vault" }

// Apply stores the new password at the configured KV v2 path.
func (v *vaultIntegration) Apply(ctx context.Context, newPassword string) error {
	_, err := v.client.KVv2(v.mount).Put(ctx, v.path, map[string]interface{}{
		v.key: newPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to write password to vault: %w", err)
	}
	return nil
}
