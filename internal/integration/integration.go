// Package integration delivers the newly set password to downstream
// consumers. Each integration is a pure side-effect handler; the pipeline
// invokes the enabled ones in configuration order after a successful reset.
package integration

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Integration consumes the final password and produces a side effect.
type Integration interface {
	Name() string
	Apply(ctx context.Context, newPassword string) error
}

// Settings carries the per-integration configuration blocks. Integrations
// that need no configuration ignore it.
type Settings struct {
	// Command is the argv template for the command integration; the literal
	// "{password}" in any argument is replaced with the new password.
	Command []string      `yaml:"command"`
	Vault   VaultSettings `yaml:"vault"`
}

// VaultSettings configures the vault integration.
type VaultSettings struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token"`
	Mount   string `yaml:"mount"`
	Path    string `yaml:"path"`
	Key     string `yaml:"key"`
}

// Factory builds an integration from its settings.
type Factory func(settings Settings) (Integration, error)

// registry maps configuration names to integration factories. Resolution
// happens once at startup; an unknown name is a configuration error, not a
// dispatch-time surprise.
var registry = map[string]Factory{
	"print":     newPrint,
	"clipboard": newClipboard,
	"command":   newCommand,
	"vault":     newVault,
}

// Resolve instantiates the named integrations in order.
func Resolve(names []string, settings Settings) ([]Integration, error) {
	resolved := make([]Integration, 0, len(names))
	for _, name := range names {
		factory, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown integration %q", name)
		}
		integ, err := factory(settings)
		if err != nil {
			return nil, fmt.Errorf("failed to set up integration %q: %w", name, err)
		}
		resolved = append(resolved, integ)
	}
	return resolved, nil
}

// Dispatch invokes every integration with the new password. A failing
// integration does not stop the others; all failures are joined into the
// returned error.
func Dispatch(ctx context.Context, integrations []Integration, newPassword string) error {
	var errs []error
	for _, integ := range integrations {
		log.Infof("Invoking %s integration.", integ.Name())
		if err := integ.Apply(ctx, newPassword); err != nil {
			log.Errorf("Integration %s failed: %v", integ.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", integ.Name(), err))
		}
	}
	return errors.Join(errs...)
}
