package integration

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
)

type clipboardIntegration struct{}

func newClipboard(Settings) (Integration, error) {
	return &clipboardIntegration{}, nil
}

func (c *clipboardIntegration) Name() string { return "clipboard" }

// Apply copies the new password to the system clipboard.
func (c *clipboardIntegration) Apply(_ context.Context, newPassword string) error {
	if err := clipboard.WriteAll(newPassword); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}
