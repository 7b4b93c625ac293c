package integration

import (
	"context"
	"fmt"
)

type printIntegration struct{}

func newPrint(Settings) (Integration, error) {
	return &printIntegration{}, nil
}

func (p *printIntegration) Name() string { return "print" }

// Apply shows the new password in a banner on stdout.
func (p *printIntegration) Apply(_ context.Context, newPassword string) error {
	fmt.Printf("\n\n====== Your New Password ======\n\n       %s\n\n===============================\n\n", newPassword)
	return nil
}
