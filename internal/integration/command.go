package integration

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

// passwordPlaceholder is replaced with the new password in the configured
// argv. Keeping the password out of the template keeps it out of config
// files and shell history.
const passwordPlaceholder = "{password}"

type commandIntegration struct {
	argv []string
}

// newCommand builds the external-command integration, e.g.
//
//	command: ["nmcli", "connection", "modify", "IllinoisNet", "802-1x.password", "{password}"]
//
// to push the new password into NetworkManager.
func newCommand(settings Settings) (Integration, error) {
	if len(settings.Command) == 0 {
		return nil, fmt.Errorf("command integration requires a non-empty argv in integration.command")
	}
	return &commandIntegration{argv: settings.Command}, nil
}

func (c *commandIntegration) Name() string { return "command" }

// renderArgv substitutes the password placeholder into the argv template.
func renderArgv(argv []string, newPassword string) []string {
	rendered := make([]string, len(argv))
	for i, arg := range argv {
		rendered[i] = strings.ReplaceAll(arg, passwordPlaceholder, newPassword)
	}
	return rendered
}

// Apply runs the configured command with the password substituted into its
// arguments.
func (c *commandIntegration) Apply(ctx context.Context, newPassword string) error {
	argv := renderArgv(c.argv, newPassword)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("command %s failed: %w (output: %s)", c.argv[0], err, strings.TrimSpace(string(output)))
	}
	log.Debugf("Command %s completed.", c.argv[0])
	return nil
}
