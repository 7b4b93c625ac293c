// Package main is the netreset entry point. It drives the full pipeline:
// initiate the reset flow against the identity provider, wait for the
// confirmation email, generate and submit a new password, then hand the
// password to the enabled integrations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/illinilabs/netreset/internal/config"
	"github.com/illinilabs/netreset/internal/idp"
	"github.com/illinilabs/netreset/internal/integration"
	"github.com/illinilabs/netreset/internal/logging"
	"github.com/illinilabs/netreset/internal/mailbox"
	"github.com/illinilabs/netreset/internal/passgen"
	"github.com/illinilabs/netreset/internal/session"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func init() {
	logging.SetupBaseLogger()
}

func main() {
	var configPath string
	var dryRun bool
	var timeout time.Duration

	flag.StringVar(&configPath, "config", "config.yaml", "Configuration file path")
	flag.BoolVar(&dryRun, "dry-run", false, "Validate configuration and show a sample password without contacting any provider")
	flag.DurationVar(&timeout, "timeout", 15*time.Minute, "Overall deadline for the reset run")
	flag.Parse()

	// Secrets may live in a .env file next to the binary instead of the
	// config file itself.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err = logging.ConfigureOutput(cfg.LoggingToFile, "logs", cfg.Debug); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	logging.SetRunID(strings.Split(uuid.NewString(), "-")[0])

	integrations, err := integration.Resolve(cfg.Integrations, cfg.Integration)
	if err != nil {
		log.Fatalf("Failed to resolve integrations: %v", err)
	}

	if dryRun {
		log.Infof("Configuration is valid; %d integration(s) enabled.", len(integrations))
		log.Infof("Sample generated password: %s", passgen.New().Generate())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	requested, err := runReset(ctx, cfg, integrations)
	if err != nil {
		log.Fatalf("Password reset failed: %v", err)
	}
	log.Infof("Password reset completed (requested at %s).", requested.Format(time.RFC3339))
}

// runReset executes the pipeline end to end and returns the correlation
// anchor for reporting. Nothing downstream of a failure runs: either the
// password is reset and integrations fire, or the run aborts.
func runReset(ctx context.Context, cfg *config.Config, integrations []integration.Integration) (time.Time, error) {
	sess, err := session.New(cfg.ProxyURL)
	if err != nil {
		return time.Time{}, err
	}
	engine := idp.NewEngine(sess, cfg.Auth.NetID, cfg.Auth.DuoSecretBase32())
	applyEndpoints(cfg, engine, nil)

	requested, err := engine.InitiateReset(ctx)
	if err != nil {
		return time.Time{}, err
	}
	log.Infof("Requested password reset email at %s.", requested.Format(time.RFC3339))

	poller := mailbox.New(mailbox.Options{
		Server:    cfg.Mail.Server,
		Port:      cfg.Mail.Port,
		Username:  cfg.Mail.Address,
		Password:  cfg.Mail.Password,
		Subject:   cfg.Mail.Subject,
		URLPrefix: cfg.Mail.URLPrefix,
		Interval:  cfg.Poll.Interval.Std(),
		MaxWait:   cfg.Poll.MaxWait.Std(),
	})
	link, err := poller.AwaitResetLink(ctx, requested)
	if err != nil {
		if errors.Is(err, mailbox.ErrCorrelationTimeout) {
			log.Error("The confirmation email never arrived; the reset request may still be pending on the provider side.")
		}
		return time.Time{}, err
	}

	newPassword := passgen.New().Generate()
	log.Info("Resetting password.")

	// The reset link establishes its own session; reusing the MFA session's
	// cookies here can confuse the provider.
	resetSess, err := session.New(cfg.ProxyURL)
	if err != nil {
		return time.Time{}, err
	}
	submitter := idp.NewSubmitter(resetSess)
	applyEndpoints(cfg, nil, submitter)
	if _, err = submitter.Apply(ctx, link, newPassword); err != nil {
		return time.Time{}, err
	}

	if err = integration.Dispatch(ctx, integrations, newPassword); err != nil {
		return time.Time{}, fmt.Errorf("password was reset, but integrations failed: %w", err)
	}
	return requested, nil
}

// applyEndpoints wires optional endpoint overrides into the flow components.
func applyEndpoints(cfg *config.Config, engine *idp.Engine, submitter *idp.Submitter) {
	idpBase := cfg.Endpoints.IDServer
	duoBase := cfg.Endpoints.Duo
	if engine != nil && (idpBase != "" || duoBase != "") {
		if idpBase == "" {
			idpBase = idp.IDServerEndpoint
		}
		if duoBase == "" {
			duoBase = idp.DuoEndpoint
		}
		engine.SetEndpoints(idpBase, duoBase)
	}
	if submitter != nil && idpBase != "" {
		submitter.SetEndpoint(idpBase)
	}
}
