package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/familyarchive/stack-provisioners/internal/admin"
	"github.com/familyarchive/stack-provisioners/internal/customresource"
	"github.com/familyarchive/stack-provisioners/internal/httpclient"
	"github.com/familyarchive/stack-provisioners/internal/identity"
	"github.com/familyarchive/stack-provisioners/internal/logging"
	"github.com/familyarchive/stack-provisioners/internal/mailer"
	"github.com/familyarchive/stack-provisioners/internal/models"
	"github.com/familyarchive/stack-provisioners/internal/secrets"
	"github.com/familyarchive/stack-provisioners/internal/templates"
	appconfig "github.com/familyarchive/stack-provisioners/pkg/config"
)

func main() {
	// Setup structured logging
	logger := logging.NewLogger(os.Stdout, "admin-provisioner")
	slog.SetDefault(logger)

	// The responder needs nothing but HTTP, so init failures can still be answered
	responder := customresource.NewResponder(httpclient.NewClient(logger), logger)

	handler, err := newHandler(context.Background(), responder, logger)
	if err != nil {
		logger.Error("admin provisioner failed to initialise", slog.String("error", err.Error()))
		lambda.Start(customresource.FailAll(err, responder, logger))
		return
	}

	// Start Lambda handler
	lambda.Start(handler)
}

func newHandler(ctx context.Context, responder customresource.ResponseSender, logger *slog.Logger) (func(context.Context, customresource.Event) error, error) {
	// Load configuration
	cfg, err := appconfig.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Info("admin provisioner starting",
		slog.String("stage", cfg.Stage.String()),
		slog.String("region", cfg.AWSRegion),
		slog.String("invite_strategy", cfg.InviteStrategy.String()),
	)

	// Initialize AWS SDK
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	catalog, err := templates.Load()
	if err != nil {
		return nil, err
	}

	directory := identity.NewCognitoDirectory(cognitoidentityprovider.NewFromConfig(awsCfg), logger)

	deps := admin.Dependencies{
		Directory:      directory,
		Catalog:        catalog,
		PasswordLength: cfg.TempPasswordLength,
		Logger:         logger,
	}
	if cfg.InviteStrategy == models.InviteStrategyEmail {
		deps.Sender = mailer.NewSESSender(sesv2.NewFromConfig(awsCfg), logger)
		if cfg.CredentialsSecretPrefix != "" {
			deps.Vault = secrets.NewManager(secretsmanager.NewFromConfig(awsCfg), cfg.CredentialsSecretPrefix, logger)
		}
	}

	invitation, err := admin.NewInvitation(cfg.InviteStrategy, deps)
	if err != nil {
		return nil, err
	}

	dispatcher := customresource.NewDispatcher(
		admin.NewProvisioner(directory, invitation, logger),
		responder,
		logger,
		customresource.ConfigOptions(cfg, awsCfg, logger)...,
	)
	return dispatcher.Handle, nil
}
