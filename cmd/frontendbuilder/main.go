package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"

	"github.com/familyarchive/stack-provisioners/internal/build"
	"github.com/familyarchive/stack-provisioners/internal/customresource"
	"github.com/familyarchive/stack-provisioners/internal/frontend"
	"github.com/familyarchive/stack-provisioners/internal/httpclient"
	"github.com/familyarchive/stack-provisioners/internal/logging"
	appconfig "github.com/familyarchive/stack-provisioners/pkg/config"
)

func main() {
	// Setup structured logging
	logger := logging.NewLogger(os.Stdout, "frontend-builder")
	slog.SetDefault(logger)

	responder := customresource.NewResponder(httpclient.NewClient(logger), logger)

	handler, err := newHandler(context.Background(), responder, logger)
	if err != nil {
		logger.Error("frontend builder failed to initialise", slog.String("error", err.Error()))
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
	if err := cfg.ValidatePolling(); err != nil {
		return nil, err
	}

	logger.Info("frontend builder starting",
		slog.String("stage", cfg.Stage.String()),
		slog.String("region", cfg.AWSRegion),
		slog.Duration("poll_interval", cfg.PollInterval),
	)

	// Initialize AWS SDK
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	runner := build.NewCodeBuildRunner(codebuild.NewFromConfig(awsCfg), logger)
	poller := customresource.NewPoller(scheduler.NewFromConfig(awsCfg), cfg.SchedulerRoleArn, cfg.ScheduleGroup, logger)

	opts := append(customresource.ConfigOptions(cfg, awsCfg, logger), customresource.WithPoller(poller, cfg.PollInterval))
	dispatcher := customresource.NewDispatcher(frontend.NewBuilder(runner, logger), responder, logger, opts...)
	return dispatcher.Handle, nil
}
