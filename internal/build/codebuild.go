// Package build starts and inspects CodeBuild builds.
package build

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/codebuild/types"

	"github.com/familyarchive/stack-provisioners/internal/models"
)

// CodeBuildAPI is the subset of the CodeBuild client the runner uses
type CodeBuildAPI interface {
	StartBuild(ctx context.Context, params *codebuild.StartBuildInput, optFns ...func(*codebuild.Options)) (*codebuild.StartBuildOutput, error)
	BatchGetBuilds(ctx context.Context, params *codebuild.BatchGetBuildsInput, optFns ...func(*codebuild.Options)) (*codebuild.BatchGetBuildsOutput, error)
}

// Runner defines the build operations the frontend builder needs
type Runner interface {
	Start(ctx context.Context, project string, env []models.EnvironmentVariable) (string, error)
	Get(ctx context.Context, buildID string) (*models.BuildReport, error)
}

// CodeBuildRunner implements Runner on AWS CodeBuild
type CodeBuildRunner struct {
	client CodeBuildAPI
	logger *slog.Logger
}

// NewCodeBuildRunner creates a new CodeBuild runner
func NewCodeBuildRunner(client CodeBuildAPI, logger *slog.Logger) *CodeBuildRunner {
	if logger == nil {
		logger = slog.Default()
	}

	return &CodeBuildRunner{
		client: client,
		logger: logger,
	}
}

// Start starts one build, overriding the given variables as plaintext
func (r *CodeBuildRunner) Start(ctx context.Context, project string, env []models.EnvironmentVariable) (string, error) {
	overrides := make([]types.EnvironmentVariable, 0, len(env))
	for _, v := range env {
		overrides = append(overrides, types.EnvironmentVariable{
			Name:  aws.String(v.Name),
			Value: aws.String(v.Value),
			Type:  types.EnvironmentVariableTypePlaintext,
		})
	}

	out, err := r.client.StartBuild(ctx, &codebuild.StartBuildInput{
		ProjectName:                  aws.String(project),
		EnvironmentVariablesOverride: overrides,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start build for project %s: %w", project, err)
	}
	if out.Build == nil || aws.ToString(out.Build.Id) == "" {
		return "", fmt.Errorf("start build for project %s returned no build id", project)
	}

	buildID := aws.ToString(out.Build.Id)
	r.logger.InfoContext(ctx, "build started",
		slog.String("project", project),
		slog.String("build_id", buildID),
		slog.Int("env_overrides", len(overrides)),
	)

	return buildID, nil
}

// Get fetches the current state of one build
func (r *CodeBuildRunner) Get(ctx context.Context, buildID string) (*models.BuildReport, error) {
	out, err := r.client.BatchGetBuilds(ctx, &codebuild.BatchGetBuildsInput{
		Ids: []string{buildID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get build %s: %w", buildID, err)
	}
	if len(out.Builds) == 0 {
		return nil, fmt.Errorf("build not found: %s", buildID)
	}

	b := out.Builds[0]
	report := &models.BuildReport{
		ID:           aws.ToString(b.Id),
		ProjectName:  aws.ToString(b.ProjectName),
		Status:       models.BuildStatus(b.BuildStatus),
		CurrentPhase: aws.ToString(b.CurrentPhase),
	}
	if b.Artifacts != nil {
		report.ArtifactLocation = aws.ToString(b.Artifacts.Location)
	}
	if b.Logs != nil {
		report.LogsDeepLink = aws.ToString(b.Logs.DeepLink)
	}

	return report, nil
}
