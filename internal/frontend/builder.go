// Package frontend builds the web front-end of a stack with CodeBuild and
// waits for the build to finish.
package frontend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/familyarchive/stack-provisioners/internal/build"
	"github.com/familyarchive/stack-provisioners/internal/customresource"
	"github.com/familyarchive/stack-provisioners/internal/models"
)

// Hook state and response data keys
const (
	KeyBuildID          = "BuildId"
	KeyProjectName      = "ProjectName"
	KeyArtifactLocation = "ArtifactLocation"

	noLogsAvailable = "No logs available"
)

// Properties are the ResourceProperties of the frontend build resource
type Properties struct {
	ProjectName          string                       `json:"ProjectName"`
	EnvironmentVariables []models.EnvironmentVariable `json:"EnvironmentVariables"`
}

// Validate checks the properties needed to start a build
func (p Properties) Validate() error {
	if strings.TrimSpace(p.ProjectName) == "" {
		return fmt.Errorf("ProjectName is required")
	}
	for i, v := range p.EnvironmentVariables {
		if strings.TrimSpace(v.Name) == "" {
			return fmt.Errorf("EnvironmentVariables[%d] is missing Name", i)
		}
	}
	return nil
}

// BuildFailedError reports a build that ended in any status but SUCCEEDED
type BuildFailedError struct {
	BuildID  string
	Status   models.BuildStatus
	LogsLink string
}

func (e *BuildFailedError) Error() string {
	logs := e.LogsLink
	if logs == "" {
		logs = noLogsAvailable
	}
	return fmt.Sprintf("build %s failed with status %s. Logs: %s", e.BuildID, e.Status, logs)
}

// Outcome is the verdict on one poll of a build
type Outcome struct {
	// Done means the build succeeded and Data holds the response attributes
	Done bool
	Data map[string]interface{}
}

// Evaluate decides what a build report means for the pending operation.
// Running builds keep polling; any terminal status but SUCCEEDED is an error.
func Evaluate(state models.HookState, report *models.BuildReport) (Outcome, error) {
	switch {
	case report.Status == models.BuildStatusSucceeded:
		return Outcome{
			Done: true,
			Data: map[string]interface{}{KeyArtifactLocation: report.ArtifactLocation},
		}, nil
	case report.Status.IsRunning():
		return Outcome{}, nil
	default:
		buildID := state.Get(KeyBuildID)
		if buildID == "" {
			buildID = report.ID
		}
		return Outcome{}, &BuildFailedError{
			BuildID:  buildID,
			Status:   report.Status,
			LogsLink: report.LogsDeepLink,
		}
	}
}

// Builder is the custom resource handler for the frontend build
type Builder struct {
	runner build.Runner
	logger *slog.Logger
}

// NewBuilder creates a builder starting builds through runner
func NewBuilder(runner build.Runner, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		runner: runner,
		logger: logger,
	}
}

// Create starts a build
func (b *Builder) Create(ctx context.Context, req *customresource.Request) (*customresource.Result, error) {
	return b.start(ctx, req)
}

// Update starts a fresh build with the new properties
func (b *Builder) Update(ctx context.Context, req *customresource.Request) (*customresource.Result, error) {
	return b.start(ctx, req)
}

// Delete leaves the built artifacts in place
func (b *Builder) Delete(ctx context.Context, req *customresource.Request) (*customresource.Result, error) {
	b.logger.InfoContext(ctx, "delete requires no action")
	return &customresource.Result{}, nil
}

// Poll checks on the build recorded in the hook state
func (b *Builder) Poll(ctx context.Context, req *customresource.Request) (*customresource.Result, error) {
	buildID := req.State.Get(KeyBuildID)
	if buildID == "" {
		return nil, fmt.Errorf("poll state has no %s", KeyBuildID)
	}

	report, err := b.runner.Get(ctx, buildID)
	if err != nil {
		return nil, err
	}

	b.logger.InfoContext(ctx, "build status",
		slog.String("build_id", buildID),
		slog.String("status", report.Status.String()),
		slog.String("phase", report.CurrentPhase),
		slog.Int("attempt", req.Attempt),
	)

	outcome, err := Evaluate(req.State, report)
	if err != nil {
		return nil, err
	}
	if !outcome.Done {
		return &customresource.Result{Pending: true, State: req.State}, nil
	}
	return &customresource.Result{Data: outcome.Data}, nil
}

func (b *Builder) start(ctx context.Context, req *customresource.Request) (*customresource.Result, error) {
	var props Properties
	if err := req.DecodeProperties(&props); err != nil {
		return nil, err
	}
	if err := props.Validate(); err != nil {
		return nil, err
	}

	b.logger.InfoContext(ctx, "starting frontend build",
		slog.String("project", props.ProjectName),
		slog.Int("env_overrides", len(props.EnvironmentVariables)),
	)

	buildID, err := b.runner.Start(ctx, props.ProjectName, props.EnvironmentVariables)
	if err != nil {
		return nil, err
	}

	return &customresource.Result{
		Pending: true,
		State: models.HookState{
			KeyBuildID:     buildID,
			KeyProjectName: props.ProjectName,
		},
	}, nil
}
