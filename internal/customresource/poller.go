package customresource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	"github.com/aws/aws-sdk-go-v2/service/scheduler/types"
	"github.com/google/uuid"
)

const (
	// maxScheduleNameLength is the EventBridge Scheduler limit on schedule names
	maxScheduleNameLength = 64

	atExpressionLayout = "2006-01-02T15:04:05"
)

// SchedulerAPI is the subset of the EventBridge Scheduler client the poller uses
type SchedulerAPI interface {
	CreateSchedule(ctx context.Context, params *scheduler.CreateScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.CreateScheduleOutput, error)
	DeleteSchedule(ctx context.Context, params *scheduler.DeleteScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.DeleteScheduleOutput, error)
}

// PollScheduler arranges for the running function to be invoked again later
type PollScheduler interface {
	Schedule(ctx context.Context, event Event, delay time.Duration) (string, error)
	Cleanup(ctx context.Context, name string) error
}

// Poller implements PollScheduler with one-time EventBridge schedules
type Poller struct {
	client  SchedulerAPI
	roleArn string
	group   string
	now     func() time.Time
	logger  *slog.Logger
}

// NewPoller creates a poller. roleArn must allow the scheduler to invoke the function.
func NewPoller(client SchedulerAPI, roleArn, group string, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:  client,
		roleArn: roleArn,
		group:   group,
		now:     time.Now,
		logger:  logger,
	}
}

// Schedule creates a one-time schedule that re-invokes the current function
// with event after delay. It returns the schedule name.
func (p *Poller) Schedule(ctx context.Context, event Event, delay time.Duration) (string, error) {
	lc, ok := lambdacontext.FromContext(ctx)
	if !ok || lc.InvokedFunctionArn == "" {
		return "", fmt.Errorf("function arn is not available in the invocation context")
	}
	if p.roleArn == "" {
		return "", fmt.Errorf("scheduler role arn is not configured")
	}

	name := scheduleName(event.LogicalResourceID)
	event.CrHelperSchedule = name

	payload, err := json.Marshal(&event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal poll event: %w", err)
	}

	expression := atExpression(p.now().Add(delay))
	input := &scheduler.CreateScheduleInput{
		Name:                       aws.String(name),
		ScheduleExpression:         aws.String(expression),
		ScheduleExpressionTimezone: aws.String("UTC"),
		State:                      types.ScheduleStateEnabled,
		Description:                aws.String(fmt.Sprintf("poll %s for request %s", event.LogicalResourceID, event.RequestID)),
		ActionAfterCompletion:      types.ActionAfterCompletionDelete,
		FlexibleTimeWindow: &types.FlexibleTimeWindow{
			Mode: types.FlexibleTimeWindowModeOff,
		},
		Target: &types.Target{
			Arn:     aws.String(lc.InvokedFunctionArn),
			RoleArn: aws.String(p.roleArn),
			Input:   aws.String(string(payload)),
		},
	}
	if p.group != "" {
		input.GroupName = aws.String(p.group)
	}

	if _, err := p.client.CreateSchedule(ctx, input); err != nil {
		return "", fmt.Errorf("failed to create poll schedule: %w", err)
	}

	p.logger.InfoContext(ctx, "poll scheduled",
		slog.String("schedule_name", name),
		slog.String("schedule_expression", expression),
		slog.Int("attempt", event.CrHelperAttempt),
	)
	return name, nil
}

// Cleanup deletes a poll schedule. A schedule that is already gone is not an error.
func (p *Poller) Cleanup(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}

	input := &scheduler.DeleteScheduleInput{
		Name: aws.String(name),
	}
	if p.group != "" {
		input.GroupName = aws.String(p.group)
	}

	if _, err := p.client.DeleteSchedule(ctx, input); err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to delete poll schedule %s: %w", name, err)
	}

	p.logger.DebugContext(ctx, "poll schedule deleted", slog.String("schedule_name", name))
	return nil
}

// atExpression formats a one-time schedule expression in UTC
func atExpression(t time.Time) string {
	return fmt.Sprintf("at(%s)", t.UTC().Format(atExpressionLayout))
}

// scheduleName builds a unique name matching ^[0-9a-zA-Z-_.]+$
func scheduleName(logicalID string) string {
	suffix := uuid.NewString()

	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '-'
	}, logicalID)
	if sanitized == "" {
		sanitized = "poll"
	}

	if limit := maxScheduleNameLength - len(suffix) - 1; len(sanitized) > limit {
		sanitized = sanitized[:limit]
	}
	return sanitized + "-" + suffix
}
