package customresource

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/google/uuid"

	"github.com/familyarchive/stack-provisioners/internal/models"
)

const (
	// DefaultResponseMargin is reserved before the Lambda deadline to send a FAILED response
	DefaultResponseMargin = 2 * time.Second

	// DefaultPollInterval is the delay between poll invocations
	DefaultPollInterval = 2 * time.Minute
)

// Recorder persists one audit record per invocation
type Recorder interface {
	SaveRecord(ctx context.Context, record *models.ProvisioningRecord) error
}

// Notifier announces invocation outcomes
type Notifier interface {
	PublishOutcome(ctx context.Context, record *models.ProvisioningRecord) error
}

// Dispatcher routes custom resource events to a Handler and answers CloudFormation
type Dispatcher struct {
	handler      Handler
	responder    ResponseSender
	poller       PollScheduler
	pollInterval time.Duration
	recorder     Recorder
	notifier     Notifier
	margin       time.Duration
	stage        models.Stage
	logger       *slog.Logger
}

// Option customises a Dispatcher
type Option func(*Dispatcher)

// WithPoller enables pending results, re-invoking the function every interval
func WithPoller(poller PollScheduler, interval time.Duration) Option {
	return func(d *Dispatcher) {
		d.poller = poller
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithRecorder stores an audit record for every invocation
func WithRecorder(recorder Recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = recorder
	}
}

// WithNotifier publishes the outcome of every finished operation
func WithNotifier(notifier Notifier) Option {
	return func(d *Dispatcher) {
		d.notifier = notifier
	}
}

// WithResponseMargin sets the time reserved before the Lambda deadline
func WithResponseMargin(margin time.Duration) Option {
	return func(d *Dispatcher) {
		d.margin = margin
	}
}

// WithStage tags audit records with the deployment stage
func WithStage(stage models.Stage) Option {
	return func(d *Dispatcher) {
		d.stage = stage
	}
}

// NewDispatcher creates a dispatcher for handler
func NewDispatcher(handler Handler, responder ResponseSender, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		handler:      handler,
		responder:    responder,
		pollInterval: DefaultPollInterval,
		margin:       DefaultResponseMargin,
		stage:        models.StageDev,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle is the Lambda entry point. It returns an error only when the
// response could not be delivered to CloudFormation.
func (d *Dispatcher) Handle(ctx context.Context, event Event) error {
	logger := d.logger.With(
		slog.String("request_id", event.RequestID),
		slog.String("logical_resource_id", event.LogicalResourceID),
	)
	logger.DebugContext(ctx, "received custom resource event", event.logAttrs()...)

	op, err := OperationOf(&event)
	record := d.newRecord(&event, op)
	if err != nil {
		return d.fail(ctx, logger, &event, record, physicalResourceID(&event, nil), err)
	}

	logger.InfoContext(ctx, "handling custom resource operation",
		slog.String("operation", op.String()),
		slog.Int("attempt", event.CrHelperAttempt),
	)

	hctx, cancel := d.handlerContext(ctx)
	result, err := d.invoke(hctx, logger, op, newRequest(op, &event))
	cancel()

	if op == OperationPoll && (err != nil || result == nil || !result.Pending) {
		d.cleanupSchedule(ctx, logger, event.CrHelperSchedule)
	}

	physID := physicalResourceID(&event, result)
	if err != nil {
		return d.fail(ctx, logger, &event, record, physID, err)
	}
	if result == nil {
		result = &Result{}
	}

	if result.Pending {
		if err := d.schedulePoll(ctx, logger, &event, op, physID, result); err != nil {
			return d.fail(ctx, logger, &event, record, physID, err)
		}
		record.PhysicalResourceID = physID
		d.audit(ctx, logger, record)
		return nil
	}

	data := result.Data
	if op == OperationPoll {
		data = mergeData(event.CrHelperData.Data(), result.Data)
	}

	record.MarkSucceeded(physID)
	if err := d.respond(ctx, &event, cfn.StatusSuccess, physID, "", data); err != nil {
		logger.ErrorContext(ctx, "failed to deliver success response", slog.String("error", err.Error()))
		d.audit(ctx, logger, record)
		return err
	}

	logger.InfoContext(ctx, "custom resource operation succeeded",
		slog.String("operation", op.String()),
		slog.String("physical_resource_id", physID),
	)
	d.audit(ctx, logger, record)
	return nil
}

// invoke runs the hook for op, turning panics into errors
func (d *Dispatcher) invoke(ctx context.Context, logger *slog.Logger, op Operation, req *Request) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "handler panicked",
				slog.String("operation", op.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			result = nil
			err = fmt.Errorf("%s handler panicked: %v", op, r)
		}
	}()

	switch op {
	case OperationCreate:
		return d.handler.Create(ctx, req)
	case OperationUpdate:
		return d.handler.Update(ctx, req)
	case OperationDelete:
		return d.handler.Delete(ctx, req)
	case OperationPoll:
		return d.handler.Poll(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequestType, op)
	}
}

// handlerContext ends margin before the Lambda deadline
func (d *Dispatcher) handlerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok || d.margin <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline.Add(-d.margin))
}

// schedulePoll re-invokes the function later with the pending state
func (d *Dispatcher) schedulePoll(ctx context.Context, logger *slog.Logger, event *Event, op Operation, physID string, result *Result) error {
	if d.poller == nil {
		return fmt.Errorf("%s handler returned a pending result but polling is not configured", op)
	}

	next := *event
	next.CrHelperPoll = true
	next.CrHelperAttempt = event.CrHelperAttempt + 1
	next.PhysicalResourceID = physID
	if op == OperationPoll {
		next.CrHelperData = event.CrHelperData.Clone()
	} else {
		next.CrHelperData = result.State.Clone()
	}

	name, err := d.poller.Schedule(ctx, next, d.pollInterval)
	if err != nil {
		return fmt.Errorf("failed to schedule poll: %w", err)
	}

	logger.InfoContext(ctx, "custom resource operation pending",
		slog.String("operation", op.String()),
		slog.String("schedule_name", name),
		slog.Duration("poll_interval", d.pollInterval),
	)
	return nil
}

func (d *Dispatcher) cleanupSchedule(ctx context.Context, logger *slog.Logger, name string) {
	if d.poller == nil || name == "" {
		return
	}
	if err := d.poller.Cleanup(ctx, name); err != nil {
		logger.WarnContext(ctx, "failed to delete poll schedule",
			slog.String("schedule_name", name),
			slog.String("error", err.Error()),
		)
	}
}

// fail answers CloudFormation with FAILED and the error text as reason
func (d *Dispatcher) fail(ctx context.Context, logger *slog.Logger, event *Event, record *models.ProvisioningRecord, physID string, cause error) error {
	reason := cause.Error()
	logger.ErrorContext(ctx, "custom resource operation failed",
		slog.String("operation", record.Operation),
		slog.String("error", reason),
	)

	record.PhysicalResourceID = physID
	record.MarkFailed(reason)
	defer d.audit(ctx, logger, record)

	if err := d.respond(ctx, event, cfn.StatusFailed, physID, reason, nil); err != nil {
		logger.ErrorContext(ctx, "failed to deliver failure response", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (d *Dispatcher) respond(ctx context.Context, event *Event, status cfn.StatusType, physID, reason string, data map[string]interface{}) error {
	resp := cfn.NewResponse(&event.Event)
	resp.Status = status
	resp.PhysicalResourceID = physID
	resp.Reason = reason
	resp.Data = data
	return d.responder.Send(ctx, event.ResponseURL, resp)
}

func (d *Dispatcher) newRecord(event *Event, op Operation) *models.ProvisioningRecord {
	name := op.String()
	if name == "" {
		name = "unknown"
	}
	record := models.NewProvisioningRecord(event.RequestID, name, event.CrHelperAttempt, d.stage)
	record.StackID = event.StackID
	record.LogicalResourceID = event.LogicalResourceID
	record.ResourceType = event.ResourceType
	record.RequestType = string(event.RequestType)
	return record
}

// audit stores and publishes the record. Failures are logged only.
func (d *Dispatcher) audit(ctx context.Context, logger *slog.Logger, record *models.ProvisioningRecord) {
	if d.recorder != nil {
		if err := d.recorder.SaveRecord(ctx, record); err != nil {
			logger.WarnContext(ctx, "failed to save provisioning record",
				slog.String("record_id", record.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if d.notifier != nil {
		if err := d.notifier.PublishOutcome(ctx, record); err != nil {
			logger.WarnContext(ctx, "failed to publish provisioning outcome",
				slog.String("record_id", record.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// FailAll returns an entry point for a function whose initialisation failed.
// Every request is answered FAILED with initErr as reason, except Delete which
// succeeds so rollback and teardown can finish.
func FailAll(initErr error, responder ResponseSender, logger *slog.Logger) func(context.Context, Event) error {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, event Event) error {
		status := cfn.StatusFailed
		reason := fmt.Sprintf("initialisation failed: %v", initErr)
		if event.RequestType == cfn.RequestDelete {
			status = cfn.StatusSuccess
			reason = ""
		}

		logger.ErrorContext(ctx, "answering request from a function that failed to initialise",
			slog.String("request_id", event.RequestID),
			slog.String("request_type", string(event.RequestType)),
			slog.String("status", string(status)),
			slog.String("error", initErr.Error()),
		)

		resp := cfn.NewResponse(&event.Event)
		resp.Status = status
		resp.PhysicalResourceID = physicalResourceID(&event, nil)
		resp.Reason = reason
		return responder.Send(ctx, event.ResponseURL, resp)
	}
}

// physicalResourceID picks the handler's id, then the event's, then generates one
func physicalResourceID(event *Event, result *Result) string {
	if result != nil && result.PhysicalResourceID != "" {
		return result.PhysicalResourceID
	}
	if event.PhysicalResourceID != "" {
		return event.PhysicalResourceID
	}
	return generatePhysicalID(event)
}

// generatePhysicalID returns <stack name>_<logical id>_<8 random chars>
func generatePhysicalID(event *Event) string {
	stackName := event.StackID
	if parts := strings.Split(event.StackID, "/"); len(parts) > 1 {
		stackName = parts[1]
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s", stackName, event.LogicalResourceID, suffix)
}

// mergeData overlays poll data on the carried hook state
func mergeData(state, data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(state)+len(data))
	for k, v := range state {
		out[k] = v
	}
	for k, v := range data {
		out[k] = v
	}
	return out
}
