package customresource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/cfn"

	"github.com/familyarchive/stack-provisioners/internal/models"
)

// ErrUnknownRequestType is returned for events whose RequestType is not
// Create, Update or Delete
var ErrUnknownRequestType = errors.New("unknown request type")

// Event is a CloudFormation custom resource event. Poll re-invocations carry
// the same event with the CrHelper fields set.
type Event struct {
	cfn.Event

	// CrHelperPoll marks an invocation scheduled to check on a pending operation
	CrHelperPoll bool `json:"CrHelperPoll,omitempty"`

	// CrHelperData is the hook state of the pending operation
	CrHelperData models.HookState `json:"CrHelperData,omitempty"`

	// CrHelperSchedule is the name of the schedule that triggered this poll
	CrHelperSchedule string `json:"CrHelperSchedule,omitempty"`

	// CrHelperAttempt counts poll invocations, starting at 1
	CrHelperAttempt int `json:"CrHelperAttempt,omitempty"`
}

// Operation identifies which handler hook an event is routed to
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationPoll   Operation = "poll"
)

// String returns the string representation of the operation
func (o Operation) String() string {
	return string(o)
}

// OperationOf derives the operation for an event. A poll flag takes
// precedence over the request type.
func OperationOf(event *Event) (Operation, error) {
	if event.CrHelperPoll {
		return OperationPoll, nil
	}

	switch event.RequestType {
	case cfn.RequestCreate:
		return OperationCreate, nil
	case cfn.RequestUpdate:
		return OperationUpdate, nil
	case cfn.RequestDelete:
		return OperationDelete, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRequestType, event.RequestType)
	}
}

// Request is what a handler hook receives
type Request struct {
	Operation   Operation
	RequestType cfn.RequestType

	RequestID          string
	StackID            string
	LogicalResourceID  string
	ResourceType       string
	PhysicalResourceID string

	Properties    map[string]interface{}
	OldProperties map[string]interface{}

	// State is empty unless Operation is OperationPoll
	State models.HookState

	// Attempt is the poll attempt number, 0 for the initial request
	Attempt int
}

func newRequest(op Operation, event *Event) *Request {
	state := event.CrHelperData.Clone()
	return &Request{
		Operation:          op,
		RequestType:        event.RequestType,
		RequestID:          event.RequestID,
		StackID:            event.StackID,
		LogicalResourceID:  event.LogicalResourceID,
		ResourceType:       event.ResourceType,
		PhysicalResourceID: event.PhysicalResourceID,
		Properties:         event.ResourceProperties,
		OldProperties:      event.OldResourceProperties,
		State:              state,
		Attempt:            event.CrHelperAttempt,
	}
}

// StringProperty returns a resource property as a string. CloudFormation
// passes scalar properties as strings; other values are formatted.
func (r *Request) StringProperty(key string) string {
	v, ok := r.Properties[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// DecodeProperties unmarshals the resource properties into v
func (r *Request) DecodeProperties(v interface{}) error {
	raw, err := json.Marshal(r.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal resource properties: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode resource properties: %w", err)
	}
	return nil
}

// Result is what a handler hook returns
type Result struct {
	// PhysicalResourceID overrides the id reported to CloudFormation
	PhysicalResourceID string

	// Data is returned to the stack as Fn::GetAtt attributes
	Data map[string]interface{}

	// State is carried to the next poll when Pending is set
	State models.HookState

	// Pending means the operation is not finished and must be polled again
	Pending bool
}

// Handler implements the lifecycle hooks of one custom resource type
type Handler interface {
	Create(ctx context.Context, req *Request) (*Result, error)
	Update(ctx context.Context, req *Request) (*Result, error)
	Delete(ctx context.Context, req *Request) (*Result, error)
	Poll(ctx context.Context, req *Request) (*Result, error)
}

// logAttrs describes the event for debug logging without the pre-signed URL
func (e *Event) logAttrs() []any {
	return []any{
		slog.String("request_type", string(e.RequestType)),
		slog.String("resource_type", e.ResourceType),
		slog.String("logical_resource_id", e.LogicalResourceID),
		slog.String("physical_resource_id", e.PhysicalResourceID),
		slog.String("stack_id", e.StackID),
		slog.String("response_url", "[REDACTED]"),
		slog.Any("resource_properties", e.ResourceProperties),
		slog.Bool("poll", e.CrHelperPoll),
		slog.Int("attempt", e.CrHelperAttempt),
	}
}
