package customresource

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/cfn"

	"github.com/familyarchive/stack-provisioners/internal/models"
)

type hookFunc func(ctx context.Context, req *Request) (*Result, error)

type fakeHandler struct {
	create hookFunc
	update hookFunc
	delete hookFunc
	poll   hookFunc
	calls  []*Request
}

func (f *fakeHandler) run(hook hookFunc, ctx context.Context, req *Request) (*Result, error) {
	f.calls = append(f.calls, req)
	if hook == nil {
		return &Result{}, nil
	}
	return hook(ctx, req)
}

func (f *fakeHandler) Create(ctx context.Context, req *Request) (*Result, error) {
	return f.run(f.create, ctx, req)
}

func (f *fakeHandler) Update(ctx context.Context, req *Request) (*Result, error) {
	return f.run(f.update, ctx, req)
}

func (f *fakeHandler) Delete(ctx context.Context, req *Request) (*Result, error) {
	return f.run(f.delete, ctx, req)
}

func (f *fakeHandler) Poll(ctx context.Context, req *Request) (*Result, error) {
	return f.run(f.poll, ctx, req)
}

type sentResponse struct {
	url  string
	resp *cfn.Response
}

type fakeResponder struct {
	sent []sentResponse
	err  error
}

func (f *fakeResponder) Send(ctx context.Context, responseURL string, resp *cfn.Response) error {
	f.sent = append(f.sent, sentResponse{url: responseURL, resp: resp})
	return f.err
}

type fakePoller struct {
	scheduled   []Event
	delays      []time.Duration
	cleanedUp   []string
	scheduleErr error
}

func (f *fakePoller) Schedule(ctx context.Context, event Event, delay time.Duration) (string, error) {
	if f.scheduleErr != nil {
		return "", f.scheduleErr
	}
	f.scheduled = append(f.scheduled, event)
	f.delays = append(f.delays, delay)
	return "sched-1", nil
}

func (f *fakePoller) Cleanup(ctx context.Context, name string) error {
	f.cleanedUp = append(f.cleanedUp, name)
	return nil
}

type fakeRecorder struct {
	records []models.ProvisioningRecord
	err     error
}

func (f *fakeRecorder) SaveRecord(ctx context.Context, record *models.ProvisioningRecord) error {
	f.records = append(f.records, *record)
	return f.err
}

func (f *fakeRecorder) PublishOutcome(ctx context.Context, record *models.ProvisioningRecord) error {
	return f.SaveRecord(ctx, record)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newEvent(requestType cfn.RequestType) Event {
	return Event{
		Event: cfn.Event{
			RequestType:       requestType,
			RequestID:         "req-1",
			ResponseURL:       "https://example.com/response?sig=abc",
			ResourceType:      "Custom::Test",
			LogicalResourceID: "Resource",
			StackID:           "arn:aws:cloudformation:us-east-1:123456789012:stack/my-stack/guid",
			ResourceProperties: map[string]interface{}{
				"Key": "value",
			},
		},
	}
}

func onlyResponse(t *testing.T, r *fakeResponder) *cfn.Response {
	t.Helper()
	if len(r.sent) != 1 {
		t.Fatalf("responses sent = %d, want 1", len(r.sent))
	}
	return r.sent[0].resp
}

func TestOperationOf(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		want    Operation
		wantErr bool
	}{
		{name: "create", event: newEvent(cfn.RequestCreate), want: OperationCreate},
		{name: "update", event: newEvent(cfn.RequestUpdate), want: OperationUpdate},
		{name: "delete", event: newEvent(cfn.RequestDelete), want: OperationDelete},
		{
			name: "poll wins over request type",
			event: func() Event {
				e := newEvent(cfn.RequestCreate)
				e.CrHelperPoll = true
				return e
			}(),
			want: OperationPoll,
		},
		{name: "unknown", event: newEvent("Replace"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OperationOf(&tt.event)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownRequestType) {
					t.Errorf("OperationOf() error = %v, want ErrUnknownRequestType", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("OperationOf() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("OperationOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDispatcher_CreateSuccess(t *testing.T) {
	handler := &fakeHandler{
		create: func(ctx context.Context, req *Request) (*Result, error) {
			if req.StringProperty("Key") != "value" {
				t.Errorf("property Key = %q", req.StringProperty("Key"))
			}
			return &Result{Data: map[string]interface{}{"UserId": "u1"}}, nil
		},
	}
	responder := &fakeResponder{}
	d := NewDispatcher(handler, responder, testLogger())

	if err := d.Handle(context.Background(), newEvent(cfn.RequestCreate)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	resp := onlyResponse(t, responder)
	if resp.Status != cfn.StatusSuccess {
		t.Errorf("Status = %v, want SUCCESS", resp.Status)
	}
	if resp.Data["UserId"] != "u1" {
		t.Errorf("Data = %v", resp.Data)
	}
	if resp.RequestID != "req-1" || resp.LogicalResourceID != "Resource" {
		t.Errorf("response ids = %q/%q", resp.RequestID, resp.LogicalResourceID)
	}
	if responder.sent[0].url != "https://example.com/response?sig=abc" {
		t.Errorf("response url = %q", responder.sent[0].url)
	}

	pattern := regexp.MustCompile(`^my-stack_Resource_[0-9a-f]{8}$`)
	if !pattern.MatchString(resp.PhysicalResourceID) {
		t.Errorf("PhysicalResourceID = %q, want generated id", resp.PhysicalResourceID)
	}
}

func TestDispatcher_PhysicalResourceID(t *testing.T) {
	tests := []struct {
		name   string
		event  Event
		result *Result
		want   string
	}{
		{
			name:   "handler choice wins",
			event:  newEvent(cfn.RequestCreate),
			result: &Result{PhysicalResourceID: "admin@example.com"},
			want:   "admin@example.com",
		},
		{
			name: "event id kept on update",
			event: func() Event {
				e := newEvent(cfn.RequestUpdate)
				e.PhysicalResourceID = "existing-id"
				return e
			}(),
			result: &Result{},
			want:   "existing-id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &fakeHandler{
				create: func(ctx context.Context, req *Request) (*Result, error) { return tt.result, nil },
				update: func(ctx context.Context, req *Request) (*Result, error) { return tt.result, nil },
			}
			responder := &fakeResponder{}
			d := NewDispatcher(handler, responder, testLogger())

			if err := d.Handle(context.Background(), tt.event); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if got := onlyResponse(t, responder).PhysicalResourceID; got != tt.want {
				t.Errorf("PhysicalResourceID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDispatcher_Failures(t *testing.T) {
	tests := []struct {
		name       string
		event      Event
		handler    *fakeHandler
		wantReason string
	}{
		{
			name:  "handler error",
			event: newEvent(cfn.RequestCreate),
			handler: &fakeHandler{
				create: func(ctx context.Context, req *Request) (*Result, error) {
					return nil, errors.New("user pool not found")
				},
			},
			wantReason: "user pool not found",
		},
		{
			name:  "handler panic",
			event: newEvent(cfn.RequestUpdate),
			handler: &fakeHandler{
				update: func(ctx context.Context, req *Request) (*Result, error) {
					panic("boom")
				},
			},
			wantReason: "update handler panicked: boom",
		},
		{
			name:       "unknown request type",
			event:      newEvent("Replace"),
			handler:    &fakeHandler{},
			wantReason: "unknown request type",
		},
		{
			name:  "pending without poller",
			event: newEvent(cfn.RequestCreate),
			handler: &fakeHandler{
				create: func(ctx context.Context, req *Request) (*Result, error) {
					return &Result{Pending: true}, nil
				},
			},
			wantReason: "polling is not configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responder := &fakeResponder{}
			recorder := &fakeRecorder{}
			d := NewDispatcher(tt.handler, responder, testLogger(), WithRecorder(recorder))

			if err := d.Handle(context.Background(), tt.event); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			resp := onlyResponse(t, responder)
			if resp.Status != cfn.StatusFailed {
				t.Errorf("Status = %v, want FAILED", resp.Status)
			}
			if !strings.Contains(resp.Reason, tt.wantReason) {
				t.Errorf("Reason = %q, want to contain %q", resp.Reason, tt.wantReason)
			}
			if resp.PhysicalResourceID == "" {
				t.Error("PhysicalResourceID is empty")
			}

			if len(recorder.records) != 1 || recorder.records[0].Status != models.RecordStatusFailed {
				t.Errorf("records = %+v, want one FAILED record", recorder.records)
			}
		})
	}
}

func TestDispatcher_PendingSchedulesPoll(t *testing.T) {
	handler := &fakeHandler{
		create: func(ctx context.Context, req *Request) (*Result, error) {
			return &Result{
				Pending: true,
				State:   models.HookState{"BuildId": "b1", "ProjectName": "web"},
			}, nil
		},
	}
	responder := &fakeResponder{}
	poller := &fakePoller{}
	recorder := &fakeRecorder{}
	d := NewDispatcher(handler, responder, testLogger(),
		WithPoller(poller, 90*time.Second),
		WithRecorder(recorder),
	)

	if err := d.Handle(context.Background(), newEvent(cfn.RequestCreate)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(responder.sent) != 0 {
		t.Fatalf("responses sent = %d, want none while pending", len(responder.sent))
	}
	if len(poller.scheduled) != 1 {
		t.Fatalf("polls scheduled = %d, want 1", len(poller.scheduled))
	}

	next := poller.scheduled[0]
	if !next.CrHelperPoll || next.CrHelperAttempt != 1 {
		t.Errorf("poll event flags = %v/%d", next.CrHelperPoll, next.CrHelperAttempt)
	}
	if next.CrHelperData.Get("BuildId") != "b1" || next.CrHelperData.Get("ProjectName") != "web" {
		t.Errorf("CrHelperData = %v", next.CrHelperData)
	}
	if next.PhysicalResourceID == "" {
		t.Error("poll event carries no physical resource id")
	}
	if poller.delays[0] != 90*time.Second {
		t.Errorf("delay = %v, want 90s", poller.delays[0])
	}
	if len(recorder.records) != 1 || recorder.records[0].Status != models.RecordStatusPending {
		t.Errorf("records = %+v, want one PENDING record", recorder.records)
	}
}

func TestDispatcher_ScheduleFailureFails(t *testing.T) {
	handler := &fakeHandler{
		create: func(ctx context.Context, req *Request) (*Result, error) {
			return &Result{Pending: true}, nil
		},
	}
	responder := &fakeResponder{}
	poller := &fakePoller{scheduleErr: errors.New("access denied")}
	d := NewDispatcher(handler, responder, testLogger(), WithPoller(poller, time.Minute))

	if err := d.Handle(context.Background(), newEvent(cfn.RequestCreate)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	resp := onlyResponse(t, responder)
	if resp.Status != cfn.StatusFailed || !strings.Contains(resp.Reason, "access denied") {
		t.Errorf("response = %s %q", resp.Status, resp.Reason)
	}
}

func pollEvent() Event {
	e := newEvent(cfn.RequestCreate)
	e.PhysicalResourceID = "my-stack_Resource_abcdef12"
	e.CrHelperPoll = true
	e.CrHelperAttempt = 2
	e.CrHelperSchedule = "Resource-sched"
	e.CrHelperData = models.HookState{"BuildId": "b1", "ProjectName": "web"}
	return e
}

func TestDispatcher_PollPendingKeepsState(t *testing.T) {
	handler := &fakeHandler{
		poll: func(ctx context.Context, req *Request) (*Result, error) {
			req.State["BuildId"] = "mutated"
			return &Result{Pending: true, State: req.State}, nil
		},
	}
	responder := &fakeResponder{}
	poller := &fakePoller{}
	d := NewDispatcher(handler, responder, testLogger(), WithPoller(poller, time.Minute))

	if err := d.Handle(context.Background(), pollEvent()); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(responder.sent) != 0 {
		t.Fatalf("responses sent = %d, want none", len(responder.sent))
	}
	if len(poller.scheduled) != 1 {
		t.Fatalf("polls scheduled = %d, want 1", len(poller.scheduled))
	}
	next := poller.scheduled[0]
	if next.CrHelperData.Get("BuildId") != "b1" {
		t.Errorf("BuildId = %q, want unchanged b1", next.CrHelperData.Get("BuildId"))
	}
	if next.CrHelperAttempt != 3 {
		t.Errorf("CrHelperAttempt = %d, want 3", next.CrHelperAttempt)
	}
	if next.PhysicalResourceID != "my-stack_Resource_abcdef12" {
		t.Errorf("PhysicalResourceID = %q", next.PhysicalResourceID)
	}
	if len(poller.cleanedUp) != 0 {
		t.Errorf("cleanups = %v, want none while pending", poller.cleanedUp)
	}
}

func TestDispatcher_PollCompleteMergesState(t *testing.T) {
	handler := &fakeHandler{
		poll: func(ctx context.Context, req *Request) (*Result, error) {
			return &Result{Data: map[string]interface{}{"ArtifactLocation": "s3://bucket/out"}}, nil
		},
	}
	responder := &fakeResponder{}
	poller := &fakePoller{}
	d := NewDispatcher(handler, responder, testLogger(), WithPoller(poller, time.Minute))

	if err := d.Handle(context.Background(), pollEvent()); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	resp := onlyResponse(t, responder)
	if resp.Status != cfn.StatusSuccess {
		t.Fatalf("Status = %v, want SUCCESS", resp.Status)
	}
	want := map[string]interface{}{
		"BuildId":          "b1",
		"ProjectName":      "web",
		"ArtifactLocation": "s3://bucket/out",
	}
	for k, v := range want {
		if resp.Data[k] != v {
			t.Errorf("Data[%s] = %v, want %v", k, resp.Data[k], v)
		}
	}
	if resp.PhysicalResourceID != "my-stack_Resource_abcdef12" {
		t.Errorf("PhysicalResourceID = %q", resp.PhysicalResourceID)
	}
	if len(poller.cleanedUp) != 1 || poller.cleanedUp[0] != "Resource-sched" {
		t.Errorf("cleanups = %v, want [Resource-sched]", poller.cleanedUp)
	}
}

func TestDispatcher_PollErrorFailsAndCleansUp(t *testing.T) {
	handler := &fakeHandler{
		poll: func(ctx context.Context, req *Request) (*Result, error) {
			return nil, errors.New("build b1 failed with status FAILED")
		},
	}
	responder := &fakeResponder{}
	poller := &fakePoller{}
	d := NewDispatcher(handler, responder, testLogger(), WithPoller(poller, time.Minute))

	if err := d.Handle(context.Background(), pollEvent()); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	resp := onlyResponse(t, responder)
	if resp.Status != cfn.StatusFailed || !strings.Contains(resp.Reason, "FAILED") {
		t.Errorf("response = %s %q", resp.Status, resp.Reason)
	}
	if len(poller.cleanedUp) != 1 {
		t.Errorf("cleanups = %v, want one", poller.cleanedUp)
	}
}

func TestDispatcher_HandlerDeadlineHasMargin(t *testing.T) {
	var handlerDeadline time.Time
	handler := &fakeHandler{
		create: func(ctx context.Context, req *Request) (*Result, error) {
			handlerDeadline, _ = ctx.Deadline()
			return &Result{}, nil
		},
	}
	responder := &fakeResponder{}
	d := NewDispatcher(handler, responder, testLogger(), WithResponseMargin(5*time.Second))

	deadline := time.Now().Add(time.Minute)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	if err := d.Handle(ctx, newEvent(cfn.RequestCreate)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if want := deadline.Add(-5 * time.Second); !handlerDeadline.Equal(want) {
		t.Errorf("handler deadline = %v, want %v", handlerDeadline, want)
	}
}

func TestDispatcher_ResponseFailureReturnsError(t *testing.T) {
	responder := &fakeResponder{err: errors.New("connection reset")}
	d := NewDispatcher(&fakeHandler{}, responder, testLogger())

	if err := d.Handle(context.Background(), newEvent(cfn.RequestDelete)); err == nil {
		t.Error("Handle() error = nil, want delivery error")
	}
}

func TestDispatcher_AuditFailureIsNotFatal(t *testing.T) {
	responder := &fakeResponder{}
	recorder := &fakeRecorder{err: errors.New("table missing")}
	d := NewDispatcher(&fakeHandler{}, responder, testLogger(),
		WithRecorder(recorder),
		WithNotifier(recorder),
		WithStage(models.StageProd),
	)

	if err := d.Handle(context.Background(), newEvent(cfn.RequestDelete)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp := onlyResponse(t, responder); resp.Status != cfn.StatusSuccess {
		t.Errorf("Status = %v, want SUCCESS", resp.Status)
	}
	if len(recorder.records) != 2 {
		t.Fatalf("audit calls = %d, want 2", len(recorder.records))
	}
	rec := recorder.records[0]
	if rec.ID != "req-1#delete#0" || rec.Stage != models.StageProd || rec.Status != models.RecordStatusSuccess {
		t.Errorf("record = %+v", rec)
	}
}

func TestFailAll(t *testing.T) {
	tests := []struct {
		requestType cfn.RequestType
		wantStatus  cfn.StatusType
	}{
		{requestType: cfn.RequestCreate, wantStatus: cfn.StatusFailed},
		{requestType: cfn.RequestUpdate, wantStatus: cfn.StatusFailed},
		{requestType: cfn.RequestDelete, wantStatus: cfn.StatusSuccess},
	}

	for _, tt := range tests {
		t.Run(string(tt.requestType), func(t *testing.T) {
			responder := &fakeResponder{}
			handle := FailAll(errors.New("missing SCHEDULER_ROLE_ARN"), responder, testLogger())

			if err := handle(context.Background(), newEvent(tt.requestType)); err != nil {
				t.Fatalf("handle() error = %v", err)
			}

			resp := onlyResponse(t, responder)
			if resp.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", resp.Status, tt.wantStatus)
			}
			if tt.wantStatus == cfn.StatusFailed && !strings.Contains(resp.Reason, "missing SCHEDULER_ROLE_ARN") {
				t.Errorf("Reason = %q", resp.Reason)
			}
		})
	}
}

func TestRequest_DecodeProperties(t *testing.T) {
	req := &Request{Properties: map[string]interface{}{
		"ProjectName": "web",
		"EnvironmentVariables": []interface{}{
			map[string]interface{}{"Name": "API_URL", "Value": "https://api"},
		},
	}}

	var props struct {
		ProjectName          string
		EnvironmentVariables []models.EnvironmentVariable
	}
	if err := req.DecodeProperties(&props); err != nil {
		t.Fatalf("DecodeProperties() error = %v", err)
	}
	if props.ProjectName != "web" || len(props.EnvironmentVariables) != 1 || props.EnvironmentVariables[0].Name != "API_URL" {
		t.Errorf("props = %+v", props)
	}
}
