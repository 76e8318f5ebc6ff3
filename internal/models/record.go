package models

import (
	"fmt"
	"time"
)

// RecordStatus represents the outcome of one custom resource invocation
type RecordStatus string

const (
	// RecordStatusPending indicates the operation continues in a later poll
	RecordStatusPending RecordStatus = "PENDING"
	// RecordStatusSuccess indicates CloudFormation was told the operation succeeded
	RecordStatusSuccess RecordStatus = "SUCCESS"
	// RecordStatusFailed indicates CloudFormation was told the operation failed
	RecordStatusFailed RecordStatus = "FAILED"
)

// IsValid checks if the record status value is valid
func (s RecordStatus) IsValid() bool {
	switch s {
	case RecordStatusPending, RecordStatusSuccess, RecordStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the record status
func (s RecordStatus) String() string {
	return string(s)
}

// ProvisioningRecord is the audit entry written for every custom resource invocation
type ProvisioningRecord struct {
	// ID is unique per invocation: <request id>#<operation>#<attempt>
	ID string `json:"id" dynamodbav:"id"`

	// RequestID is the CloudFormation request id shared by all polls of one operation
	RequestID string `json:"request_id" dynamodbav:"request_id"`

	StackID            string `json:"stack_id" dynamodbav:"stack_id"`
	LogicalResourceID  string `json:"logical_resource_id" dynamodbav:"logical_resource_id"`
	PhysicalResourceID string `json:"physical_resource_id,omitempty" dynamodbav:"physical_resource_id,omitempty"`
	ResourceType       string `json:"resource_type" dynamodbav:"resource_type"`

	// RequestType is the CloudFormation request type (Create, Update, Delete)
	RequestType string `json:"request_type" dynamodbav:"request_type"`

	// Operation is the hook that ran (create, update, delete, poll)
	Operation string `json:"operation" dynamodbav:"operation"`

	// Attempt counts poll invocations; 0 for the initial request
	Attempt int `json:"attempt" dynamodbav:"attempt"`

	Status RecordStatus `json:"status" dynamodbav:"status"`

	// Reason contains the failure message sent to CloudFormation
	Reason string `json:"reason,omitempty" dynamodbav:"reason,omitempty"`

	Stage Stage `json:"stage" dynamodbav:"stage"`

	CreatedDate time.Time `json:"created_date" dynamodbav:"created_date"`
}

// NewProvisioningRecord creates a pending record for one invocation
func NewProvisioningRecord(requestID, operation string, attempt int, stage Stage) *ProvisioningRecord {
	return &ProvisioningRecord{
		ID:          RecordID(requestID, operation, attempt),
		RequestID:   requestID,
		Operation:   operation,
		Attempt:     attempt,
		Status:      RecordStatusPending,
		Stage:       stage,
		CreatedDate: time.Now().UTC(),
	}
}

// RecordID builds the audit record key for one invocation
func RecordID(requestID, operation string, attempt int) string {
	return fmt.Sprintf("%s#%s#%d", requestID, operation, attempt)
}

// MarkSucceeded sets the record status to success
func (r *ProvisioningRecord) MarkSucceeded(physicalResourceID string) {
	r.Status = RecordStatusSuccess
	r.PhysicalResourceID = physicalResourceID
}

// MarkFailed sets the record status to failed with the reason sent to CloudFormation
func (r *ProvisioningRecord) MarkFailed(reason string) {
	r.Status = RecordStatusFailed
	r.Reason = reason
}

// IsFinal reports whether CloudFormation has been answered for this operation
func (r *ProvisioningRecord) IsFinal() bool {
	return r.Status == RecordStatusSuccess || r.Status == RecordStatusFailed
}
