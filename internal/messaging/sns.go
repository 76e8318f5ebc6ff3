package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/familyarchive/stack-provisioners/internal/models"
)

// SNSAPI is the subset of the SNS client the publisher uses
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// OutcomePublisher defines the interface for announcing provisioning outcomes
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, record *models.ProvisioningRecord) error
}

// SNSClient implements OutcomePublisher using AWS SNS
type SNSClient struct {
	client   SNSAPI
	topicArn string
	logger   *slog.Logger
}

// NewSNSClient creates a new SNS client instance
func NewSNSClient(client SNSAPI, topicArn string, logger *slog.Logger) *SNSClient {
	if logger == nil {
		logger = slog.Default()
	}

	return &SNSClient{
		client:   client,
		topicArn: topicArn,
		logger:   logger,
	}
}

// PublishOutcome publishes a finished operation to the SNS topic. Pending
// records are skipped; only answers sent to CloudFormation are announced.
func (s *SNSClient) PublishOutcome(ctx context.Context, record *models.ProvisioningRecord) error {
	if !record.IsFinal() {
		return nil
	}

	messageBytes, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome to JSON: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(s.topicArn),
		Subject:  aws.String(subject(record)),
		Message:  aws.String(string(messageBytes)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"stage": {
				DataType:    aws.String("String"),
				StringValue: aws.String(record.Stage.String()),
			},
			"resource_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(record.ResourceType),
			},
			"status": {
				DataType:    aws.String("String"),
				StringValue: aws.String(record.Status.String()),
			},
		},
	}

	result, err := s.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to publish outcome to SNS: %w", err)
	}

	s.logger.InfoContext(ctx, "outcome published to SNS",
		slog.String("record_id", record.ID),
		slog.String("sns_message_id", aws.ToString(result.MessageId)),
		slog.String("topic_arn", s.topicArn),
	)

	return nil
}

// subject stays under the 100 character SNS limit
func subject(record *models.ProvisioningRecord) string {
	s := fmt.Sprintf("%s %s %s", record.LogicalResourceID, record.RequestType, record.Status)
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
