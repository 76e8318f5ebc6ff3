package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/familyarchive/stack-provisioners/internal/models"
)

// DynamoDBAPI is the subset of the DynamoDB client the repository uses
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoDBRepository stores provisioning audit records in DynamoDB
type DynamoDBRepository struct {
	client    DynamoDBAPI
	tableName string
}

// NewDynamoDBRepository creates a new DynamoDB repository instance
func NewDynamoDBRepository(client DynamoDBAPI, tableName string) *DynamoDBRepository {
	return &DynamoDBRepository{
		client:    client,
		tableName: tableName,
	}
}

// SaveRecord saves an audit record to DynamoDB
func (r *DynamoDBRepository) SaveRecord(ctx context.Context, record *models.ProvisioningRecord) error {
	av, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}

	_, err = r.client.PutItem(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to save record to DynamoDB: %w", err)
	}

	return nil
}
