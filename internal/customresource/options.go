package customresource

import (
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/familyarchive/stack-provisioners/internal/messaging"
	"github.com/familyarchive/stack-provisioners/internal/repository"
	appconfig "github.com/familyarchive/stack-provisioners/pkg/config"
)

// ConfigOptions builds the dispatcher options shared by every provisioner:
// stage, response margin, and the audit table and outcome topic when configured
func ConfigOptions(cfg *appconfig.Config, awsCfg aws.Config, logger *slog.Logger) []Option {
	opts := []Option{
		WithStage(cfg.Stage),
		WithResponseMargin(cfg.ResponseMargin),
	}
	if cfg.AuditTableName != "" {
		opts = append(opts, WithRecorder(
			repository.NewDynamoDBRepository(dynamodb.NewFromConfig(awsCfg), cfg.AuditTableName),
		))
	}
	if cfg.NotificationsTopicArn != "" {
		opts = append(opts, WithNotifier(
			messaging.NewSNSClient(sns.NewFromConfig(awsCfg), cfg.NotificationsTopicArn, logger),
		))
	}
	return opts
}
