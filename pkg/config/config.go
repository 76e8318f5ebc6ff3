package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/familyarchive/stack-provisioners/internal/models"
)

const (
	// MinPollInterval is the smallest delay EventBridge Scheduler can honour
	// for a one-time at() schedule
	MinPollInterval = time.Minute

	// MinTempPasswordLength matches the Cognito minimum password policy
	MinTempPasswordLength = 8
)

// Config holds all configuration for the provisioning functions
type Config struct {
	// Stage is the deployment environment (dev, stage, prod)
	Stage models.Stage

	// AWS Configuration
	AWSRegion string

	// Admin provisioner
	InviteStrategy          models.InviteStrategy
	TempPasswordLength      int
	CredentialsSecretPrefix string // Escrow for temporary passwords that could not be emailed

	// Poll re-invocation through EventBridge Scheduler
	PollInterval     time.Duration
	SchedulerRoleArn string // Role EventBridge Scheduler assumes to invoke the function
	ScheduleGroup    string

	// Optional audit and notification sinks
	AuditTableName        string
	NotificationsTopicArn string

	// ResponseMargin is reserved before the Lambda deadline for answering CloudFormation
	ResponseMargin time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	stage := os.Getenv("STAGE")
	if stage == "" {
		stage = "dev"
	}

	stageEnum := models.Stage(stage)
	if !stageEnum.IsValid() {
		return nil, fmt.Errorf("invalid STAGE value: %s (must be dev, stage, or prod)", stage)
	}

	awsRegion := os.Getenv("AWS_REGION")
	if awsRegion == "" {
		awsRegion = "us-east-1"
	}

	strategy := models.InviteStrategy(strings.ToLower(strings.TrimSpace(os.Getenv("INVITE_STRATEGY"))))
	if strategy == "" {
		strategy = models.InviteStrategyTemplate
	}
	if !strategy.IsValid() {
		return nil, fmt.Errorf("invalid INVITE_STRATEGY value: %s (must be template or email)", strategy)
	}

	passwordLength, err := intFromEnv("TEMP_PASSWORD_LENGTH", 16)
	if err != nil {
		return nil, err
	}

	pollSeconds, err := intFromEnv("POLL_INTERVAL_SECONDS", 120)
	if err != nil {
		return nil, err
	}

	scheduleGroup := os.Getenv("SCHEDULE_GROUP")
	if scheduleGroup == "" {
		scheduleGroup = "default"
	}

	cfg := &Config{
		Stage:                   stageEnum,
		AWSRegion:               awsRegion,
		InviteStrategy:          strategy,
		TempPasswordLength:      passwordLength,
		CredentialsSecretPrefix: os.Getenv("CREDENTIALS_SECRET_PREFIX"),
		PollInterval:            time.Duration(pollSeconds) * time.Second,
		SchedulerRoleArn:        os.Getenv("SCHEDULER_ROLE_ARN"),
		ScheduleGroup:           scheduleGroup,
		AuditTableName:          os.Getenv("AUDIT_TABLE_NAME"),
		NotificationsTopicArn:   os.Getenv("NOTIFICATIONS_TOPIC_ARN"),
		ResponseMargin:          2 * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if !c.Stage.IsValid() {
		return fmt.Errorf("invalid stage: %s", c.Stage)
	}

	if c.AWSRegion == "" {
		return fmt.Errorf("AWS region is required")
	}

	if !c.InviteStrategy.IsValid() {
		return fmt.Errorf("invalid invite strategy: %s", c.InviteStrategy)
	}

	if c.TempPasswordLength < MinTempPasswordLength {
		return fmt.Errorf("temporary password length must be at least %d, got %d", MinTempPasswordLength, c.TempPasswordLength)
	}

	if c.PollInterval < MinPollInterval {
		return fmt.Errorf("poll interval must be at least %s, got %s", MinPollInterval, c.PollInterval)
	}

	return nil
}

// ValidatePolling checks the settings a function that re-invokes itself needs
func (c *Config) ValidatePolling() error {
	if c.SchedulerRoleArn == "" {
		return fmt.Errorf("SCHEDULER_ROLE_ARN environment variable is required")
	}
	return nil
}

func intFromEnv(name string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, raw, err)
	}
	return v, nil
}
