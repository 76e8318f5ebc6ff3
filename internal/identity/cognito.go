// Package identity manages users in the Cognito user pool that backs the
// application.
package identity

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// CognitoAPI is the subset of the Cognito client the directory uses
type CognitoAPI interface {
	AdminCreateUser(ctx context.Context, params *cip.AdminCreateUserInput, optFns ...func(*cip.Options)) (*cip.AdminCreateUserOutput, error)
	AdminAddUserToGroup(ctx context.Context, params *cip.AdminAddUserToGroupInput, optFns ...func(*cip.Options)) (*cip.AdminAddUserToGroupOutput, error)
	DescribeUserPool(ctx context.Context, params *cip.DescribeUserPoolInput, optFns ...func(*cip.Options)) (*cip.DescribeUserPoolOutput, error)
	UpdateUserPool(ctx context.Context, params *cip.UpdateUserPoolInput, optFns ...func(*cip.Options)) (*cip.UpdateUserPoolOutput, error)
}

// Directory defines the user pool operations the admin provisioner needs
type Directory interface {
	CreateUser(ctx context.Context, input CreateUserInput) (*User, error)
	AddUserToGroup(ctx context.Context, userPoolID, username, group string) error
	UpdateInviteTemplate(ctx context.Context, userPoolID string, tmpl InviteTemplate) error
}

// CreateUserInput describes one user to create
type CreateUserInput struct {
	UserPoolID string
	Username   string
	Email      string

	// SuppressMessage stops Cognito from sending its own invitation
	SuppressMessage bool

	// TemporaryPassword is generated by Cognito when empty
	TemporaryPassword string
}

// User is the created directory user
type User struct {
	Username string
	Sub      string
}

// ID returns the sub attribute, falling back to the username
func (u *User) ID() string {
	if u.Sub != "" {
		return u.Sub
	}
	return u.Username
}

// InviteTemplate is the pool-wide invitation email
type InviteTemplate struct {
	Subject string
	HTML    string
}

// CognitoDirectory implements Directory on Amazon Cognito
type CognitoDirectory struct {
	client CognitoAPI
	logger *slog.Logger
}

// NewCognitoDirectory creates a new Cognito-backed directory
func NewCognitoDirectory(client CognitoAPI, logger *slog.Logger) *CognitoDirectory {
	if logger == nil {
		logger = slog.Default()
	}

	return &CognitoDirectory{
		client: client,
		logger: logger,
	}
}

// CreateUser creates a user whose email is already verified
func (d *CognitoDirectory) CreateUser(ctx context.Context, input CreateUserInput) (*User, error) {
	req := &cip.AdminCreateUserInput{
		UserPoolId: aws.String(input.UserPoolID),
		Username:   aws.String(input.Username),
		UserAttributes: []types.AttributeType{
			{Name: aws.String("email"), Value: aws.String(input.Email)},
			{Name: aws.String("email_verified"), Value: aws.String("true")},
		},
	}
	if input.SuppressMessage {
		req.MessageAction = types.MessageActionTypeSuppress
	} else {
		req.DesiredDeliveryMediums = []types.DeliveryMediumType{types.DeliveryMediumTypeEmail}
	}
	if input.TemporaryPassword != "" {
		req.TemporaryPassword = aws.String(input.TemporaryPassword)
	}

	out, err := d.client.AdminCreateUser(ctx, req)
	if err != nil {
		return nil, classify("failed to create user", err)
	}

	user := &User{Username: input.Username}
	if out.User != nil {
		if name := aws.ToString(out.User.Username); name != "" {
			user.Username = name
		}
		for _, attr := range out.User.Attributes {
			if aws.ToString(attr.Name) == "sub" {
				user.Sub = aws.ToString(attr.Value)
			}
		}
	}

	d.logger.InfoContext(ctx, "created directory user",
		slog.String("user_pool_id", input.UserPoolID),
		slog.String("username", user.Username),
		slog.Bool("message_suppressed", input.SuppressMessage),
	)

	return user, nil
}

// AddUserToGroup adds the user to a user pool group
func (d *CognitoDirectory) AddUserToGroup(ctx context.Context, userPoolID, username, group string) error {
	_, err := d.client.AdminAddUserToGroup(ctx, &cip.AdminAddUserToGroupInput{
		UserPoolId: aws.String(userPoolID),
		Username:   aws.String(username),
		GroupName:  aws.String(group),
	})
	if err != nil {
		return classify("failed to add user to group "+group, err)
	}

	d.logger.InfoContext(ctx, "added user to group",
		slog.String("username", username),
		slog.String("group", group),
	)

	return nil
}

// UpdateInviteTemplate replaces the invitation email of the user pool.
// UpdateUserPool resets every omitted setting, so the current pool is read
// first and sent back with only the invite email changed.
func (d *CognitoDirectory) UpdateInviteTemplate(ctx context.Context, userPoolID string, tmpl InviteTemplate) error {
	desc, err := d.client.DescribeUserPool(ctx, &cip.DescribeUserPoolInput{
		UserPoolId: aws.String(userPoolID),
	})
	if err != nil {
		return classify("failed to describe user pool", err)
	}

	input := updateInputFromPool(userPoolID, desc.UserPool)

	message := &types.MessageTemplateType{
		EmailSubject: aws.String(tmpl.Subject),
		EmailMessage: aws.String(tmpl.HTML),
	}
	if current := input.AdminCreateUserConfig.InviteMessageTemplate; current != nil {
		message.SMSMessage = current.SMSMessage
	}
	input.AdminCreateUserConfig.InviteMessageTemplate = message

	if _, err := d.client.UpdateUserPool(ctx, input); err != nil {
		return classify("failed to update invite template", err)
	}

	d.logger.InfoContext(ctx, "updated user pool invite template",
		slog.String("user_pool_id", userPoolID),
	)

	return nil
}

// updateInputFromPool copies the mutable settings of a described pool into
// an update request. AdminCreateUserConfig is always non-nil in the result.
func updateInputFromPool(userPoolID string, pool *types.UserPoolType) *cip.UpdateUserPoolInput {
	input := &cip.UpdateUserPoolInput{
		UserPoolId:            aws.String(userPoolID),
		AdminCreateUserConfig: &types.AdminCreateUserConfigType{},
	}
	if pool == nil {
		return input
	}

	if cfg := pool.AdminCreateUserConfig; cfg != nil {
		input.AdminCreateUserConfig.AllowAdminCreateUserOnly = cfg.AllowAdminCreateUserOnly
		input.AdminCreateUserConfig.InviteMessageTemplate = cfg.InviteMessageTemplate
	}

	input.AccountRecoverySetting = pool.AccountRecoverySetting
	input.AutoVerifiedAttributes = pool.AutoVerifiedAttributes
	input.DeletionProtection = pool.DeletionProtection
	input.DeviceConfiguration = pool.DeviceConfiguration
	input.EmailConfiguration = pool.EmailConfiguration
	input.EmailVerificationMessage = pool.EmailVerificationMessage
	input.EmailVerificationSubject = pool.EmailVerificationSubject
	input.LambdaConfig = pool.LambdaConfig
	input.MfaConfiguration = pool.MfaConfiguration
	input.Policies = pool.Policies
	input.SmsAuthenticationMessage = pool.SmsAuthenticationMessage
	input.SmsConfiguration = pool.SmsConfiguration
	input.SmsVerificationMessage = pool.SmsVerificationMessage
	input.UserAttributeUpdateSettings = pool.UserAttributeUpdateSettings
	input.UserPoolAddOns = pool.UserPoolAddOns
	input.UserPoolTags = pool.UserPoolTags
	input.VerificationMessageTemplate = pool.VerificationMessageTemplate

	return input
}
