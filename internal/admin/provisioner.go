// Package admin creates the first administrator of a stack's user pool.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/familyarchive/stack-provisioners/internal/customresource"
	"github.com/familyarchive/stack-provisioners/internal/identity"
)

const (
	// GroupAdmins grants administrative access to the application
	GroupAdmins = "Admins"
	// GroupApprovedUsers grants regular access to the application
	GroupApprovedUsers = "ApprovedUsers"

	// PlaceholderEmail is the template default meaning "no administrator"
	PlaceholderEmail = "placeholder@example.com"

	UserIDSkipped   = "skipped"
	UserIDExisting  = "existing"
	UserIDUnchanged = "unchanged"
)

// adminGroups are joined in order after the user is created
var adminGroups = []string{GroupAdmins, GroupApprovedUsers}

// Properties are the ResourceProperties of the admin user resource
type Properties struct {
	UserPoolID  string
	AdminEmail  string
	AmplifyURL  string
	SenderEmail string
	AppName     string
}

func propertiesFrom(req *customresource.Request) Properties {
	return Properties{
		UserPoolID:  strings.TrimSpace(req.StringProperty("UserPoolId")),
		AdminEmail:  strings.TrimSpace(req.StringProperty("AdminEmail")),
		AmplifyURL:  strings.TrimSpace(req.StringProperty("AmplifyUrl")),
		SenderEmail: strings.TrimSpace(req.StringProperty("SenderEmail")),
		AppName:     strings.TrimSpace(req.StringProperty("AppName")),
	}
}

// skip reports whether the stack was deployed without an administrator
func (p Properties) skip() bool {
	return p.AdminEmail == "" || strings.EqualFold(p.AdminEmail, PlaceholderEmail)
}

// Provisioner is the custom resource handler for the initial admin user
type Provisioner struct {
	directory  identity.Directory
	invitation Invitation
	logger     *slog.Logger
}

// NewProvisioner creates a provisioner delivering sign-in details through invitation
func NewProvisioner(directory identity.Directory, invitation Invitation, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		directory:  directory,
		invitation: invitation,
		logger:     logger,
	}
}

// Create creates the admin user and adds it to the admin groups. An admin
// that already exists is reported, not treated as a failure.
func (p *Provisioner) Create(ctx context.Context, req *customresource.Request) (*customresource.Result, error) {
	props := propertiesFrom(req)

	if props.skip() {
		p.logger.InfoContext(ctx, "no admin email provided, skipping user creation")
		return &customresource.Result{
			Data: map[string]interface{}{"UserId": UserIDSkipped},
		}, nil
	}
	if props.UserPoolID == "" {
		return nil, fmt.Errorf("UserPoolId is required to create the admin user")
	}

	invite, err := p.invitation.Prepare(ctx, props)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare invitation: %w", err)
	}

	user, err := p.directory.CreateUser(ctx, identity.CreateUserInput{
		UserPoolID:        props.UserPoolID,
		Username:          props.AdminEmail,
		Email:             props.AdminEmail,
		SuppressMessage:   invite.SuppressMessage,
		TemporaryPassword: invite.TemporaryPassword,
	})
	if errors.Is(err, identity.ErrUserExists) {
		p.logger.InfoContext(ctx, "admin user already exists, skipping creation",
			slog.String("email", props.AdminEmail),
		)
		return &customresource.Result{
			PhysicalResourceID: props.AdminEmail,
			Data: map[string]interface{}{
				"UserId": UserIDExisting,
				"Email":  props.AdminEmail,
			},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	for _, group := range adminGroups {
		if err := p.directory.AddUserToGroup(ctx, props.UserPoolID, user.Username, group); err != nil {
			return nil, err
		}
	}

	data := map[string]interface{}{
		"UserId": user.ID(),
		"Email":  props.AdminEmail,
	}
	for k, v := range p.invitation.Deliver(ctx, props, user, invite) {
		data[k] = v
	}

	p.logger.InfoContext(ctx, "admin user provisioned",
		slog.String("email", props.AdminEmail),
		slog.String("user_id", user.ID()),
	)

	return &customresource.Result{
		PhysicalResourceID: props.AdminEmail,
		Data:               data,
	}, nil
}

// Update leaves the user pool untouched
func (p *Provisioner) Update(ctx context.Context, req *customresource.Request) (*customresource.Result, error) {
	p.logger.InfoContext(ctx, "update requires no action")
	return &customresource.Result{
		Data: map[string]interface{}{"UserId": UserIDUnchanged},
	}, nil
}

// Delete preserves the user
func (p *Provisioner) Delete(ctx context.Context, req *customresource.Request) (*customresource.Result, error) {
	p.logger.InfoContext(ctx, "delete requires no action, users are preserved")
	return &customresource.Result{}, nil
}

// Poll is never scheduled for this resource
func (p *Provisioner) Poll(ctx context.Context, req *customresource.Request) (*customresource.Result, error) {
	return &customresource.Result{}, nil
}
