package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/familyarchive/stack-provisioners/internal/identity"
	"github.com/familyarchive/stack-provisioners/internal/mailer"
	"github.com/familyarchive/stack-provisioners/internal/models"
	"github.com/familyarchive/stack-provisioners/internal/password"
	"github.com/familyarchive/stack-provisioners/internal/secrets"
	"github.com/familyarchive/stack-provisioners/internal/templates"
)

// Invite holds the create-user options an invitation strategy decided on
type Invite struct {
	SuppressMessage   bool
	TemporaryPassword string
}

// Invitation decides how the new administrator learns how to sign in.
// Prepare runs before the user is created, Deliver after it joined its groups.
// Deliver never fails the operation; it returns extra response data.
type Invitation interface {
	Prepare(ctx context.Context, props Properties) (*Invite, error)
	Deliver(ctx context.Context, props Properties, user *identity.User, invite *Invite) map[string]interface{}
}

// Dependencies are the collaborators the invitation strategies draw on
type Dependencies struct {
	Directory      identity.Directory
	Sender         mailer.Sender
	Vault          secrets.CredentialVault
	Catalog        *templates.Catalog
	PasswordLength int
	Logger         *slog.Logger
}

// NewInvitation returns the invitation strategy selected for this deployment
func NewInvitation(strategy models.InviteStrategy, deps Dependencies) (Invitation, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("template catalog is required")
	}

	switch strategy {
	case models.InviteStrategyTemplate, "":
		if deps.Directory == nil {
			return nil, fmt.Errorf("template invitation requires a directory")
		}
		return &TemplateInvitation{
			directory: deps.Directory,
			catalog:   deps.Catalog,
			logger:    deps.Logger,
		}, nil
	case models.InviteStrategyEmail:
		if deps.Sender == nil {
			return nil, fmt.Errorf("email invitation requires a sender")
		}
		length := deps.PasswordLength
		if length == 0 {
			length = password.DefaultLength
		}
		return &EmailInvitation{
			sender:         deps.Sender,
			vault:          deps.Vault,
			catalog:        deps.Catalog,
			passwordLength: length,
			generate:       password.Generate,
			logger:         deps.Logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown invite strategy: %s", strategy)
	}
}

// TemplateInvitation lets Cognito send its invitation, after pointing the
// pool-wide template at the application's sign-in URL
type TemplateInvitation struct {
	directory identity.Directory
	catalog   *templates.Catalog
	logger    *slog.Logger
}

// Prepare updates the pool invitation template when a sign-in host is known
func (t *TemplateInvitation) Prepare(ctx context.Context, props Properties) (*Invite, error) {
	if props.AmplifyURL == "" {
		return &Invite{}, nil
	}

	msg, err := t.catalog.Render(templates.Invitation, templates.Data{
		AppName:   props.AppName,
		SignInURL: templates.SignInURL(props.AmplifyURL),
	})
	if err != nil {
		return nil, err
	}

	if err := t.directory.UpdateInviteTemplate(ctx, props.UserPoolID, identity.InviteTemplate{
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}); err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "invite template points at sign-in url",
		slog.String("sign_in_url", templates.SignInURL(props.AmplifyURL)),
	)
	return &Invite{}, nil
}

// Deliver has nothing to do; Cognito already sent the invitation
func (t *TemplateInvitation) Deliver(ctx context.Context, props Properties, user *identity.User, invite *Invite) map[string]interface{} {
	return nil
}

// EmailInvitation suppresses Cognito's message and emails a generated
// temporary password through SES
type EmailInvitation struct {
	sender         mailer.Sender
	vault          secrets.CredentialVault
	catalog        *templates.Catalog
	passwordLength int
	generate       func(length int) (string, error)
	logger         *slog.Logger
}

// Prepare generates the temporary password
func (e *EmailInvitation) Prepare(ctx context.Context, props Properties) (*Invite, error) {
	pw, err := e.generate(e.passwordLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate temporary password: %w", err)
	}
	return &Invite{
		SuppressMessage:   true,
		TemporaryPassword: pw,
	}, nil
}

// Deliver sends the welcome email. When it cannot be sent the password is
// escrowed in the credential vault, if one is configured.
func (e *EmailInvitation) Deliver(ctx context.Context, props Properties, user *identity.User, invite *Invite) map[string]interface{} {
	signInURL := templates.SignInURL(props.AmplifyURL)

	err := e.send(ctx, props, user, invite, signInURL)
	if err == nil {
		e.logger.InfoContext(ctx, "welcome email sent", slog.String("email", props.AdminEmail))
		return map[string]interface{}{"EmailSent": "true"}
	}

	e.logger.ErrorContext(ctx, "failed to send welcome email, admin must reset their password",
		slog.String("email", props.AdminEmail),
		slog.String("error", err.Error()),
	)
	data := map[string]interface{}{"EmailSent": "false"}

	if e.vault == nil {
		return data
	}
	arn, err := e.vault.StoreCredentials(ctx, credentialsKey(props), secrets.Credentials{
		Username:          user.Username,
		TemporaryPassword: invite.TemporaryPassword,
		SignInURL:         signInURL,
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to escrow temporary password",
			slog.String("error", err.Error()),
		)
		return data
	}
	data["CredentialsSecretArn"] = arn
	return data
}

func (e *EmailInvitation) send(ctx context.Context, props Properties, user *identity.User, invite *Invite, signInURL string) error {
	if props.SenderEmail == "" {
		return fmt.Errorf("SenderEmail is not set")
	}

	msg, err := e.catalog.Render(templates.Welcome, templates.Data{
		AppName:           props.AppName,
		SignInURL:         signInURL,
		Username:          user.Username,
		TemporaryPassword: invite.TemporaryPassword,
	})
	if err != nil {
		return err
	}

	_, err = e.sender.Send(ctx, mailer.Email{
		From:    props.SenderEmail,
		To:      props.AdminEmail,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	return err
}

// credentialsKey names the escrow secret below the configured prefix
func credentialsKey(props Properties) string {
	return props.UserPoolID + "/" + props.AdminEmail
}
