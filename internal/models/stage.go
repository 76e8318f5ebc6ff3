package models

// Stage represents the deployment environment
type Stage string

const (
	// StageDev represents the development environment
	StageDev Stage = "dev"
	// StageStage represents the staging environment
	StageStage Stage = "stage"
	// StageProd represents the production environment
	StageProd Stage = "prod"
)

// IsValid checks if the stage value is valid
func (s Stage) IsValid() bool {
	switch s {
	case StageDev, StageStage, StageProd:
		return true
	default:
		return false
	}
}

// String returns the string representation of the stage
func (s Stage) String() string {
	return string(s)
}

// InviteStrategy selects how the initial admin user learns about its account
type InviteStrategy string

const (
	// InviteStrategyTemplate customises the user pool invitation template and
	// lets Cognito deliver the invitation
	InviteStrategyTemplate InviteStrategy = "template"
	// InviteStrategyEmail generates the temporary password locally, suppresses
	// Cognito's message and sends a welcome email through SES
	InviteStrategyEmail InviteStrategy = "email"
)

// IsValid checks if the invite strategy value is valid
func (s InviteStrategy) IsValid() bool {
	switch s {
	case InviteStrategyTemplate, InviteStrategyEmail:
		return true
	default:
		return false
	}
}

// String returns the string representation of the invite strategy
func (s InviteStrategy) String() string {
	return string(s)
}
