package models

// BuildStatus is the status CodeBuild reports for a build
type BuildStatus string

const (
	BuildStatusPending    BuildStatus = "PENDING"
	BuildStatusInProgress BuildStatus = "IN_PROGRESS"
	BuildStatusSucceeded  BuildStatus = "SUCCEEDED"
	BuildStatusFailed     BuildStatus = "FAILED"
	BuildStatusFault      BuildStatus = "FAULT"
	BuildStatusTimedOut   BuildStatus = "TIMED_OUT"
	BuildStatusStopped    BuildStatus = "STOPPED"
)

// IsRunning reports whether the build has not reached a terminal status yet
func (s BuildStatus) IsRunning() bool {
	return s == BuildStatusPending || s == BuildStatusInProgress
}

// String returns the string representation of the build status
func (s BuildStatus) String() string {
	return string(s)
}

// BuildReport is a point-in-time view of one build
type BuildReport struct {
	ID               string
	ProjectName      string
	Status           BuildStatus
	CurrentPhase     string
	ArtifactLocation string
	LogsDeepLink     string
}

// EnvironmentVariable is a name/value override passed to a build
type EnvironmentVariable struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}
