package core

import "strings"

// Environment represents the deployment environment of the agent process.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

func (e Environment) String() string {
	return string(e)
}

// IsProduction reports whether verbose console logging must be disabled.
func (e Environment) IsProduction() bool {
	return e == Production
}

// ParseEnvironment maps ENVIRONMENT values (case-insensitive, "prod"/"dev"
// accepted) onto the known environments. Anything else is Development.
func ParseEnvironment(v string) Environment {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "production", "prod":
		return Production
	case "staging":
		return Staging
	case "testing", "test":
		return Testing
	default:
		return Development
	}
}
