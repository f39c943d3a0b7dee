// pattern: Functional Core

// Package approle names the two entry roles of the binary. The role is chosen
// once at startup from an environment variable and never changes.
package approle

import "os"

const (
	// EnvKey selects the role of the process.
	EnvKey = "UNIGEN_APP_MODE"
	// ControlPlaneValue is the only value of EnvKey that selects ControlPlane.
	ControlPlaneValue = "mqtt"
)

// Role is the entry role of a process.
type Role int

const (
	Primary      Role = iota // normal application process
	ControlPlane             // background broker host
)

func (r Role) String() string {
	switch r {
	case ControlPlane:
		return "control-plane"
	default:
		return "primary"
	}
}

// FromEnv resolves the role from the process environment.
func FromEnv() Role {
	return FromLookup(os.Getenv)
}

// FromLookup resolves the role using getenv. Any value other than
// ControlPlaneValue, including an empty one, selects Primary.
func FromLookup(getenv func(string) string) Role {
	if getenv(EnvKey) == ControlPlaneValue {
		return ControlPlane
	}
	return Primary
}

// Env returns the KEY=value entry that makes a child start in role r.
func (r Role) Env() string {
	if r == ControlPlane {
		return EnvKey + "=" + ControlPlaneValue
	}
	return EnvKey + "="
}
