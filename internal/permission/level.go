// Package permission defines the permission levels a team can hold on a
// repository.
package permission

import "fmt"

type Level int

const (
	Unspecified Level = iota
	Read
	Triage
	Write
	Maintain
	Admin
)

var levels = []Level{Read, Triage, Write, Maintain, Admin}

var names = map[Level]string{
	Read:     "read",
	Triage:   "triage",
	Write:    "write",
	Maintain: "maintain",
	Admin:    "admin",
}

var githubRoles = map[Level]string{
	Read:     "pull",
	Triage:   "triage",
	Write:    "push",
	Maintain: "maintain",
	Admin:    "admin",
}

// All returns every level from least to most privileged.
func All() []Level {
	return append([]Level(nil), levels...)
}

// Parse accepts exactly the five wire tokens. Case and whitespace are
// significant.
func Parse(s string) (Level, error) {
	for _, l := range levels {
		if names[l] == s {
			return l, nil
		}
	}
	return Unspecified, fmt.Errorf("invalid permission level %q: must be one of read, triage, write, maintain, admin", s)
}

func (l Level) Valid() bool {
	_, ok := names[l]
	return ok
}

func (l Level) String() string {
	if name, ok := names[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// GitHubRole is the role name GitHub uses for this level.
func (l Level) GitHubRole() string {
	return githubRoles[l]
}

// AtLeast reports whether l grants everything other grants.
func (l Level) AtLeast(other Level) bool {
	return l >= other
}

func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid permission level %d", int(l))
	}
	return []byte(names[l]), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
