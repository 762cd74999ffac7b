// ABOUTME: Permission levels and the guard that gates every privileged call
// ABOUTME: Levels are totally ordered: none < read < write < delete

package flickr

import "strings"

// Level is a Flickr permission tier.
type Level int

const (
	LevelNone Level = iota
	LevelRead
	LevelWrite
	LevelDelete
)

var levelNames = map[Level]string{
	LevelNone:   "none",
	LevelRead:   "read",
	LevelWrite:  "write",
	LevelDelete: "delete",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether l is one of the four known tiers.
func (l Level) Valid() bool {
	return l >= LevelNone && l <= LevelDelete
}

// ParseLevel maps a permission name to its Level. The empty string and "none"
// map to LevelNone; ok is false for anything unrecognized.
func ParseLevel(name string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return LevelNone, true
	case "read":
		return LevelRead, true
	case "write":
		return LevelWrite, true
	case "delete":
		return LevelDelete, true
	default:
		return LevelNone, false
	}
}

// requestableLevel returns the permission name to send to the auth endpoint.
// Anything other than read, write or delete silently becomes read.
func requestableLevel(name string) Level {
	l, ok := ParseLevel(name)
	if !ok || l == LevelNone {
		return LevelRead
	}
	return l
}

// grantedLevel maps the permission name reported by auth.getToken or
// auth.checkToken. An empty name means read.
func grantedLevel(name string) Level {
	l, ok := ParseLevel(name)
	if !ok || l == LevelNone {
		return LevelRead
	}
	return l
}

// Check reports whether session may perform an operation that requires level.
// Rules apply in order: level none always passes; a missing session fails; an
// insufficient level fails; any non-zero level also needs an auth token.
func Check(session *AuthSession, level Level) bool {
	if level <= LevelNone {
		return true
	}
	if session == nil {
		return false
	}
	if session.PermissionLevel < level {
		return false
	}
	if session.AuthToken == "" {
		return false
	}
	return true
}

// CheckForMethod applies Check with the method's required permission.
func CheckForMethod(session *AuthSession, def *MethodDefinition) bool {
	if def == nil {
		return Check(session, LevelNone)
	}
	return Check(session, def.RequiredPermission)
}
