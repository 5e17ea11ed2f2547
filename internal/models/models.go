package models

import (
	"fmt"
	"time"
)

// Action is the kind of change a commit applied to a file.
type Action string

const (
	ActionAdd    Action = "add"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// Code returns the single-character wire form used in the timeline log
// (the alphabet the external renderer understands).
func (a Action) Code() string {
	switch a {
	case ActionAdd:
		return "A"
	case ActionModify:
		return "M"
	case ActionDelete:
		return "D"
	default:
		return "M"
	}
}

// ParseAction accepts either the long form ("add") or the single-character
// wire code ("A").
func ParseAction(s string) (Action, error) {
	switch s {
	case "add", "A":
		return ActionAdd, nil
	case "modify", "M":
		return ActionModify, nil
	case "delete", "D":
		return ActionDelete, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// CommitEvent is one file change extracted from a repository's history.
// Events are immutable once produced by the scanner.
type CommitEvent struct {
	RepoID    string    `json:"repo_id" db:"repo_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Author    string    `json:"author" db:"author"` // raw identifier as recorded by git
	Action    Action    `json:"action" db:"action"`
	Path      string    `json:"path" db:"path"`
}

// Person is a canonical author identity. One or more raw git identifiers
// resolve to a Person; the resolver owns that mapping.
type Person struct {
	Name   string `json:"name" db:"name"`     // canonical name, first-seen casing
	Avatar string `json:"avatar" db:"avatar"` // avatar reference, empty if unset
}

// Mapping is one raw identifier bound to a canonical name.
type Mapping struct {
	Raw       string `json:"raw" db:"raw"`
	Canonical string `json:"canonical" db:"canonical"`
}

// TimelineEntry is a playback-ready event: merged across repositories,
// identity-resolved, and time-scaled.
type TimelineEntry struct {
	Offset time.Duration `json:"offset"` // playback offset, millisecond resolution
	Name   string        `json:"name"`   // canonical author name
	Action Action        `json:"action"`
	Path   string        `json:"path"`
}

// Repository is one scanned repository: its filesystem path plus the label
// used to namespace its file paths in the merged timeline.
type Repository struct {
	Path  string `json:"path"`
	Label string `json:"label"`
}
