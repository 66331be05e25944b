// Package memory defines the message log: an append-only record of what the
// user and the assistant said, independent of any one conversation's
// in-process history.
//
// The log is a persistence collaborator. The turn-taking controller never
// reads it; a [Recorder] copies finalized turns into it in the background so
// a slow store cannot stall a conversation.
//
// Every [MessageStore] implementation must be safe for concurrent use.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/saathi/pkg/types"
)

// Speaker labels stored in [Record.User].
const (
	SpeakerUser      = "User"
	SpeakerAssistant = "AI"
)

// ErrInvalidRecord is returned by Append when a record lacks a speaker or
// text.
var ErrInvalidRecord = errors.New("memory: invalid record")

// Record is one logged message.
type Record struct {
	// ID is assigned by the store on Append.
	ID string `json:"id"`

	// Session groups the records of one conversation. Empty for records
	// posted directly through the API.
	Session string `json:"session,omitempty"`

	// User is the speaker label, usually [SpeakerUser] or [SpeakerAssistant].
	User string `json:"user"`

	Text string `json:"text"`

	// Timestamp is assigned by the store when zero.
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks that r has a speaker and text.
func (r Record) Validate() error {
	var missing []string
	if strings.TrimSpace(r.User) == "" {
		missing = append(missing, "user")
	}
	if strings.TrimSpace(r.Text) == "" {
		missing = append(missing, "text")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRecord, strings.Join(missing, ", "))
	}
	return nil
}

// SpeakerFor maps a turn role to its speaker label.
func SpeakerFor(role types.Role) string {
	if role == types.RoleAssistant {
		return SpeakerAssistant
	}
	return SpeakerUser
}

// MessageStore persists records.
type MessageStore interface {
	// Append validates r, assigns ID and (when zero) Timestamp, stores it and
	// returns the stored record.
	Append(ctx context.Context, r Record) (Record, error)

	// List returns records newest first.
	List(ctx context.Context, opts ...ListOpt) ([]Record, error)
}

// Pinger is implemented by stores backed by an external service.
type Pinger interface {
	Ping(ctx context.Context) error
}
