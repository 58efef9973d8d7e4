// Package conversation keeps per-thread chat history.
//
// A thread is an append-only, ordered list of turns keyed by an integer ID.
// Threads are created on first use and never deleted.
package conversation

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Role of a turn's author
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a thread
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Human builds a user turn.
func Human(text string) Turn { return Turn{Role: RoleHuman, Text: text} }

// Assistant builds an agent turn.
func Assistant(text string) Turn { return Turn{Role: RoleAssistant, Text: text} }

// Store persists threads. History returns a copy; mutating it never affects the store.
type Store interface {
	History(ctx context.Context, threadID int64) ([]Turn, error)
	Append(ctx context.Context, threadID int64, turns ...Turn) error
	Close() error
}

// Driver names accepted by Open
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Driver     string
	SQLitePath string
	RedisAddr  string
	KeyPrefix  string
}

// Open returns the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Driver) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	case DriverRedis:
		return NewRedisStore(ctx, opts.RedisAddr, opts.KeyPrefix)
	default:
		return nil, errors.Errorf("unknown conversation store %q", opts.Driver)
	}
}

// Window returns at most the last n turns of history, or all of it when
// n <= 0. A cut window never starts with an assistant turn, so the answer
// to a question outside the window is dropped with it.
func Window(history []Turn, n int) []Turn {
	if n <= 0 || len(history) <= n {
		return history
	}
	w := history[len(history)-n:]
	for len(w) > 0 && w[0].Role == RoleAssistant {
		w = w[1:]
	}
	return w
}

func validateTurns(turns []Turn) error {
	for _, t := range turns {
		if t.Role != RoleHuman && t.Role != RoleAssistant {
			return errors.Errorf("invalid turn role %q", t.Role)
		}
	}
	return nil
}
