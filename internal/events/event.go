// Package events turns game server events into rendered Telegram messages
// and hands them to the notifier.
package events

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindJoin        Kind = "join"
	KindQuit        Kind = "quit"
	KindDeath       Kind = "death"
	KindServerStart Kind = "server_start"
)

var (
	ErrUnknownKind   = errors.New("unknown event kind")
	ErrMissingPlayer = errors.New("player is required")
)

// ParseKind accepts the canonical names case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindJoin, KindQuit, KindDeath, KindServerStart:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Event is one occurrence reported by a game server. Coordinates are block
// coordinates.
type Event struct {
	Kind         Kind   `json:"kind" schema:"kind"`
	Player       string `json:"player,omitempty" schema:"player"`
	DeathMessage string `json:"death_message,omitempty" schema:"death_message"`
	World        string `json:"world,omitempty" schema:"world"`
	X            int    `json:"x,omitempty" schema:"x"`
	Y            int    `json:"y,omitempty" schema:"y"`
	Z            int    `json:"z,omitempty" schema:"z"`
}

// Validate normalizes the kind and checks required fields.
func (e *Event) Validate() error {
	k, err := ParseKind(string(e.Kind))
	if err != nil {
		return err
	}
	e.Kind = k
	if k != KindServerStart && strings.TrimSpace(e.Player) == "" {
		return fmt.Errorf("%s: %w", k, ErrMissingPlayer)
	}
	return nil
}
