package players

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/R3E-Network/roster/internal/app/domain/player"
	"github.com/R3E-Network/roster/internal/app/metrics"
)

// Action names the mutation a Command performs.
type Action string

const (
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

var (
	// ErrConfirmationRequired is returned for unconfirmed edit and delete
	// commands. Nothing is changed.
	ErrConfirmationRequired = errors.New("confirmation required")
	// ErrUnknownAction is returned for an action outside create/edit/delete.
	ErrUnknownAction = errors.New("unknown action")
)

// ParseAction maps a transport value onto an Action.
func ParseAction(raw string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionCreate, ActionEdit, ActionDelete:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
}

// Command is a single roster mutation. ID is ignored for create.
type Command struct {
	Action    Action        `json:"action"`
	ID        string        `json:"id,omitempty"`
	Fields    player.Fields `json:"fields"`
	Confirmed bool          `json:"confirmed,omitempty"`
}

// Result reports the record a command produced or removed.
type Result struct {
	Action Action        `json:"action"`
	Player player.Player `json:"player"`
}

// Dispatch routes cmd to Create, Update or Delete. Create runs immediately;
// edit and delete run only once confirmed.
func (s *Service) Dispatch(ctx context.Context, cmd Command) (Result, error) {
	res, err := s.dispatch(ctx, cmd)
	metrics.RecordPlayerCommand(string(cmd.Action), err)
	if err != nil && !errors.Is(err, ErrConfirmationRequired) {
		s.log.WithContext(ctx).
			WithField("action", cmd.Action).
			WithField("player_id", cmd.ID).
			WithError(err).
			Warn("player command failed")
	}
	return res, err
}

func (s *Service) dispatch(ctx context.Context, cmd Command) (Result, error) {
	switch cmd.Action {
	case ActionCreate:
		p, err := s.Create(ctx, cmd.Fields)
		return Result{Action: cmd.Action, Player: p}, err
	case ActionEdit:
		if !cmd.Confirmed {
			return Result{}, ErrConfirmationRequired
		}
		p, err := s.Update(ctx, cmd.ID, cmd.Fields)
		return Result{Action: cmd.Action, Player: p}, err
	case ActionDelete:
		if !cmd.Confirmed {
			return Result{}, ErrConfirmationRequired
		}
		p, err := s.Delete(ctx, cmd.ID)
		return Result{Action: cmd.Action, Player: p}, err
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
}
