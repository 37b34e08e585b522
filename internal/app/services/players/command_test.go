package players

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/roster/internal/app/domain/player"
)

func TestParseAction(t *testing.T) {
	for raw, want := range map[string]Action{"create": ActionCreate, " Edit ": ActionEdit, "DELETE": ActionDelete} {
		got, err := ParseAction(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseAction("rename")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestDispatchCreateBypassesConfirmation(t *testing.T) {
	svc, _ := newService(t)

	res, err := svc.Dispatch(context.Background(), Command{
		Action: ActionCreate,
		Fields: player.Fields{Name: player.String("A"), Address: player.String("0x1"), Health: player.Float(10), Strength: player.Float(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, res.Action)
	assert.Equal(t, "4", res.Player.ID)
}

func TestDispatchEditAndDeleteNeedConfirmation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	before, err := svc.List(ctx)
	require.NoError(t, err)

	_, err = svc.Dispatch(ctx, Command{Action: ActionEdit, ID: "1", Fields: player.Fields{Name: player.String("X")}})
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	_, err = svc.Dispatch(ctx, Command{Action: ActionDelete, ID: "1"})
	assert.ErrorIs(t, err, ErrConfirmationRequired)

	after, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDispatchConfirmedEditAndDelete(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	res, err := svc.Dispatch(ctx, Command{Action: ActionEdit, ID: "3", Fields: player.Fields{Strength: player.Float(90)}, Confirmed: true})
	require.NoError(t, err)
	assert.Equal(t, float64(90), res.Player.Strength)

	ranked, err := svc.Ranked(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3", ranked[0].ID)
	assert.Equal(t, 3, *ranked[0].Rank, "stored rank is never recomputed")

	res, err = svc.Dispatch(ctx, Command{Action: ActionDelete, ID: "3", Confirmed: true})
	require.NoError(t, err)
	assert.Equal(t, "3", res.Player.ID)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDispatchUnknownAction(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Dispatch(context.Background(), Command{Action: "rename", Confirmed: true})
	assert.ErrorIs(t, err, ErrUnknownAction)
}
