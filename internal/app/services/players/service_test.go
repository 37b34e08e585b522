package players

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/roster/internal/app/domain/player"
	"github.com/R3E-Network/roster/internal/app/storage"
	"github.com/R3E-Network/roster/internal/app/storage/memory"
	"github.com/R3E-Network/roster/pkg/testutil"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, Options{RecordRank: true}, nil), store
}

func storedPlayers(t *testing.T, store storage.KeyValueStore) []player.Player {
	t.Helper()
	raw, err := store.Get(context.Background(), DefaultStorageKey)
	require.NoError(t, err)
	var list []player.Player
	require.NoError(t, json.Unmarshal(raw, &list))
	return list
}

func TestLoadEmptyStorageWritesDefaults(t *testing.T) {
	svc, store := newService(t)

	list, err := svc.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, player.Defaults(), list)
	assert.Equal(t, player.Defaults(), storedPlayers(t, store))
}

func TestLoadMalformedStorageRestoresDefaults(t *testing.T) {
	for _, raw := range []string{"", "null", "{", `{"id":"1"}`, `"players"`} {
		t.Run(raw, func(t *testing.T) {
			svc, store := newService(t)
			require.NoError(t, store.Put(context.Background(), DefaultStorageKey, []byte(raw)))

			list, err := svc.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, player.Defaults(), list)
			assert.Equal(t, player.Defaults(), storedPlayers(t, store))
		})
	}
}

func TestLoadKeepsStoredRoster(t *testing.T) {
	svc, store := newService(t)
	stored := []player.Player{{ID: "7", Name: "Solo", Address: "0x7", Health: 12.5, Strength: 3}}
	raw, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), DefaultStorageKey, raw))

	list, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stored, list)
}

func TestLoadCoercesStringNumbers(t *testing.T) {
	svc, store := newService(t)
	raw := `[{"id":"1","name":"typed","address":"0x1","health":"10","strength":"5","rank":1},` +
		`{"id":"2","name":"junk","address":"0x2","health":"abc","strength":7}]`
	require.NoError(t, store.Put(context.Background(), DefaultStorageKey, []byte(raw)))

	list, err := svc.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "typed", list[0].Name)
	assert.Equal(t, 10.0, list[0].Health)
	assert.Equal(t, 5.0, list[0].Strength)
	assert.Equal(t, 0.0, list[1].Health)
	assert.Equal(t, 7.0, list[1].Strength)

	// Storage keeps the user records rather than the default set.
	stored, err := store.Get(context.Background(), DefaultStorageKey)
	require.NoError(t, err)
	assert.Equal(t, raw, string(stored))
}

func TestLoadNullRestoresDefaults(t *testing.T) {
	svc, store := newService(t)
	require.NoError(t, store.Put(context.Background(), DefaultStorageKey, []byte("null")))

	list, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, player.Defaults(), list)
	assert.Equal(t, player.Defaults(), storedPlayers(t, store))
}

func TestLoadKeepsEmptyArray(t *testing.T) {
	svc, store := newService(t)
	require.NoError(t, store.Put(context.Background(), DefaultStorageKey, []byte(`[]`)))

	list, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateAppendsWithLengthBasedID(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	before, err := svc.List(ctx)
	require.NoError(t, err)

	created, err := svc.Create(ctx, player.Fields{
		Name:     player.String("A"),
		Address:  player.String("0x1"),
		Health:   player.Float(10),
		Strength: player.Float(5),
	})
	require.NoError(t, err)

	assert.Equal(t, "4", created.ID)
	require.NotNil(t, created.Rank)
	assert.Equal(t, 4, *created.Rank)

	after := storedPlayers(t, store)
	require.Len(t, after, len(before)+1)
	assert.Equal(t, before, after[:len(before)])
	assert.Equal(t, created, after[len(after)-1])
}

func TestCreateWithoutRankRecording(t *testing.T) {
	svc := New(memory.New(), Options{}, nil)

	created, err := svc.Create(context.Background(), player.Fields{Name: player.String("B")})
	require.NoError(t, err)
	assert.Nil(t, created.Rank)
	assert.Equal(t, float64(0), created.Health)
}

func TestCreateIgnoresSuppliedRank(t *testing.T) {
	svc, _ := newService(t)

	created, err := svc.Create(context.Background(), player.Fields{Name: player.String("C"), Rank: player.Int(99)})
	require.NoError(t, err)
	require.NotNil(t, created.Rank)
	assert.Equal(t, 4, *created.Rank)
}

func TestIDsRepeatAfterDelete(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Delete(ctx, "1")
	require.NoError(t, err)

	created, err := svc.Create(ctx, player.Fields{Name: player.String("D")})
	require.NoError(t, err)
	assert.Equal(t, "3", created.ID)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, p := range list {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"2", "3", "3"}, ids)
}

func TestUpdateChangesOnlyTarget(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	before, err := svc.List(ctx)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "2", player.Fields{Health: player.Float(99)})
	require.NoError(t, err)
	assert.Equal(t, float64(99), updated.Health)

	after := storedPlayers(t, store)
	require.Len(t, after, len(before))
	for i := range before {
		want := before[i]
		if want.ID == "2" {
			want.Health = 99
		}
		assert.Equal(t, want, after[i])
	}
}

func TestUpdateMissing(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Update(context.Background(), "42", player.Fields{Health: player.Float(1)})
	assert.True(t, errors.Is(err, ErrPlayerNotFound))
}

func TestDeleteRemovesExactlyOne(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	removed, err := svc.Delete(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "2", removed.ID)

	after := storedPlayers(t, store)
	require.Len(t, after, 2)
	assert.Equal(t, "1", after[0].ID)
	assert.Equal(t, "3", after[1].ID)

	_, err = svc.Delete(ctx, "2")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestGet(t *testing.T) {
	svc, _ := newService(t)

	p, err := svc.Get(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, "Ngô Văn Nhớ", p.Name)

	_, err = svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestRoundTripThroughStore(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	first := New(store, Options{RecordRank: true}, nil)
	_, err := first.Create(ctx, player.Fields{Name: player.String("E"), Health: player.Float(1.25), Strength: player.Float(7)})
	require.NoError(t, err)
	want, err := first.List(ctx)
	require.NoError(t, err)

	second := New(store, Options{RecordRank: true}, nil)
	got, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFailedWriteLeavesRosterUnchanged(t *testing.T) {
	store := testutil.NewFlakyStore(memory.New())
	svc := New(store, Options{}, nil)
	ctx := context.Background()

	before, err := svc.Load(ctx)
	require.NoError(t, err)

	store.FailPut(true)
	_, err = svc.Create(ctx, player.Fields{Name: player.String("F")})
	require.Error(t, err)

	after, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestListReturnsCopies(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	list, err := svc.List(ctx)
	require.NoError(t, err)
	list[0].Name = "mutated"
	*list[0].Rank = 100

	again, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Lê Minh Phú", again[0].Name)
	assert.Equal(t, 1, *again[0].Rank)
}
