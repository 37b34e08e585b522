package players

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/R3E-Network/roster/internal/app/domain/player"
	"github.com/R3E-Network/roster/internal/app/metrics"
	"github.com/R3E-Network/roster/internal/app/storage"
	"github.com/R3E-Network/roster/pkg/logger"
)

// DefaultStorageKey is the key holding the serialized roster.
const DefaultStorageKey = "data-players"

// ErrPlayerNotFound is returned when no record carries the requested id.
var ErrPlayerNotFound = errors.New("player not found")

// Options tunes a Service.
type Options struct {
	// StorageKey overrides DefaultStorageKey.
	StorageKey string
	// RecordRank stores the creation ordinal on new records.
	RecordRank bool
}

// Service owns the player collection. Every operation runs under one mutex
// and every mutation rewrites the whole collection to the store.
type Service struct {
	store storage.KeyValueStore
	key   string
	rank  bool
	log   *logger.Logger

	mu      sync.Mutex
	loaded  bool
	players []player.Player
}

// New constructs a player service.
func New(store storage.KeyValueStore, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("players")
	}
	key := opts.StorageKey
	if key == "" {
		key = DefaultStorageKey
	}
	return &Service{store: store, key: key, rank: opts.RecordRank, log: log}
}

// Name implements system.Service.
func (s *Service) Name() string { return "players" }

// Start loads the roster so the first request does not pay for it.
func (s *Service) Start(ctx context.Context) error {
	_, err := s.Load(ctx)
	return err
}

// Stop implements system.Service.
func (s *Service) Stop(context.Context) error { return nil }

// Load reads the stored roster. When nothing usable is stored the default
// set is written and used instead.
func (s *Service) Load(ctx context.Context) ([]player.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx, true); err != nil {
		return nil, err
	}
	return clonePlayers(s.players), nil
}

// List returns the roster in stored order.
func (s *Service) List(ctx context.Context) ([]player.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx, false); err != nil {
		return nil, err
	}
	return clonePlayers(s.players), nil
}

// Get returns the first record with the given id.
func (s *Service) Get(ctx context.Context, id string) (player.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx, false); err != nil {
		return player.Player{}, err
	}
	idx := indexOf(s.players, id)
	if idx < 0 {
		return player.Player{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
	}
	return s.players[idx].Clone(), nil
}

// Create appends a record. Its id is the collection length plus one, so ids
// can repeat after a delete.
func (s *Service) Create(ctx context.Context, fields player.Fields) (player.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx, false); err != nil {
		return player.Player{}, err
	}

	next := len(s.players) + 1
	created := player.Fields{
		Name:     fields.Name,
		Address:  fields.Address,
		Health:   fields.Health,
		Strength: fields.Strength,
	}.Apply(player.Player{ID: strconv.Itoa(next)})
	if s.rank {
		created.Rank = player.Int(next)
	}

	updated := append(clonePlayers(s.players), created)
	if err := s.persistLocked(ctx, updated); err != nil {
		return player.Player{}, err
	}

	s.log.WithField("player_id", created.ID).
		WithField("name", created.Name).
		Info("player created")
	return created.Clone(), nil
}

// Update merges fields into the first record with the given id.
func (s *Service) Update(ctx context.Context, id string, fields player.Fields) (player.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx, false); err != nil {
		return player.Player{}, err
	}
	idx := indexOf(s.players, id)
	if idx < 0 {
		return player.Player{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
	}

	updated := clonePlayers(s.players)
	updated[idx] = fields.Apply(updated[idx])
	if err := s.persistLocked(ctx, updated); err != nil {
		return player.Player{}, err
	}

	s.log.WithField("player_id", id).Info("player updated")
	return updated[idx].Clone(), nil
}

// Delete removes the first record with the given id and returns it.
func (s *Service) Delete(ctx context.Context, id string) (player.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx, false); err != nil {
		return player.Player{}, err
	}
	idx := indexOf(s.players, id)
	if idx < 0 {
		return player.Player{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
	}

	removed := s.players[idx].Clone()
	updated := make([]player.Player, 0, len(s.players)-1)
	updated = append(updated, clonePlayers(s.players[:idx])...)
	updated = append(updated, clonePlayers(s.players[idx+1:])...)
	if err := s.persistLocked(ctx, updated); err != nil {
		return player.Player{}, err
	}

	s.log.WithField("player_id", id).Info("player deleted")
	return removed, nil
}

// Ranked returns the roster ordered by strength, strongest first.
func (s *Service) Ranked(ctx context.Context) ([]player.Player, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return Ranked(list), nil
}

// loadLocked populates s.players from the store. With force unset it is a
// no-op once the roster has been loaded.
func (s *Service) loadLocked(ctx context.Context, force bool) error {
	if s.loaded && !force {
		return nil
	}

	raw, err := s.store.Get(ctx, s.key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load players: %w", err)
	}

	if err == nil {
		if list, ok := decodePlayers(raw); ok {
			s.players = list
			s.loaded = true
			metrics.SetRosterSize(len(list))
			return nil
		}
		s.log.WithField("key", s.key).Warn("stored roster unreadable; restoring defaults")
	}

	defaults := player.Defaults()
	if err := s.persistLocked(ctx, defaults); err != nil {
		return err
	}
	s.log.WithField("key", s.key).
		WithField("count", len(defaults)).
		Info("default roster written")
	return nil
}

// persistLocked writes list and, only on success, adopts it.
func (s *Service) persistLocked(ctx context.Context, list []player.Player) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode players: %w", err)
	}
	if err := s.store.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("save players: %w", err)
	}
	s.players = list
	s.loaded = true
	metrics.SetRosterSize(len(list))
	return nil
}

// decodePlayers accepts any JSON array of players, including an empty one.
// An empty value, "null" and anything that is not an array count as no
// roster.
func decodePlayers(raw []byte) ([]player.Player, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var list []player.Player
	if err := json.Unmarshal(raw, &list); err != nil || list == nil {
		return nil, false
	}
	return list, true
}

func indexOf(list []player.Player, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func clonePlayers(src []player.Player) []player.Player {
	out := make([]player.Player, len(src))
	for i := range src {
		out[i] = src[i].Clone()
	}
	return out
}
