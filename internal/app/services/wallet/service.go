package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	domain "github.com/R3E-Network/roster/internal/app/domain/wallet"
	"github.com/R3E-Network/roster/internal/app/metrics"
	"github.com/R3E-Network/roster/internal/app/storage"
	"github.com/R3E-Network/roster/pkg/logger"
)

// DefaultStorageKey is the key holding the connection snapshot.
const DefaultStorageKey = "metamaskState"

// Service drives the wallet panel. It is independent of the roster.
type Service struct {
	store    storage.KeyValueStore
	key      string
	provider Provider
	notifier Notifier
	log      *logger.Logger

	mu      sync.Mutex
	state   domain.State
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New constructs a wallet service. A nil provider means no wallet is
// installed; a nil notifier disables account-change listening.
func New(store storage.KeyValueStore, provider Provider, notifier Notifier, key string, log *logger.Logger) *Service {
	if provider == nil {
		provider = NoProvider{}
	}
	if key == "" {
		key = DefaultStorageKey
	}
	if log == nil {
		log = logger.NewDefault("wallet")
	}
	return &Service{
		store:    store,
		key:      key,
		provider: provider,
		notifier: notifier,
		log:      log,
		state:    domain.State{Status: domain.StatusPageNotLoaded},
	}
}

// Name implements system.Service.
func (s *Service) Name() string { return "wallet" }

// Start loads the snapshot and, when one exists, starts listening.
func (s *Service) Start(ctx context.Context) error {
	loaded, err := s.Load(ctx)
	if err != nil {
		return err
	}
	s.log.WithField("installed", loaded.IsMetamaskInstalled).
		WithField("listening", loaded.Listening).
		Info("wallet panel loaded")
	return nil
}

// Stop ends account-change listening.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.cancel, s.stopped = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load reads the persisted snapshot and announces the page-loaded event.
// Listening starts only when a snapshot was stored.
func (s *Service) Load(ctx context.Context) (domain.PageLoaded, error) {
	snap, found, err := s.readSnapshot(ctx)
	if err != nil {
		return domain.PageLoaded{}, err
	}
	installed := s.provider.Installed()

	s.mu.Lock()
	s.state = domain.State{
		Wallet:              snap.Wallet,
		Balance:             snap.Balance,
		IsMetamaskInstalled: installed,
		Status:              domain.StatusIdle,
	}
	s.mu.Unlock()

	listening := false
	if found {
		if err := s.listen(); err != nil {
			s.log.WithError(err).Warn("account change listener not started")
		} else {
			listening = s.Listening()
		}
	}

	return domain.PageLoaded{
		IsMetamaskInstalled: installed,
		Wallet:              cloneString(snap.Wallet),
		Balance:             cloneString(snap.Balance),
		Listening:           listening,
	}, nil
}

// State returns the current panel state.
func (s *Service) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Wallet = cloneString(st.Wallet)
	st.Balance = cloneString(st.Balance)
	return st
}

// Listening reports whether account changes are being followed.
func (s *Service) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Connect requests accounts from the provider, records the first one with
// its balance and starts listening.
func (s *Service) Connect(ctx context.Context) (domain.State, error) {
	if !s.provider.Installed() {
		return s.State(), ErrNotInstalled
	}
	s.setStatus(domain.StatusLoading)

	accounts, err := s.provider.RequestAccounts(ctx)
	if err == nil && len(accounts) == 0 {
		err = ErrNoAccounts
	}
	if err != nil {
		s.setStatus(domain.StatusIdle)
		return s.State(), fmt.Errorf("connect wallet: %w", err)
	}

	if err := s.connectAccount(ctx, accounts[0]); err != nil {
		s.setStatus(domain.StatusIdle)
		return s.State(), fmt.Errorf("connect wallet: %w", err)
	}
	if err := s.listen(); err != nil {
		s.log.WithError(err).Warn("account change listener not started")
	}
	return s.State(), nil
}

// Disconnect forgets the wallet and removes the snapshot.
func (s *Service) Disconnect(ctx context.Context) (domain.State, error) {
	if err := s.store.Delete(ctx, s.key); err != nil {
		return s.State(), fmt.Errorf("clear wallet snapshot: %w", err)
	}
	s.mu.Lock()
	s.state.Wallet = nil
	s.state.Balance = nil
	s.state.Status = domain.StatusIdle
	s.mu.Unlock()

	s.log.Info("wallet disconnected")
	return s.State(), nil
}

// RefreshBalance re-reads the connected account's balance. Without a
// connected wallet it does nothing.
func (s *Service) RefreshBalance(ctx context.Context) error {
	current := s.State()
	if current.Wallet == nil || *current.Wallet == "" {
		return nil
	}

	accounts, err := s.provider.Accounts(ctx)
	if err != nil {
		metrics.RecordBalanceRefresh(false)
		return fmt.Errorf("refresh balance: %w", err)
	}
	if len(accounts) == 0 {
		metrics.RecordBalanceRefresh(true)
		_, err := s.Disconnect(ctx)
		return err
	}

	// The provider's first account wins if it moved since the last refresh.
	err = s.connectAccount(ctx, accounts[0])
	metrics.RecordBalanceRefresh(err == nil)
	return err
}

// ApplyAccounts handles an accountsChanged notification.
func (s *Service) ApplyAccounts(ctx context.Context, accounts []string) error {
	metrics.RecordWalletAccountChange()
	if len(accounts) == 0 {
		_, err := s.Disconnect(ctx)
		return err
	}
	return s.connectAccount(ctx, accounts[0])
}

func (s *Service) connectAccount(ctx context.Context, account string) error {
	balance, err := s.provider.Balance(ctx, account)
	if err != nil {
		return fmt.Errorf("balance of %s: %w", account, err)
	}

	snap := domain.Snapshot{Wallet: &account, Balance: &balance}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode wallet snapshot: %w", err)
	}
	if err := s.store.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("save wallet snapshot: %w", err)
	}

	s.mu.Lock()
	s.state.Wallet = cloneString(&account)
	s.state.Balance = cloneString(&balance)
	s.state.Status = domain.StatusIdle
	s.mu.Unlock()

	s.log.WithField("wallet", account).WithField("balance", balance).Info("wallet connected")
	return nil
}

// listen subscribes to the notifier once for the life of the service.
func (s *Service) listen() error {
	if s.notifier == nil {
		return errors.New("no account notifier configured")
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	s.cancel, s.stopped = cancel, stopped
	s.mu.Unlock()

	updates, err := s.notifier.Subscribe(ctx)
	if err != nil {
		cancel()
		close(stopped)
		s.mu.Lock()
		s.cancel, s.stopped = nil, nil
		s.mu.Unlock()
		return fmt.Errorf("subscribe to account changes: %w", err)
	}

	go func() {
		defer close(stopped)
		for accounts := range updates {
			if err := s.ApplyAccounts(ctx, accounts); err != nil {
				s.log.WithError(err).Warn("apply account change")
			}
		}
		// The stream ended on its own; allow a later Connect to resubscribe.
		s.mu.Lock()
		if s.stopped == stopped {
			s.cancel, s.stopped = nil, nil
		}
		s.mu.Unlock()
		cancel()
	}()
	return nil
}

func (s *Service) readSnapshot(ctx context.Context) (domain.Snapshot, bool, error) {
	raw, err := s.store.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("load wallet snapshot: %w", err)
	}

	var snap domain.Snapshot
	if len(raw) == 0 || json.Unmarshal(raw, &snap) != nil {
		s.log.WithField("key", s.key).Warn("stored wallet snapshot unreadable; ignoring")
		return domain.Snapshot{}, false, nil
	}
	return snap, true, nil
}

func (s *Service) setStatus(status domain.Status) {
	s.mu.Lock()
	s.state.Status = status
	s.mu.Unlock()
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
