// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"errors"
	"sync"
)

// ErrInjected is returned by FlakyStore when a failure is switched on.
var ErrInjected = errors.New("injected failure")

// KV mirrors storage.KeyValueStore so this package stays free of internal
// imports.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// FlakyStore wraps a KV and fails selected operations on demand.
type FlakyStore struct {
	KV

	mu         sync.Mutex
	failGet    bool
	failPut    bool
	failDelete bool
	puts       int
}

// NewFlakyStore wraps inner.
func NewFlakyStore(inner KV) *FlakyStore {
	return &FlakyStore{KV: inner}
}

// FailPut toggles Put failures.
func (s *FlakyStore) FailPut(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPut = fail
}

// FailGet toggles Get failures.
func (s *FlakyStore) FailGet(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet = fail
}

// FailDelete toggles Delete failures.
func (s *FlakyStore) FailDelete(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDelete = fail
}

// Puts counts successful writes.
func (s *FlakyStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *FlakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	fail := s.failGet
	s.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return s.KV.Get(ctx, key)
}

func (s *FlakyStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return ErrInjected
	}
	if err := s.KV.Put(ctx, key, value); err != nil {
		return err
	}
	s.puts++
	return nil
}

func (s *FlakyStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	fail := s.failDelete
	s.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return s.KV.Delete(ctx, key)
}

// MockWalletProvider is a scriptable wallet provider.
type MockWalletProvider struct {
	mu           sync.Mutex
	notInstalled bool
	accounts     []string
	balances     map[string]string
	err          error
	requests     int
}

// NewMockWalletProvider exposes accounts, in order.
func NewMockWalletProvider(accounts ...string) *MockWalletProvider {
	return &MockWalletProvider{accounts: accounts, balances: make(map[string]string)}
}

// SetAccounts replaces the exposed accounts.
func (m *MockWalletProvider) SetAccounts(accounts ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = accounts
}

// SetBalance sets the display balance of account.
func (m *MockWalletProvider) SetBalance(account, balance string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = balance
}

// SetError makes every call fail with err; nil clears it.
func (m *MockWalletProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetInstalled toggles Installed.
func (m *MockWalletProvider) SetInstalled(installed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notInstalled = !installed
}

// Requests counts RequestAccounts calls.
func (m *MockWalletProvider) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

func (m *MockWalletProvider) Installed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.notInstalled
}

func (m *MockWalletProvider) Accounts(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]string(nil), m.accounts...), nil
}

func (m *MockWalletProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	m.requests++
	m.mu.Unlock()
	return m.Accounts(ctx)
}

func (m *MockWalletProvider) Balance(_ context.Context, account string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	return m.balances[account], nil
}

// MockNotifier forwards Push calls to every live subscription.
type MockNotifier struct {
	mu   sync.Mutex
	in   chan []string
	subs int
}

// NewMockNotifier creates a notifier with no subscribers.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{in: make(chan []string)}
}

// Subscriptions counts Subscribe calls.
func (n *MockNotifier) Subscriptions() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.subs
}

// Push delivers an accountsChanged notification. It blocks until a
// subscriber takes it.
func (n *MockNotifier) Push(accounts ...string) {
	if accounts == nil {
		accounts = []string{}
	}
	n.in <- accounts
}

func (n *MockNotifier) Subscribe(ctx context.Context) (<-chan []string, error) {
	n.mu.Lock()
	n.subs++
	n.mu.Unlock()

	out := make(chan []string)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case accounts := <-n.in:
				select {
				case out <- accounts:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
