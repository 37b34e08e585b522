package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/R3E-Network/roster/internal/app/domain/wallet"
	"github.com/R3E-Network/roster/internal/app/storage"
	"github.com/R3E-Network/roster/internal/app/storage/memory"
	"github.com/R3E-Network/roster/pkg/testutil"
)

func str(v string) *string { return &v }

func storeSnapshot(t *testing.T, store storage.KeyValueStore, snap domain.Snapshot) {
	t.Helper()
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), DefaultStorageKey, data))
}

func readStored(t *testing.T, store storage.KeyValueStore) domain.Snapshot {
	t.Helper()
	raw, err := store.Get(context.Background(), DefaultStorageKey)
	require.NoError(t, err)
	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	return snap
}

func stop(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))
}

func TestNewStartsInPageNotLoaded(t *testing.T) {
	svc := New(memory.New(), nil, nil, "", nil)
	st := svc.State()
	assert.Equal(t, domain.StatusPageNotLoaded, st.Status)
	assert.False(t, st.IsMetamaskInstalled)
	assert.Nil(t, st.Wallet)
}

func TestLoadWithoutSnapshotDoesNotListen(t *testing.T) {
	notifier := testutil.NewMockNotifier()
	svc := New(memory.New(), testutil.NewMockWalletProvider(), notifier, "", nil)

	loaded, err := svc.Load(context.Background())
	require.NoError(t, err)

	assert.True(t, loaded.IsMetamaskInstalled)
	assert.Nil(t, loaded.Wallet)
	assert.Nil(t, loaded.Balance)
	assert.False(t, loaded.Listening)
	assert.Zero(t, notifier.Subscriptions())
	assert.Equal(t, domain.StatusIdle, svc.State().Status)
}

func TestLoadRestoresSnapshotAndListens(t *testing.T) {
	store := memory.New()
	storeSnapshot(t, store, domain.Snapshot{Wallet: str("0xabc"), Balance: str("1.5000")})
	notifier := testutil.NewMockNotifier()
	svc := New(store, testutil.NewMockWalletProvider(), notifier, "", nil)
	defer stop(t, svc)

	loaded, err := svc.Load(context.Background())
	require.NoError(t, err)

	require.NotNil(t, loaded.Wallet)
	assert.Equal(t, "0xabc", *loaded.Wallet)
	assert.Equal(t, "1.5000", *loaded.Balance)
	assert.True(t, loaded.Listening)
	assert.Equal(t, 1, notifier.Subscriptions())
}

func TestLoadMalformedSnapshotIsNull(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Put(context.Background(), DefaultStorageKey, []byte("{oops")))
	svc := New(store, NoProvider{}, testutil.NewMockNotifier(), "", nil)

	loaded, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded.Wallet)
	assert.Nil(t, loaded.Balance)
	assert.False(t, loaded.Listening)
	assert.False(t, loaded.IsMetamaskInstalled)
}

func TestConnectWithoutProvider(t *testing.T) {
	svc := New(memory.New(), nil, nil, "", nil)
	_, err := svc.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestConnectPersistsFirstAccount(t *testing.T) {
	store := memory.New()
	provider := testutil.NewMockWalletProvider("0xabc", "0xdef")
	provider.SetBalance("0xabc", "2.0000")
	notifier := testutil.NewMockNotifier()
	svc := New(store, provider, notifier, "", nil)
	defer stop(t, svc)

	st, err := svc.Connect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "0xabc", *st.Wallet)
	assert.Equal(t, "2.0000", *st.Balance)
	assert.Equal(t, domain.StatusIdle, st.Status)
	assert.True(t, svc.Listening())

	snap := readStored(t, store)
	assert.Equal(t, "0xabc", *snap.Wallet)
	assert.Equal(t, "2.0000", *snap.Balance)
}

func TestConnectNoAccounts(t *testing.T) {
	svc := New(memory.New(), testutil.NewMockWalletProvider(), nil, "", nil)
	st, err := svc.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNoAccounts)
	assert.Equal(t, domain.StatusIdle, st.Status)
	assert.Nil(t, st.Wallet)
}

func TestConnectProviderFailure(t *testing.T) {
	boom := errors.New("rejected")
	provider := testutil.NewMockWalletProvider("0xabc")
	provider.SetError(boom)
	svc := New(memory.New(), provider, nil, "", nil)
	_, err := svc.Connect(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.StatusIdle, svc.State().Status)
}

func TestDisconnectClearsSnapshot(t *testing.T) {
	store := memory.New()
	provider := testutil.NewMockWalletProvider("0xabc")
	provider.SetBalance("0xabc", "1.0000")
	svc := New(store, provider, nil, "", nil)

	_, err := svc.Connect(context.Background())
	require.NoError(t, err)

	st, err := svc.Disconnect(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st.Wallet)
	assert.Nil(t, st.Balance)

	_, err = store.Get(context.Background(), DefaultStorageKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAccountChangesAreApplied(t *testing.T) {
	store := memory.New()
	provider := testutil.NewMockWalletProvider("0xabc")
	provider.SetBalance("0xabc", "1.0000")
	provider.SetBalance("0xdef", "3.2500")
	notifier := testutil.NewMockNotifier()
	svc := New(store, provider, notifier, "", nil)
	defer stop(t, svc)

	_, err := svc.Connect(context.Background())
	require.NoError(t, err)

	notifier.Push("0xdef")
	require.Eventually(t, func() bool {
		w := svc.State().Wallet
		return w != nil && *w == "0xdef"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "3.2500", *svc.State().Balance)
	assert.Equal(t, "0xdef", *readStored(t, store).Wallet)

	notifier.Push()
	require.Eventually(t, func() bool {
		return svc.State().Wallet == nil
	}, 2*time.Second, 10*time.Millisecond)
	_, err = store.Get(context.Background(), DefaultStorageKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRefreshBalance(t *testing.T) {
	store := memory.New()
	provider := testutil.NewMockWalletProvider("0xabc")
	provider.SetBalance("0xabc", "1.0000")
	svc := New(store, provider, nil, "", nil)

	// Nothing connected: no-op.
	require.NoError(t, svc.RefreshBalance(context.Background()))

	_, err := svc.Connect(context.Background())
	require.NoError(t, err)

	provider.SetBalance("0xabc", "4.0000")
	require.NoError(t, svc.RefreshBalance(context.Background()))
	assert.Equal(t, "4.0000", *svc.State().Balance)

	provider.SetAccounts()
	require.NoError(t, svc.RefreshBalance(context.Background()))
	assert.Nil(t, svc.State().Wallet)
}

func TestStopWithoutListening(t *testing.T) {
	svc := New(memory.New(), nil, nil, "", nil)
	assert.NoError(t, svc.Stop(context.Background()))
}

func TestDisconnectStoreFailure(t *testing.T) {
	store := testutil.NewFlakyStore(memory.New())
	provider := testutil.NewMockWalletProvider("0xabc")
	svc := New(store, provider, nil, "", nil)

	_, err := svc.Connect(context.Background())
	require.NoError(t, err)

	store.FailDelete(true)
	st, err := svc.Disconnect(context.Background())
	assert.ErrorIs(t, err, testutil.ErrInjected)
	require.NotNil(t, st.Wallet)
	assert.Equal(t, "0xabc", *st.Wallet)
}

func TestConnectIsIdempotentForListening(t *testing.T) {
	provider := testutil.NewMockWalletProvider("0xabc")
	notifier := testutil.NewMockNotifier()
	svc := New(memory.New(), provider, notifier, "", nil)
	defer stop(t, svc)

	for i := 0; i < 3; i++ {
		_, err := svc.Connect(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, provider.Requests())
	assert.Equal(t, 1, notifier.Subscriptions())
}
