package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/roster/internal/app/services/wallet"
	"github.com/R3E-Network/roster/internal/app/storage/memory"
	"github.com/R3E-Network/roster/internal/app/storage/sqlstore"
	"github.com/R3E-Network/roster/internal/config"
	"github.com/R3E-Network/roster/pkg/logger"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Storage.Driver = "memory"
	cfg.Limits.RequestsPerSecond = 0
	return cfg
}

func TestBuildStore(t *testing.T) {
	log := logger.NewDefault("test")
	ctx := context.Background()

	store, closer, err := buildStore(ctx, config.StorageConfig{Driver: "memory"}, log)
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.IsType(t, &memory.Store{}, store)

	dsn := "file:" + filepath.Join(t.TempDir(), "roster.db")
	store, closer, err = buildStore(ctx, config.StorageConfig{Driver: "sqlite", DSN: dsn}, log)
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer closer.Close()
	assert.IsType(t, &sqlstore.Store{}, store)

	_, _, err = buildStore(ctx, config.StorageConfig{Driver: "etcd"}, log)
	assert.Error(t, err)
}

func TestBuildWallet(t *testing.T) {
	log := logger.NewDefault("test")

	provider, notifier, err := buildWallet(config.WalletConfig{}, log)
	require.NoError(t, err)
	assert.IsType(t, wallet.NoProvider{}, provider)
	assert.Nil(t, notifier)

	provider, notifier, err = buildWallet(config.WalletConfig{
		RPCURL:    "http://127.0.0.1:8545",
		NotifyURL: "ws://127.0.0.1:8546",
	}, log)
	require.NoError(t, err)
	assert.True(t, provider.Installed())
	assert.IsType(t, &wallet.WSNotifier{}, notifier)
}

func TestNewApplicationServesHealth(t *testing.T) {
	application, err := NewApplication(context.Background(), testConfig(), logger.NewDefault("test"))
	require.NoError(t, err)
	defer application.closeResources()

	rec := httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	application, err := NewApplication(context.Background(), testConfig(), logger.NewDefault("test"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewApplicationRejectsBadRefreshSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Wallet.BalanceRefresh = "every now and then"
	_, err := NewApplication(context.Background(), cfg, logger.NewDefault("test"))
	assert.Error(t, err)
}
