package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/R3E-Network/roster/internal/app/services/players"
	"github.com/R3E-Network/roster/internal/app/services/wallet"
	"github.com/R3E-Network/roster/internal/app/storage"
	"github.com/R3E-Network/roster/internal/app/storage/memory"
	"github.com/R3E-Network/roster/internal/app/system"
	"github.com/R3E-Network/roster/pkg/logger"
)

// Stores encapsulates persistence dependencies. A nil KV defaults to the
// in-memory implementation.
type Stores struct {
	KV storage.KeyValueStore
}

// Options selects service behaviour. The zero value is usable: default
// keys, rank recorded off, no wallet provider, no scheduled refresh.
type Options struct {
	Players players.Options

	WalletKey      string
	WalletProvider wallet.Provider
	WalletNotifier wallet.Notifier
	// BalanceRefresh is a cron schedule; empty disables the refresher.
	BalanceRefresh string
	RefreshTimeout time.Duration
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Players *players.Service
	Wallet  *wallet.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if stores.KV == nil {
		log.Warn("no key-value store configured; using in-memory storage")
		stores.KV = memory.New()
	}

	manager := system.NewManager()

	playerService := players.New(stores.KV, opts.Players, log.Named("players"))
	walletService := wallet.New(stores.KV, opts.WalletProvider, opts.WalletNotifier, opts.WalletKey, log.Named("wallet"))

	services := []system.Service{playerService, walletService}

	if schedule := strings.TrimSpace(opts.BalanceRefresh); schedule != "" {
		refresher, err := wallet.NewBalanceRefresher(walletService, schedule, opts.RefreshTimeout, log.Named("wallet-refresher"))
		if err != nil {
			return nil, err
		}
		services = append(services, refresher)
	} else {
		log.Debug("WALLET_BALANCE_REFRESH not set; balance refresher disabled")
	}

	for _, svc := range services {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager: manager,
		log:     log,
		Players: playerService,
		Wallet:  walletService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// Services lists the registered service names in start order.
func (a *Application) Services() []string {
	return a.manager.Names()
}
