// Package runtime turns a Config into a running roster server.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	app "github.com/R3E-Network/roster/internal/app"
	"github.com/R3E-Network/roster/internal/app/httpapi"
	"github.com/R3E-Network/roster/internal/app/services/players"
	"github.com/R3E-Network/roster/internal/app/services/wallet"
	"github.com/R3E-Network/roster/internal/app/storage"
	"github.com/R3E-Network/roster/internal/app/storage/memory"
	redisstore "github.com/R3E-Network/roster/internal/app/storage/redis"
	"github.com/R3E-Network/roster/internal/app/storage/sqlstore"
	"github.com/R3E-Network/roster/internal/config"
	"github.com/R3E-Network/roster/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg     *config.Config
	log     *logger.Logger
	app     *app.Application
	handler *httpapi.Handler
	server  *http.Server
	closers []io.Closer
}

// NewApplication opens the configured store, builds the services and the
// HTTP handler. Nothing is started yet.
func NewApplication(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("runtime: config required")
	}
	if log == nil {
		log = logger.New(cfg.Logging)
	}

	store, closer, err := buildStore(ctx, cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("configure store: %w", err)
	}
	closers := []io.Closer{}
	if closer != nil {
		closers = append(closers, closer)
	}

	provider, notifier, err := buildWallet(cfg.Wallet, log)
	if err != nil {
		closeAll(closers, log)
		return nil, fmt.Errorf("configure wallet: %w", err)
	}

	application, err := app.New(app.Stores{KV: store}, app.Options{
		Players: players.Options{
			StorageKey: cfg.Players.StorageKey,
			RecordRank: cfg.Players.RecordRank,
		},
		WalletKey:      cfg.Wallet.StorageKey,
		WalletProvider: provider,
		WalletNotifier: notifier,
		BalanceRefresh: cfg.Wallet.BalanceRefresh,
		RefreshTimeout: cfg.Wallet.RPCTimeout,
	}, log.Named("app"))
	if err != nil {
		closeAll(closers, log)
		return nil, err
	}

	handler, err := httpapi.NewHandler(application, httpapi.Options{
		Logger:            log.Named("http"),
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RequestsPerSecond: float64(cfg.Limits.RequestsPerSecond),
		Burst:             cfg.Limits.Burst,
		AuditLogPath:      cfg.Server.AuditLogPath,
	})
	if err != nil {
		closeAll(closers, log)
		return nil, err
	}
	closers = append(closers, handler)

	return &Application{
		cfg:     cfg,
		log:     log,
		app:     application,
		handler: handler,
		server: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           handler,
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.Server.WriteTimeout,
		},
		closers: closers,
	}, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *Application) Handler() http.Handler {
	return a.handler
}

// Run starts the services and the HTTP server and blocks until ctx is
// cancelled or the server fails. It shuts everything down before returning.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		a.closeResources()
		return fmt.Errorf("start services: %w", err)
	}

	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		a.shutdown()
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", ln.Addr())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	if err := a.shutdown(); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

func (a *Application) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	if err := a.app.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop services: %w", err))
	}
	a.closeResources()
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *Application) closeResources() {
	closeAll(a.closers, a.log)
	a.closers = nil
}

func closeAll(closers []io.Closer, log *logger.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			log.WithError(err).Warn("error closing resource")
		}
	}
}

// buildStore opens the key-value backend named by cfg.Driver.
func buildStore(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (storage.KeyValueStore, io.Closer, error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "memory", "":
		log.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), nil, nil
	case "sqlite", "postgres":
		store, err := sqlstore.Open(ctx, sqlstore.Options{
			Driver:          driver,
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetime) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		log.WithField("driver", driver).Info("sql storage ready")
		return store, store, nil
	case "redis":
		store, err := redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		log.WithField("addr", cfg.RedisAddr).Info("redis storage ready")
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// buildWallet picks the wallet provider and notifier. Without an RPC URL the
// panel reports no wallet installed.
func buildWallet(cfg config.WalletConfig, log *logger.Logger) (wallet.Provider, wallet.Notifier, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		log.Warn("WALLET_RPC_URL not set; wallet panel reports no provider")
		return wallet.NoProvider{}, nil, nil
	}

	timeout := cfg.RPCTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	provider, err := wallet.NewRPCProvider(&http.Client{Timeout: timeout}, rpcURL, log.Named("wallet-rpc"))
	if err != nil {
		return nil, nil, err
	}

	var notifier wallet.Notifier
	if notifyURL := strings.TrimSpace(cfg.NotifyURL); notifyURL != "" {
		notifier = wallet.NewWSNotifier(notifyURL, log.Named("wallet-notifier"))
	} else {
		log.Warn("WALLET_NOTIFY_URL not set; account changes will not be followed")
	}
	return provider, notifier, nil
}
