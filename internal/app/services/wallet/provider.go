package wallet

import (
	"context"
	"errors"
	"math/big"
)

var (
	// ErrNotInstalled is returned when no wallet provider is configured.
	ErrNotInstalled = errors.New("wallet provider not installed")
	// ErrNoAccounts is returned when the provider exposes no account.
	ErrNoAccounts = errors.New("wallet provider returned no accounts")
)

// Provider is the wallet extension seen from the panel.
type Provider interface {
	// Installed reports whether a provider is present at all.
	Installed() bool
	// Accounts returns the accounts the provider currently exposes.
	Accounts(ctx context.Context) ([]string, error)
	// RequestAccounts asks the provider to connect and returns the
	// authorised accounts.
	RequestAccounts(ctx context.Context) ([]string, error)
	// Balance returns the display balance of account.
	Balance(ctx context.Context, account string) (string, error)
}

// Notifier streams account changes. An empty slice means every account was
// disconnected. The channel is closed when ctx ends or the stream fails.
type Notifier interface {
	Subscribe(ctx context.Context) (<-chan []string, error)
}

// NoProvider is used when no wallet endpoint is configured.
type NoProvider struct{}

func (NoProvider) Installed() bool { return false }

func (NoProvider) Accounts(context.Context) ([]string, error) { return nil, ErrNotInstalled }

func (NoProvider) RequestAccounts(context.Context) ([]string, error) { return nil, ErrNotInstalled }

func (NoProvider) Balance(context.Context, string) (string, error) { return "", ErrNotInstalled }

var weiPerEther = big.NewInt(1_000_000_000_000_000_000)

// FormatEther renders a wei amount as ether with four decimals.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.0000"
	}
	return new(big.Rat).SetFrac(wei, weiPerEther).FloatString(4)
}
