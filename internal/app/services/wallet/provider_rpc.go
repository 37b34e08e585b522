package wallet

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/roster/internal/httputil"
	"github.com/R3E-Network/roster/pkg/logger"
)

// RPCProvider talks Ethereum-style JSON-RPC to a wallet endpoint.
// Reads are retried; eth_requestAccounts is sent once since it may prompt
// the user.
type RPCProvider struct {
	client   *httputil.Client
	once     *httputil.Client
	endpoint string
	log      *logger.Logger
	nextID   atomic.Int64
}

var _ Provider = (*RPCProvider)(nil)

const (
	rpcRetries = 2
	rpcBackoff = 100 * time.Millisecond
)

// NewRPCProvider constructs a provider using the provided endpoint.
func NewRPCProvider(client *http.Client, endpoint string, log *logger.Logger) (*RPCProvider, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("wallet rpc endpoint required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("parse wallet rpc endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("wallet-rpc")
	}
	return &RPCProvider{
		client: httputil.NewClient(httputil.ClientConfig{
			HTTPClient: client,
			BaseURL:    endpoint,
			MaxRetries: rpcRetries,
			Backoff:    rpcBackoff,
		}),
		once:     httputil.NewClient(httputil.ClientConfig{HTTPClient: client, BaseURL: endpoint}),
		endpoint: endpoint,
		log:      log,
	}, nil
}

func (p *RPCProvider) Installed() bool { return true }

func (p *RPCProvider) Accounts(ctx context.Context) ([]string, error) {
	return p.accounts(ctx, p.client, "eth_accounts")
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	return p.accounts(ctx, p.once, "eth_requestAccounts")
}

func (p *RPCProvider) Balance(ctx context.Context, account string) (string, error) {
	result, err := p.call(ctx, p.client, "eth_getBalance", account, "latest")
	if err != nil {
		return "", err
	}
	raw := strings.TrimPrefix(strings.ToLower(result.String()), "0x")
	if raw == "" {
		raw = "0"
	}
	wei, ok := new(big.Int).SetString(raw, 16)
	if !ok {
		return "", fmt.Errorf("eth_getBalance: malformed quantity %q", result.String())
	}
	return FormatEther(wei), nil
}

func (p *RPCProvider) accounts(ctx context.Context, client *httputil.Client, method string) ([]string, error) {
	result, err := p.call(ctx, client, method)
	if err != nil {
		return nil, err
	}
	if !result.IsArray() {
		return nil, fmt.Errorf("%s: expected array result", method)
	}
	accounts := make([]string, 0, len(result.Array()))
	for _, acct := range result.Array() {
		if s := strings.TrimSpace(acct.String()); s != "" {
			accounts = append(accounts, s)
		}
	}
	return accounts, nil
}

func (p *RPCProvider) call(ctx context.Context, client *httputil.Client, method string, params ...any) (gjson.Result, error) {
	if params == nil {
		params = []any{}
	}
	resp, err := client.Post(ctx, "", map[string]any{
		"jsonrpc": "2.0",
		"id":      p.nextID.Add(1),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", method, err)
	}
	payload, err := httputil.ReadResponse(resp, 1<<20)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", method, err)
	}
	if !gjson.ValidBytes(payload) {
		return gjson.Result{}, fmt.Errorf("%s: invalid json response", method)
	}

	parsed := gjson.ParseBytes(payload)
	if rpcErr := parsed.Get("error"); rpcErr.Exists() && rpcErr.Type != gjson.Null {
		return gjson.Result{}, fmt.Errorf("%s: %s (code %d)", method, rpcErr.Get("message").String(), rpcErr.Get("code").Int())
	}
	p.log.Debugf("%s answered", method)
	return parsed.Get("result"), nil
}
