package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/roster/pkg/logger"
)

// WSNotifier receives accountsChanged notifications over a WebSocket.
// Messages look like {"method":"accountsChanged","params":["0xabc"]}.
type WSNotifier struct {
	url    string
	dialer websocket.Dialer
	log    *logger.Logger
}

var _ Notifier = (*WSNotifier)(nil)

// NewWSNotifier creates a notifier for the given ws:// or wss:// URL. http
// and https URLs are converted.
func NewWSNotifier(rawURL string, log *logger.Logger) *WSNotifier {
	wsURL := strings.TrimSpace(rawURL)
	if strings.HasPrefix(wsURL, "https") {
		wsURL = "wss" + wsURL[5:]
	} else if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + wsURL[4:]
	}
	if log == nil {
		log = logger.NewDefault("wallet-notifier")
	}
	return &WSNotifier{
		url:    wsURL,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log,
	}
}

// Subscribe dials the endpoint, asks for account notifications and streams
// them until ctx ends or the connection drops.
func (n *WSNotifier) Subscribe(ctx context.Context) (<-chan []string, error) {
	conn, _, err := n.dialer.DialContext(ctx, n.url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	subscribe := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "wallet_subscribe",
		"params":  []string{"accountsChanged"},
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan []string, 1)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					n.log.WithError(err).Warn("wallet notification stream closed")
				}
				return
			}

			accounts, ok := parseAccountsChanged(msg)
			if !ok {
				continue
			}
			select {
			case out <- accounts:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func parseAccountsChanged(msg []byte) ([]string, bool) {
	if !gjson.ValidBytes(msg) {
		return nil, false
	}
	parsed := gjson.ParseBytes(msg)
	if parsed.Get("method").String() != "accountsChanged" {
		return nil, false
	}
	params := parsed.Get("params")
	if !params.IsArray() {
		return nil, false
	}
	accounts := make([]string, 0, len(params.Array()))
	for _, acct := range params.Array() {
		if s := strings.TrimSpace(acct.String()); s != "" {
			accounts = append(accounts, s)
		}
	}
	return accounts, true
}
