package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/bus"
	"github.com/aman-zulfiqar/solana-amm-client/internal/constants"
	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WatcherConfig holds configuration for the account watcher
type WatcherConfig struct {
	URL          string
	Commitment   string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	Dialer       *websocket.Dialer
	Logger       *logrus.Logger
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wsMessage struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *wsError        `json:"error"`
	Method string          `json:"method"`
	Params *struct {
		Subscription uint64 `json:"subscription"`
	} `json:"params"`
}

// AccountWatcher subscribes to holders' token accounts over the RPC
// websocket and publishes a holder-scoped bus event on every change.
type AccountWatcher struct {
	cfg    WatcherConfig
	bus    *bus.Bus
	logger *logrus.Logger

	mu       sync.Mutex
	accounts map[solana.PublicKey]solana.PublicKey // account -> holder
	subs     map[uint64]solana.PublicKey           // subscription -> holder
	pending  map[uint64]solana.PublicKey           // request id -> account
	nextID   uint64
	conn     *websocket.Conn
	running  bool

	writeMu sync.Mutex
}

func NewAccountWatcher(cfg WatcherConfig, b *bus.Bus) *AccountWatcher {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	if cfg.ReconnectMin == 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &AccountWatcher{
		cfg:      cfg,
		bus:      b,
		logger:   cfg.Logger,
		accounts: make(map[solana.PublicKey]solana.PublicKey),
		subs:     make(map[uint64]solana.PublicKey),
		pending:  make(map[uint64]solana.PublicKey),
	}
}

// Watch follows accounts on behalf of holder. Accounts added while connected
// are subscribed immediately; the rest on the next connection.
func (w *AccountWatcher) Watch(holder solana.PublicKey, accounts ...solana.PublicKey) {
	w.mu.Lock()
	var fresh []solana.PublicKey
	for _, a := range accounts {
		if _, ok := w.accounts[a]; !ok {
			fresh = append(fresh, a)
		}
		w.accounts[a] = holder
	}
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return
	}
	for _, a := range fresh {
		if err := w.subscribe(conn, a); err != nil {
			w.logger.WithError(err).WithField("account", a.String()).Warn("account subscribe failed")
		}
	}
}

// Unwatch stops publishing events for holder.
func (w *AccountWatcher) Unwatch(holder solana.PublicKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for a, h := range w.accounts {
		if h == holder {
			delete(w.accounts, a)
		}
	}
	for id, h := range w.subs {
		if h == holder {
			delete(w.subs, id)
		}
	}
}

// Run keeps a websocket session open until ctx is done, reconnecting with
// exponential backoff.
func (w *AccountWatcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	w.logger.WithField("url", w.cfg.URL).Info("starting account watcher")

	backoff := w.cfg.ReconnectMin
	for {
		connected, err := w.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = w.cfg.ReconnectMin
		}
		w.logger.WithError(err).WithField("retry_in", backoff).Warn("account watcher disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, w.cfg.ReconnectMax)
	}
}

func (w *AccountWatcher) session(ctx context.Context) (bool, error) {
	conn, _, err := w.cfg.Dialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("websocket dial: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.subs = make(map[uint64]solana.PublicKey)
	w.pending = make(map[uint64]solana.PublicKey)
	accounts := make([]solana.PublicKey, 0, len(w.accounts))
	for a := range w.accounts {
		accounts = append(accounts, a)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	defer func() {
		close(done)
		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
		_ = conn.Close()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for _, a := range accounts {
		if err := w.subscribe(conn, a); err != nil {
			return true, err
		}
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return true, fmt.Errorf("websocket read: %w", err)
		}
		w.dispatch(msg)
	}
}

func (w *AccountWatcher) subscribe(conn *websocket.Conn, account solana.PublicKey) error {
	w.mu.Lock()
	w.nextID++
	id := w.nextID
	w.pending[id] = account
	w.mu.Unlock()

	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "accountSubscribe",
		"params": []interface{}{
			account.String(),
			map[string]interface{}{
				"encoding":   "base64",
				"commitment": w.cfg.Commitment,
			},
		},
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("subscribe %s: %w", account, err)
	}
	return nil
}

func (w *AccountWatcher) dispatch(msg wsMessage) {
	if msg.ID != nil {
		w.mu.Lock()
		account, ok := w.pending[*msg.ID]
		delete(w.pending, *msg.ID)
		holder, watched := w.accounts[account]
		w.mu.Unlock()
		if !ok {
			return
		}
		if msg.Error != nil {
			w.logger.WithFields(logrus.Fields{
				"account": account.String(),
				"code":    msg.Error.Code,
			}).Warn("account subscribe rejected: " + msg.Error.Message)
			return
		}
		var subID uint64
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			w.logger.WithError(err).Warn("unexpected subscribe response")
			return
		}
		if watched {
			w.mu.Lock()
			w.subs[subID] = holder
			w.mu.Unlock()
		}
		return
	}

	if msg.Method != "accountNotification" || msg.Params == nil {
		return
	}
	w.mu.Lock()
	holder, ok := w.subs[msg.Params.Subscription]
	w.mu.Unlock()
	if !ok {
		return
	}
	w.bus.Publish(bus.Event{Source: constants.SourceAccountWatch, Holder: holder})
}
