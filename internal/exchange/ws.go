package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"perp-engine/internal/feed"
	"perp-engine/pkg/types"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
)

// MarketFeed subscribes to the venue's public market-data channel and
// pushes L2 snapshots and trade prints directly into a feed.Manager.
// It auto-reconnects with exponential backoff (1s to 30s) and
// re-subscribes to the full symbol universe on every reconnect.
type MarketFeed struct {
	url     string
	symbols []string
	manager *feed.Manager
	logger  *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn
}

// NewMarketFeed constructs a MarketFeed wired to manager.
func NewMarketFeed(wsURL string, symbols []string, manager *feed.Manager, logger *slog.Logger) *MarketFeed {
	return &MarketFeed{
		url:     wsURL,
		symbols: symbols,
		manager: manager,
		logger:  logger.With("component", "ws_market"),
	}
}

// Run connects and maintains the connection with auto-reconnect. Blocks
// until ctx is cancelled.
func (f *MarketFeed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("market feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (f *MarketFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.subscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.logger.Info("market feed connected", "symbols", f.symbols)

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.dispatch(msg)
	}
}

func (f *MarketFeed) subscribe() error {
	return f.writeJSON(wsSubscribeMsg{Operation: "subscribe", Symbols: f.symbols})
}

func (f *MarketFeed) dispatch(data []byte) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Debug("ignoring non-json ws message")
		return
	}

	switch envelope.EventType {
	case "book":
		var evt wsBookEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Error("unmarshal book event", "error", err)
			return
		}
		f.manager.OnBookSnapshot(evt.Symbol, toLevels(evt.Bids), toLevels(evt.Asks))

	case "trade":
		var evt wsTradeEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Error("unmarshal trade event", "error", err)
			return
		}
		price, _ := decimal.NewFromString(evt.Price)
		size, _ := decimal.NewFromString(evt.Size)
		f.manager.OnTrade(types.Trade{
			Symbol:      evt.Symbol,
			Side:        feed.NormalizeSide(evt.Side),
			Price:       price,
			Size:        size,
			TimestampMs: evt.TimestampMs,
		})

	default:
		f.logger.Debug("ignoring ws event", "type", envelope.EventType)
	}
}

func toLevels(dtos []levelDTO) []types.Level {
	out := make([]types.Level, 0, len(dtos))
	for _, l := range dtos {
		price, _ := decimal.NewFromString(l.Price)
		size, _ := decimal.NewFromString(l.Size)
		out = append(out, types.Level{Price: price, Size: size})
	}
	return out
}

func (f *MarketFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.PingMessage, nil); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *MarketFeed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("market feed not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *MarketFeed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("market feed not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}

// Close closes the underlying connection, if any.
func (f *MarketFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}
