package broker

import (
	"context"
	"time"

	"autohedge/internal/models"
	"autohedge/internal/modules/bus"
	"autohedge/internal/modules/config"
	"autohedge/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// AlpacaStream consumes the Alpaca market-data websocket and fans every
// quote/trade into the market store and the event fabric.
type AlpacaStream struct {
	key      string
	secret   string
	url      string
	sink     QuoteSink
	bus      *bus.Bus
	dialer   *websocket.Dialer
	isCrypto bool
}

func NewAlpacaStream(cfg *config.Config, sink QuoteSink, b *bus.Bus) *AlpacaStream {
	u := cfg.Broker.DataURL
	if u == "" {
		if cfg.IsCrypto() {
			u = "wss://stream.data.alpaca.markets/v1beta3/crypto/us"
		} else {
			u = "wss://stream.data.alpaca.markets/v2/iex"
		}
	}
	return &AlpacaStream{
		key:      cfg.Broker.Key,
		secret:   cfg.Broker.Secret,
		url:      u,
		sink:     sink,
		bus:      b,
		dialer:   websocket.DefaultDialer,
		isCrypto: cfg.IsCrypto(),
	}
}

type wsFrame struct {
	Type      string  `json:"T"`
	Symbol    string  `json:"S"`
	BidPrice  float64 `json:"bp"`
	BidSize   float64 `json:"bs"`
	AskPrice  float64 `json:"ap"`
	AskSize   float64 `json:"as"`
	Price     float64 `json:"p"`
	Size      float64 `json:"s"`
	Timestamp string  `json:"t"`
	Msg       string  `json:"msg"`
}

// Run connects, authenticates, subscribes and pumps frames until the
// context is canceled. Connection loss reconnects after a short pause.
func (s *AlpacaStream) Run(ctx context.Context, symbols []string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		logger.Info("[WS] connecting %s (%d symbols)", s.url, len(symbols))
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			logger.Error("[WS] dial error: %v", err)
			sleepCtx(ctx, time.Second)
			continue
		}

		if err := s.handshake(conn, symbols); err != nil {
			logger.Error("[WS] handshake error: %v", err)
			_ = conn.Close()
			sleepCtx(ctx, time.Second)
			continue
		}
		logger.Info("[WS] connected and subscribed")

		// Close the socket when the context dies so ReadMessage unblocks.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-done:
			}
		}()

		s.pump(conn)
		close(done)
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			sleepCtx(ctx, time.Second)
		}
	}
}

func (s *AlpacaStream) handshake(conn *websocket.Conn, symbols []string) error {
	auth := map[string]string{"action": "auth", "key": s.key, "secret": s.secret}
	if err := conn.WriteJSON(auth); err != nil {
		return err
	}
	sub := map[string]any{
		"action": "subscribe",
		"quotes": symbols,
		"trades": symbols,
	}
	return conn.WriteJSON(sub)
}

func (s *AlpacaStream) pump(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Warn("[WS] read error: %v", err)
			return
		}

		var frames []wsFrame
		if err := sonic.Unmarshal(msg, &frames); err != nil {
			// control messages arrive as single objects
			var one wsFrame
			if err := sonic.Unmarshal(msg, &one); err == nil && one.Type == "error" {
				logger.Error("[WS] stream error: %s", one.Msg)
			}
			continue
		}

		for _, f := range frames {
			s.dispatch(f)
		}
	}
}

func (s *AlpacaStream) dispatch(f wsFrame) {
	ts := parseTimestamp(f.Timestamp)
	switch f.Type {
	case "q":
		if f.BidPrice <= 0 || f.AskPrice <= 0 {
			return
		}
		q := models.Quote{
			Symbol:    f.Symbol,
			Bid:       f.BidPrice,
			Ask:       f.AskPrice,
			BidSize:   f.BidSize,
			AskSize:   f.AskSize,
			Timestamp: ts,
		}
		s.sink.PushQuote(q)
		s.bus.Publish(models.Event{Quote: &q})
	case "t":
		if f.Price <= 0 {
			return
		}
		t := models.Trade{
			Symbol:    f.Symbol,
			Price:     f.Price,
			Size:      f.Size,
			Timestamp: ts,
		}
		s.sink.PushTrade(t)
		s.bus.Publish(models.Event{Trade: &t})
	}
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Now().UTC()
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts
	}
	return time.Now().UTC()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
