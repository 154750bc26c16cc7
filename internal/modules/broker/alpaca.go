package broker

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"autohedge/internal/modules/config"
	"autohedge/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
)

// alpacaInsufficientBalanceCode — Alpaca rejects oversized sells with this
// code inside a 403 body.
const alpacaInsufficientBalanceCode = "40310000"

// Alpaca implements API over the Alpaca trading REST surface.
type Alpaca struct {
	key     string
	secret  string
	baseURL string
	http    *http.Client
}

func NewAlpaca(cfg *config.Config) *Alpaca {
	base := cfg.Broker.BaseURL
	if base == "" {
		base = "https://paper-api.alpaca.markets"
	}
	return &Alpaca{
		key:     cfg.Broker.Key,
		secret:  cfg.Broker.Secret,
		baseURL: base,
		http:    &http.Client{Timeout: cfg.BrokerTimeout()},
	}
}

func (c *Alpaca) Name() string { return "alpaca" }

func (c *Alpaca) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "alpaca."+method+path)
	defer span.Finish()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("APCA-API-KEY-ID", c.key)
	req.Header.Set("APCA-API-SECRET-KEY", c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, errors.Wrap(err, "http do")
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	span.SetTag("http.status_code", resp.StatusCode)
	return resp.StatusCode, rb, nil
}

type alpacaAccount struct {
	BuyingPower string `json:"buying_power"`
	Cash        string `json:"cash"`
}

func (c *Alpaca) GetAccount(ctx context.Context) (AccountSummary, error) {
	code, rb, err := c.do(ctx, http.MethodGet, "/v2/account", nil)
	if err != nil {
		return AccountSummary{}, err
	}
	if code/100 != 2 {
		return AccountSummary{}, errors.Errorf("get account: http %d: %s", code, rb)
	}

	var a alpacaAccount
	if err := sonic.Unmarshal(rb, &a); err != nil {
		return AccountSummary{}, errors.Wrap(err, "decode account")
	}
	bp, _ := strconv.ParseFloat(a.BuyingPower, 64)
	cash, _ := strconv.ParseFloat(a.Cash, 64)
	return AccountSummary{BuyingPower: bp, Cash: cash}, nil
}

func (c *Alpaca) GetPositions(ctx context.Context) ([]Holding, error) {
	code, rb, err := c.do(ctx, http.MethodGet, "/v2/positions", nil)
	if err != nil {
		return nil, err
	}
	if code/100 != 2 {
		return nil, errors.Errorf("get positions: http %d: %s", code, rb)
	}

	var raw []map[string]any
	if err := sonic.Unmarshal(rb, &raw); err != nil {
		return nil, errors.Wrap(err, "decode positions")
	}

	out := make([]Holding, 0, len(raw))
	for _, p := range raw {
		sym, _ := p["symbol"].(string)
		if sym == "" {
			continue
		}
		out = append(out, Holding{
			Symbol:        sym,
			Qty:           flexFloat(p["qty"]),
			AvgEntryPrice: flexFloat(p["avg_entry_price"]),
		})
	}
	return out, nil
}

func (c *Alpaca) SubmitOrder(ctx context.Context, req PlaceOrderRequest) (OrderAck, error) {
	body := map[string]string{
		"symbol":        req.Symbol,
		"side":          string(req.Side),
		"type":          string(req.OrderType),
		"time_in_force": string(req.TimeInForce),
		"qty":           strconv.FormatFloat(req.Qty, 'f', -1, 64),
	}
	if req.OrderType == Limit {
		body["limit_price"] = strconv.FormatFloat(req.LimitPrice, 'f', -1, 64)
	}

	payload, err := sonic.Marshal(body)
	if err != nil {
		return OrderAck{}, errors.Wrap(err, "marshal order")
	}

	code, rb, err := c.do(ctx, http.MethodPost, "/v2/orders", payload)
	if err != nil {
		return OrderAck{}, err
	}
	if code/100 != 2 {
		if code == http.StatusForbidden && bytes.Contains(rb, []byte(alpacaInsufficientBalanceCode)) {
			return OrderAck{}, errors.Wrapf(ErrInsufficientBalance, "http %d: %s", code, rb)
		}
		return OrderAck{}, errors.Errorf("submit order: http %d: %s", code, rb)
	}

	return decodeAck(rb)
}

func (c *Alpaca) GetOrder(ctx context.Context, orderID string) (OrderAck, error) {
	code, rb, err := c.do(ctx, http.MethodGet, "/v2/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return OrderAck{}, err
	}
	if code == http.StatusNotFound {
		return OrderAck{}, errors.Wrapf(ErrNotFound, "order %s", orderID)
	}
	if code/100 != 2 {
		return OrderAck{}, errors.Errorf("get order: http %d: %s", code, rb)
	}
	return decodeAck(rb)
}

func (c *Alpaca) CancelOrder(ctx context.Context, orderID string) error {
	code, rb, err := c.do(ctx, http.MethodDelete, "/v2/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return err
	}
	switch {
	case code == http.StatusNotFound:
		return errors.Wrapf(ErrNotFound, "order %s", orderID)
	case code/100 != 2 && code != http.StatusNoContent:
		return errors.Errorf("cancel order: http %d: %s", code, rb)
	}
	return nil
}

func decodeAck(rb []byte) (OrderAck, error) {
	var raw map[string]any
	if err := sonic.Unmarshal(rb, &raw); err != nil {
		return OrderAck{}, errors.Wrap(err, "decode order ack")
	}
	id, _ := raw["id"].(string)
	status, _ := raw["status"].(string)
	if id == "" {
		logger.Warn("[BROKER] order ack without id: %s", truncate(string(rb), 256))
	}
	return OrderAck{ID: id, Status: status, Raw: raw}, nil
}

// flexFloat parses broker numerics that arrive as strings or numbers.
func flexFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

