package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	brokerKeyENV      = "BROKER_API_KEY"
	brokerSecretENV   = "BROKER_API_SECRET"
	llmKeyENV         = "LLM_API_KEY"
	telegramTokenENV  = "TELEGRAM_TOKEN"
	journalDSNENV     = "JOURNAL_DB_DSN"
)

// Defaults — per-trade parameters applied when no symbol override exists.
type Defaults struct {
	TakeProfitPct        float64 `yaml:"take_profit_pct"`
	StopLossPct          float64 `yaml:"stop_loss_pct"`
	MinOrderAmount       float64 `yaml:"min_order_amount"` // broker minimum, e.g. 10 USD for crypto
	MaxOrderAmount       float64 `yaml:"max_order_amount"`
	TargetBalancePct     float64 `yaml:"target_balance_pct"`
	LimitOrderExpireDays int     `yaml:"limit_order_expire_days"` // 0 = never
}

// SymbolOverride — optional per-symbol TP/SL/size overrides.
type SymbolOverride struct {
	TakeProfitPct  *float64 `yaml:"take_profit_pct"`
	StopLossPct    *float64 `yaml:"stop_loss_pct"`
	MaxOrderAmount *float64 `yaml:"max_order_amount"`
}

type HFT struct {
	Enabled             bool    `yaml:"enabled"`
	EvaluateEveryQuotes int     `yaml:"evaluate_every_quotes"`
	MinEdgeBps          float64 `yaml:"min_edge_bps"`
	MaxSpreadBps        float64 `yaml:"max_spread_bps"`
	Lookback            int     `yaml:"lookback"`
	TakeProfitBps       float64 `yaml:"take_profit_bps"`
	StopLossBps         float64 `yaml:"stop_loss_bps"`
}

type Hybrid struct {
	GateRefreshQuotes     int `yaml:"gate_refresh_quotes"`
	NoTradeCooldownQuotes int `yaml:"no_trade_cooldown_quotes"`
}

type MicroTrade struct {
	AccountCacheSecs       int     `yaml:"account_cache_secs"`
	AggressionBps          float64 `yaml:"aggression_bps"`
	LimitOrdersExpireDaily bool    `yaml:"limit_orders_expire_daily"`
	CryptoTimeInForce      string  `yaml:"crypto_time_in_force"` // gtc | ioc
}

type Broker struct {
	Name    string `yaml:"name"` // "alpaca"
	Key     string `yaml:"-"`
	Secret  string `yaml:"-"`
	BaseURL string `yaml:"base_url"`
	DataURL string `yaml:"data_url"`
}

type LLM struct {
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"-"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	QueueSize     int    `yaml:"queue_size"`
}

type Journal struct {
	Path  string `yaml:"path"`
	DBDSN string `yaml:"-"`
}

type Telegram struct {
	Token  string `yaml:"-"`
	ChatID int64  `yaml:"chat_id"`
}

type Service struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Config ...
type Config struct {
	TradingMode  string   `yaml:"trading_mode"`  // crypto | stocks
	StrategyMode string   `yaml:"strategy_mode"` // hft | hybrid
	ChatterLevel string   `yaml:"chatter_level"` // low | normal | verbose
	Symbols      []string `yaml:"symbols"`

	Defaults        Defaults                  `yaml:"defaults"`
	SymbolOverrides map[string]SymbolOverride `yaml:"symbol_overrides"`

	HistoryLimit   int `yaml:"history_limit"`
	WarmupMinCount int `yaml:"warmup_min_count"`

	HFT        HFT        `yaml:"hft"`
	Hybrid     Hybrid     `yaml:"hybrid"`
	MicroTrade MicroTrade `yaml:"micro_trade"`

	RateLimitMS         int `yaml:"rate_limit_ms"`
	MaxQuoteAgeMS       int `yaml:"max_quote_age_ms"`
	MaxRecreateAttempts int `yaml:"max_recreate_attempts"`
	RecreateBackoffSecs int `yaml:"recreate_backoff_secs"`
	OrderCheckMS        int `yaml:"order_check_interval_ms"`
	BrokerTimeoutMS     int `yaml:"broker_call_timeout_ms"`
	HeartbeatSecs       int `yaml:"heartbeat_secs"`

	Broker   Broker   `yaml:"broker"`
	LLM      LLM      `yaml:"llm"`
	Journal  Journal  `yaml:"journal"`
	Telegram Telegram `yaml:"telegram"`
	Service  Service  `yaml:"service"`

	Tracing struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"tracing"`
}

func NewConfig() (*Config, error) {
	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	config := defaultConfig()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	// secrets come from the environment only
	config.Broker.Key = os.Getenv(brokerKeyENV)
	config.Broker.Secret = os.Getenv(brokerSecretENV)
	config.LLM.APIKey = os.Getenv(llmKeyENV)
	config.Telegram.Token = os.Getenv(telegramTokenENV)
	config.Journal.DBDSN = os.Getenv(journalDSNENV)

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func defaultConfig() *Config {
	c := &Config{
		TradingMode:  getenvDefault("TRADING_MODE", "crypto"),
		StrategyMode: getenvDefault("STRATEGY_MODE", "hft"),
		ChatterLevel: getenvDefault("CHATTER_LEVEL", "normal"),

		HistoryLimit:   intFromEnv("HISTORY_LIMIT", 50),
		WarmupMinCount: intFromEnv("WARMUP_MIN_COUNT", 10),

		RateLimitMS:         intFromEnv("RATE_LIMIT_MS", 250),
		MaxQuoteAgeMS:       intFromEnv("MAX_QUOTE_AGE_MS", 30_000),
		MaxRecreateAttempts: intFromEnv("MAX_RECREATE_ATTEMPTS", 3),
		RecreateBackoffSecs: intFromEnv("RECREATE_BACKOFF_SECS", 30),
		OrderCheckMS:        intFromEnv("ORDER_CHECK_INTERVAL_MS", 2000),
		BrokerTimeoutMS:     intFromEnv("BROKER_CALL_TIMEOUT_MS", 10_000),
		HeartbeatSecs:       intFromEnv("HEARTBEAT_SECS", 60),
	}
	c.Defaults = Defaults{
		TakeProfitPct:    1.0,
		StopLossPct:      0.5,
		MinOrderAmount:   10,
		MaxOrderAmount:   100,
		TargetBalancePct: 0.10,
	}
	c.HFT = HFT{
		Enabled:             true,
		EvaluateEveryQuotes: 5,
		MinEdgeBps:          5,
		MaxSpreadBps:        50,
		Lookback:            10,
		TakeProfitBps:       100,
		StopLossBps:         50,
	}
	c.Hybrid = Hybrid{
		GateRefreshQuotes:     50,
		NoTradeCooldownQuotes: 100,
	}
	c.MicroTrade = MicroTrade{
		AccountCacheSecs:  15,
		AggressionBps:     2,
		CryptoTimeInForce: "gtc",
	}
	c.LLM = LLM{
		Model:         getenvDefault("LLM_MODEL", "gpt-4o-mini"),
		MaxConcurrent: 3,
		QueueSize:     100,
	}
	c.Journal = Journal{Path: "trades.ndjson"}
	c.Service = Service{Host: "0.0.0.0", Port: 3000}
	return c
}

func (c *Config) validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: symbols list is empty")
	}
	if c.Defaults.MinOrderAmount <= 0 {
		return fmt.Errorf("config: defaults.min_order_amount must be positive")
	}
	if c.Defaults.MaxOrderAmount < c.Defaults.MinOrderAmount {
		return fmt.Errorf("config: defaults.max_order_amount < min_order_amount")
	}
	if c.HFT.Lookback < 2 {
		return fmt.Errorf("config: hft.lookback must be at least 2")
	}
	return nil
}

// SymbolParams resolves effective TP/SL percentages for a symbol.
func (c *Config) SymbolParams(symbol string) (tpPct, slPct float64) {
	tpPct = c.Defaults.TakeProfitPct
	slPct = c.Defaults.StopLossPct
	if ov, ok := c.SymbolOverrides[symbol]; ok {
		if ov.TakeProfitPct != nil {
			tpPct = *ov.TakeProfitPct
		}
		if ov.StopLossPct != nil {
			slPct = *ov.StopLossPct
		}
	}
	return tpPct, slPct
}

// MaxOrderAmount resolves the per-symbol notional cap.
func (c *Config) MaxOrderAmount(symbol string) float64 {
	if ov, ok := c.SymbolOverrides[symbol]; ok && ov.MaxOrderAmount != nil {
		return *ov.MaxOrderAmount
	}
	return c.Defaults.MaxOrderAmount
}

func (c *Config) RateLimit() time.Duration { return time.Duration(c.RateLimitMS) * time.Millisecond }
func (c *Config) MaxQuoteAge() time.Duration {
	return time.Duration(c.MaxQuoteAgeMS) * time.Millisecond
}
func (c *Config) RecreateBackoff() time.Duration {
	return time.Duration(c.RecreateBackoffSecs) * time.Second
}
func (c *Config) OrderCheckInterval() time.Duration {
	return time.Duration(c.OrderCheckMS) * time.Millisecond
}
func (c *Config) BrokerTimeout() time.Duration {
	return time.Duration(c.BrokerTimeoutMS) * time.Millisecond
}
func (c *Config) AccountCacheTTL() time.Duration {
	return time.Duration(c.MicroTrade.AccountCacheSecs) * time.Second
}
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSecs) * time.Second
}
func (c *Config) IsCrypto() bool { return c.TradingMode == "crypto" }
func (c *Config) Verbose() bool  { return c.ChatterLevel == "verbose" }
func (c *Config) LowNoise() bool { return c.ChatterLevel == "low" }

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
