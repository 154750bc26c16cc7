package strategy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"autohedge/internal/models"
	"autohedge/internal/modules/config"
	"autohedge/internal/modules/llm"
	"autohedge/pkg/logger"
)

const gateSystemPrompt = "You are a risk gate for a momentum scalping bot. " +
	"Given recent mid prices, answer with exactly one word: YES if short-term " +
	"entries are favorable, NO otherwise."

// Asker is the slice of the LLM queue the gate needs.
type Asker interface {
	Ask(ctx context.Context, prio llm.Priority, system, prompt string) (string, error)
}

type gateSymbol struct {
	open         bool
	sinceRefresh int
	inFlight     bool
	pendingNo    bool
}

// LLMGate periodically asks the model whether entries are favorable.
// Anything but a clean "yes" closes the gate; a failed or overflowing
// request counts as unknown and is treated as closed.
type LLMGate struct {
	cfg   *config.Config
	asker Asker

	mu     sync.Mutex
	states map[string]*gateSymbol
}

func NewLLMGate(cfg *config.Config, queue *llm.Queue) *LLMGate {
	return newLLMGate(cfg, queue)
}

func newLLMGate(cfg *config.Config, asker Asker) *LLMGate {
	return &LLMGate{cfg: cfg, asker: asker, states: make(map[string]*gateSymbol)}
}

func (g *LLMGate) state(symbol string) *gateSymbol {
	st, ok := g.states[symbol]
	if !ok {
		st = &gateSymbol{}
		g.states[symbol] = st
	}
	return st
}

// Tick counts quotes and launches a deferred refresh when the cadence is
// due. The refresh never blocks the quote path.
func (g *LLMGate) Tick(symbol string, recent []models.Quote) {
	g.mu.Lock()
	st := g.state(symbol)
	st.sinceRefresh++
	due := st.sinceRefresh >= g.cfg.Hybrid.GateRefreshQuotes && !st.inFlight
	if due {
		st.sinceRefresh = 0
		st.inFlight = true
	}
	g.mu.Unlock()

	if due {
		go g.refresh(symbol, recent)
	}
}

func (g *LLMGate) refresh(symbol string, recent []models.Quote) {
	answer, err := g.asker.Ask(context.Background(), llm.PriorityNormal, gateSystemPrompt, gatePrompt(symbol, recent))

	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.state(symbol)
	st.inFlight = false

	if err != nil {
		// includes ErrQueueFull: unknown means closed
		logger.Warn("[GATE] %s: refresh failed, closing gate: %v", symbol, err)
		st.open = false
		return
	}

	yes := strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "yes")
	st.open = yes
	if !yes {
		st.pendingNo = true
	}
	logger.Info("[GATE] %s: open=%v", symbol, yes)
}

// Open reports the gate state and, once per "no" answer, demands a
// trading cooldown.
func (g *LLMGate) Open(symbol string) (bool, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.state(symbol)
	cooldown := 0
	if st.pendingNo {
		st.pendingNo = false
		cooldown = g.cfg.Hybrid.NoTradeCooldownQuotes
	}
	return st.open, cooldown
}

func gatePrompt(symbol string, recent []models.Quote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol %s, last %d mids:", symbol, len(recent))
	for _, q := range recent {
		fmt.Fprintf(&b, " %.6f", q.Mid())
	}
	return b.String()
}
