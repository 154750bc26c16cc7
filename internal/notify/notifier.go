package notify

import (
	"context"
	"fmt"

	"autohedge/internal/models"
	"autohedge/internal/modules/bus"
	"autohedge/internal/modules/config"
	"autohedge/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Telegram is a passive notifier: it mirrors order and close events to
// one chat and never blocks the trading path.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

// NewTelegram degrades to a nil-safe no-op when no token is configured.
func NewTelegram(cfg *config.Config) (*Telegram, error) {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		return &Telegram{}, nil
	}
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: cfg.Telegram.ChatID}, nil
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	_, _ = t.bot.Send(tgbot.NewMessage(t.chatID, msg))
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Watch relays fabric events until the context is canceled. Dropped
// events are acceptable here; the bus already counts them.
func (t *Telegram) Watch(ctx context.Context, b *bus.Bus) {
	if t == nil || t.bot == nil {
		return
	}
	sub := b.Subscribe("notify", 128)
	defer b.Unsubscribe(sub)
	logger.Info("[NOTIFY] telegram relay running")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			t.relay(ev)
		}
	}
}

func (t *Telegram) relay(ev models.Event) {
	switch {
	case ev.Order != nil:
		o := ev.Order
		t.Sendf("📥 %s %s qty=%.6f @ %.4f", o.Action, o.Symbol, o.Qty, o.LimitPrice)
	case ev.Execution != nil:
		x := ev.Execution
		t.Sendf("📤 %s %s %s qty=%.6f @ %.4f", x.Side, x.Symbol, x.Status, x.Qty, x.Price)
	}
}
