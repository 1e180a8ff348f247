package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/feshchenko/giftmarket-bot/internal/market"
)

// Sender delivers a notification message to a chat
type Sender interface {
	SendNotification(ctx context.Context, chatID int64, text string) error
}

// Monitor is the background loop that recomputes every registered
// worker's counters and pushes the positive deltas to them.
type Monitor struct {
	registry *Registry
	market   *market.Service
	sender   Sender
	backoff  time.Duration
	log      *slog.Logger
}

// New creates a new Monitor
func New(registry *Registry, svc *market.Service, sender Sender, backoff time.Duration, log *slog.Logger) *Monitor {
	return &Monitor{
		registry: registry,
		market:   svc,
		sender:   sender,
		backoff:  backoff,
		log:      log,
	}
}

// Start runs the notification loop until ctx is cancelled. Started once
// from main; per-worker failures never stop the loop.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	m.log.Info("worker monitor started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.poll(ctx); err != nil {
				m.log.Error("poll workers", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(m.backoff):
				}
			}
		}
	}
}

func (m *Monitor) poll(ctx context.Context) error {
	for workerID, session := range m.registry.Snapshot() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		current, err := m.market.Stats(workerID)
		if err != nil {
			m.log.Error("recompute worker stats", "worker_id", workerID, "error", err)
			continue
		}

		if text := diffMessage(session.LastSeen, current); text != "" {
			if err := m.sender.SendNotification(ctx, session.ChatID, text); err != nil {
				m.log.Error("send worker notification", "worker_id", workerID, "error", err)
			}
		}

		// The baseline moves even when nothing was announced, so settled
		// requests silently lower the pending counters
		m.registry.SetLastSeen(workerID, current)
	}

	return nil
}

// diffMessage renders the positive counter deltas plus the absolute
// counts, or "" when there is nothing to announce
func diffMessage(last, current market.Stats) string {
	var lines []string

	if d := current.Referrals - last.Referrals; d > 0 {
		lines = append(lines, fmt.Sprintf("🎉 <b>Новый реферал!</b> (+%d)", d))
	}
	if d := current.Deposits - last.Deposits; d > 0 {
		lines = append(lines, fmt.Sprintf("💰 <b>Новая заявка на пополнение!</b> (+%d)", d))
	}
	if d := current.Listings - last.Listings; d > 0 {
		lines = append(lines, fmt.Sprintf("🛍️ <b>Новый листинг на продажу!</b> (+%d)", d))
	}

	if len(lines) == 0 {
		return ""
	}

	lines = append(lines,
		"",
		"📊 <b>Текущая статистика:</b>",
		fmt.Sprintf("👥 Рефералов: %d", current.Referrals),
		fmt.Sprintf("💰 Заявок: %d", current.Deposits),
		fmt.Sprintf("🛍️ Листингов: %d", current.Listings),
	)

	return strings.Join(lines, "\n")
}
