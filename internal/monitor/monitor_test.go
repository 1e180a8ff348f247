package monitor

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/feshchenko/giftmarket-bot/internal/market"
	"github.com/feshchenko/giftmarket-bot/internal/storage"
)

type fakeSender struct {
	messages []sentMessage
}

type sentMessage struct {
	chatID int64
	text   string
}

func (f *fakeSender) SendNotification(ctx context.Context, chatID int64, text string) error {
	f.messages = append(f.messages, sentMessage{chatID: chatID, text: text})
	return nil
}

func newTestMonitor(t *testing.T) (*Monitor, *Registry, *storage.Storage, *fakeSender) {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := market.New(store, log)
	registry := NewRegistry()
	sender := &fakeSender{}

	return New(registry, svc, sender, time.Millisecond, log), registry, store, sender
}

func seedWorker(t *testing.T, store *storage.Storage, workerID int64, referrals int) {
	t.Helper()

	worker, err := store.GetOrCreateUser(workerID, "worker", "Worker", "", nil)
	require.NoError(t, err)

	for i := 0; i < referrals; i++ {
		_, err := store.GetOrCreateUser(workerID*1000+int64(i), "", "Ref", "", &worker.ID)
		require.NoError(t, err)
	}
}

func TestDiffMessage(t *testing.T) {
	t.Run("increases produce one line per counter", func(t *testing.T) {
		text := diffMessage(
			market.Stats{Referrals: 2, Deposits: 1, Listings: 0},
			market.Stats{Referrals: 3, Deposits: 1, Listings: 2},
		)

		assert.Contains(t, text, "Новый реферал!</b> (+1)")
		assert.Contains(t, text, "Новый листинг на продажу!</b> (+2)")
		assert.NotContains(t, text, "Новая заявка")
		assert.Contains(t, text, "Рефералов: 3")
		assert.Contains(t, text, "Листингов: 2")
	})

	t.Run("no change produces no message", func(t *testing.T) {
		s := market.Stats{Referrals: 2, Deposits: 1, Listings: 3}
		assert.Empty(t, diffMessage(s, s))
	})

	t.Run("decreases alone produce no message", func(t *testing.T) {
		text := diffMessage(
			market.Stats{Deposits: 5},
			market.Stats{Deposits: 4},
		)
		assert.Empty(t, text)
	})

	t.Run("mixed shows only the increases", func(t *testing.T) {
		text := diffMessage(
			market.Stats{Referrals: 1, Deposits: 5},
			market.Stats{Referrals: 2, Deposits: 4},
		)
		assert.Contains(t, text, "Новый реферал!")
		assert.NotContains(t, text, "Новая заявка")
	})
}

func TestPollNotifiesAndRebaselines(t *testing.T) {
	m, registry, store, sender := newTestMonitor(t)
	seedWorker(t, store, 1, 2)

	registry.Register(1, 500, 10, market.Stats{Referrals: 2})

	// New referral and a deposit request appear after registration
	worker, err := store.GetUser(1)
	require.NoError(t, err)
	ref, err := store.GetOrCreateUser(42, "", "New", "", &worker.ID)
	require.NoError(t, err)
	_, err = store.CreateDepositRequest(ref.ID, 10.0, 3000)
	require.NoError(t, err)

	require.NoError(t, m.poll(context.Background()))

	require.Len(t, sender.messages, 1)
	assert.Equal(t, int64(500), sender.messages[0].chatID)
	assert.Contains(t, sender.messages[0].text, "Новый реферал!")
	assert.Contains(t, sender.messages[0].text, "Новая заявка на пополнение!")

	// Baseline moved to the current counters
	session, ok := registry.Get(1)
	require.True(t, ok)
	assert.Equal(t, market.Stats{Referrals: 3, Deposits: 1}, session.LastSeen)

	// Nothing new on the next poll
	require.NoError(t, m.poll(context.Background()))
	assert.Len(t, sender.messages, 1)
}

func TestPollRebaselinesOnDecrease(t *testing.T) {
	m, registry, store, sender := newTestMonitor(t)
	seedWorker(t, store, 1, 2)

	// Baseline claims more referrals than exist; counters went down
	registry.Register(1, 500, 10, market.Stats{Referrals: 5})

	require.NoError(t, m.poll(context.Background()))

	assert.Empty(t, sender.messages, "decreases are never announced")

	session, ok := registry.Get(1)
	require.True(t, ok)
	assert.Equal(t, market.Stats{Referrals: 2}, session.LastSeen,
		"baseline tracks the current counters even without a notification")
}

func TestPollIsolatesWorkers(t *testing.T) {
	m, registry, store, sender := newTestMonitor(t)
	seedWorker(t, store, 1, 1)
	seedWorker(t, store, 2, 0)

	registry.Register(1, 500, 10, market.Stats{Referrals: 1})
	// Worker 2 has no user row at id 2000+, stats recompute still succeeds
	registry.Register(2, 600, 11, market.Stats{})

	worker, err := store.GetUser(1)
	require.NoError(t, err)
	_, err = store.GetOrCreateUser(77, "", "New", "", &worker.ID)
	require.NoError(t, err)

	require.NoError(t, m.poll(context.Background()))

	require.Len(t, sender.messages, 1, "only the worker with changes is notified")
	assert.Equal(t, int64(500), sender.messages[0].chatID)
}

func TestReregistrationResetsBaseline(t *testing.T) {
	m, registry, store, sender := newTestMonitor(t)
	seedWorker(t, store, 1, 3)

	// Stale session from before the referrals existed
	registry.Register(1, 500, 10, market.Stats{})

	// Re-opening the panel registers with the current counters
	registry.Register(1, 500, 11, market.Stats{Referrals: 3})

	require.NoError(t, m.poll(context.Background()))

	assert.Empty(t, sender.messages,
		"changes made before re-registration are not announced")

	session, ok := registry.Get(1)
	require.True(t, ok)
	assert.Equal(t, 11, session.MessageID, "last registration wins")
}

func TestStartStopsOnCancel(t *testing.T) {
	m, _, _, _ := newTestMonitor(t)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Start(ctx, time.Millisecond)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop on context cancellation")
	}
}
