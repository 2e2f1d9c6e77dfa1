// Package notify implements the notification manager (spec §4.7, C8):
// four-tier routing over a single outbound SMS transport, with a daily
// budget, quiet-hours queueing, and batch flushing. Modeled on the
// teacher's pkg/ratelimit + infrastructure/messaging dispatch pattern,
// generalized from blockchain event broadcast to a tiered human-facing
// alert channel, and paced with the teacher's golang.org/x/time/rate
// dependency rather than a hand-rolled token bucket.
package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/orchestratord/orchestratord/internal/config"
	"github.com/orchestratord/orchestratord/internal/obslog"
)

// Tier is the notification priority (spec §4.7).
type Tier int

const (
	TierURGENT  Tier = 1
	TierACTION  Tier = 2
	TierSUMMARY Tier = 3
	TierDEBUG   Tier = 4
)

const batchPayloadLimit = 1500

// Transport is the raw outbound SMS channel. Out of scope per spec §1
// ("the SMS transport itself, including a specific messaging API");
// callers supply a concrete implementation (e.g. a chat-DB-backed OS
// bridge script).
type Transport interface {
	Send(ctx context.Context, text string) error
}

// Clock is overridable for tests.
type Clock func() time.Time

// Manager routes notifications by tier, enforcing budget and quiet
// hours, and owns the batch queue for tier-3 messages.
type Manager struct {
	mu   sync.Mutex
	cfg  config.Notifications
	qh   config.QuietHours
	tx   Transport
	log  *obslog.Logger
	now  Clock
	limiter *rate.Limiter

	sentToday      int
	budgetDayKey   string
	warnedAt80Pct  bool

	quietQueue []string // tier-2 messages queued during quiet hours
	batchQueue []string // tier-3 messages awaiting flush
	lastFlush  time.Time

	metrics MetricsRecorder
}

// MetricsRecorder is the narrow hook internal/metrics.Recorder satisfies
// structurally; nil is a valid no-op recorder.
type MetricsRecorder interface {
	NotificationSent(tier string)
	NotificationQueued(tier string)
}

// SetMetrics installs an optional metrics recorder.
func (m *Manager) SetMetrics(r MetricsRecorder) { m.metrics = r }

func tierLabel(tier Tier) string {
	switch tier {
	case TierURGENT:
		return "urgent"
	case TierACTION:
		return "action"
	case TierSUMMARY:
		return "summary"
	case TierDEBUG:
		return "debug"
	default:
		return "unknown"
	}
}

// QuietHoursNow reports whether the configured quiet-hours window
// currently applies, so the supervisor's think-loop can skip a cycle
// rather than generate recommendations that would only end up queued
// (spec §4.10).
func (m *Manager) QuietHoursNow() bool {
	return m.inQuietHours()
}

// NewManager builds a Manager. The rate limiter paces outbound sends at
// one per 500ms to avoid hammering the transport during a burst of
// batched/quiet-queue flushes.
func NewManager(cfg config.Notifications, qh config.QuietHours, tx Transport, log *obslog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		qh:      qh,
		tx:      tx,
		log:     log,
		now:     time.Now,
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

// Send routes text at the given tier.
func (m *Manager) Send(ctx context.Context, tier Tier, text string) error {
	m.mu.Lock()
	m.rollBudgetLocked()
	m.mu.Unlock()

	switch tier {
	case TierDEBUG:
		if m.log != nil {
			m.log.WithField("tier", "debug").Info(text)
		}
		return nil
	case TierURGENT:
		err := m.sendNow(ctx, text, true)
		if err == nil && m.metrics != nil {
			m.metrics.NotificationSent(tierLabel(tier))
		}
		return err
	case TierACTION:
		return m.routeAction(ctx, text)
	case TierSUMMARY:
		m.enqueueBatch(text)
		if m.metrics != nil {
			m.metrics.NotificationQueued(tierLabel(tier))
		}
		return m.maybeFlushBatch(ctx)
	default:
		return m.routeAction(ctx, text)
	}
}

func (m *Manager) routeAction(ctx context.Context, text string) error {
	m.mu.Lock()
	budgetExhausted := m.sentToday >= m.dailyBudget()
	m.mu.Unlock()

	if budgetExhausted {
		m.enqueueBatch(text)
		if m.metrics != nil {
			m.metrics.NotificationQueued(tierLabel(TierACTION))
		}
		return nil
	}

	if m.inQuietHours() {
		m.mu.Lock()
		m.quietQueue = append(m.quietQueue, text)
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.NotificationQueued(tierLabel(TierACTION))
		}
		return nil
	}
	err := m.sendNow(ctx, text, false)
	if err == nil && m.metrics != nil {
		m.metrics.NotificationSent(tierLabel(TierACTION))
	}
	return err
}

func (m *Manager) sendNow(ctx context.Context, text string, urgent bool) error {
	if !urgent {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	piggyback := m.drainBatchForPiggyback()
	if piggyback != "" {
		text = text + "\n---\n" + truncate(piggyback, batchPayloadLimit)
	}

	if err := m.tx.Send(ctx, text); err != nil {
		return err
	}

	m.mu.Lock()
	if !urgent {
		m.sentToday++
		m.maybeWarnBudgetLocked()
	}
	m.mu.Unlock()
	return nil
}

// FlushQuietQueue sends everything queued during quiet hours, called
// once quiet hours end (spec §4.7 "queue-for-wake during quiet").
func (m *Manager) FlushQuietQueue(ctx context.Context) error {
	m.mu.Lock()
	pending := m.quietQueue
	m.quietQueue = nil
	m.mu.Unlock()

	for _, text := range pending {
		if err := m.sendNow(ctx, text, false); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) enqueueBatch(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchQueue = append(m.batchQueue, text)
}

func (m *Manager) drainBatchForPiggyback() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.batchQueue) == 0 {
		return ""
	}
	joined := strings.Join(m.batchQueue, "; ")
	m.batchQueue = nil
	m.lastFlush = m.now()
	return joined
}

// maybeFlushBatch flushes the batch queue if batchIntervalMs has
// elapsed since the last flush (spec §4.7).
func (m *Manager) maybeFlushBatch(ctx context.Context) error {
	m.mu.Lock()
	interval := time.Duration(m.cfg.BatchIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 4 * time.Hour
	}
	due := m.now().Sub(m.lastFlush) >= interval && len(m.batchQueue) > 0
	m.mu.Unlock()

	if !due {
		return nil
	}
	batch := m.drainBatchForPiggyback()
	if batch == "" {
		return nil
	}
	return m.sendNow(ctx, truncate(batch, batchPayloadLimit), false)
}

func (m *Manager) inQuietHours() bool {
	loc, err := time.LoadLocation(m.qh.Timezone)
	if err != nil {
		loc = time.Local
	}
	now := m.now().In(loc)
	start, errS := time.ParseInLocation("15:04", m.qh.Start, loc)
	end, errE := time.ParseInLocation("15:04", m.qh.End, loc)
	if errS != nil || errE != nil {
		return false
	}
	nowMin := now.Hour()*60 + now.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	if startMin <= endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	// wraps midnight
	return nowMin >= startMin || nowMin < endMin
}

func (m *Manager) dailyBudget() int {
	if m.cfg.DailyBudget <= 0 {
		return 20
	}
	return m.cfg.DailyBudget
}

func (m *Manager) rollBudgetLocked() {
	key := m.now().Format("2006-01-02")
	if key != m.budgetDayKey {
		m.budgetDayKey = key
		m.sentToday = 0
		m.warnedAt80Pct = false
	}
}

func (m *Manager) maybeWarnBudgetLocked() {
	if m.warnedAt80Pct {
		return
	}
	budget := m.dailyBudget()
	if budget > 0 && float64(m.sentToday)/float64(budget) >= 0.8 {
		m.warnedAt80Pct = true
		if m.log != nil {
			m.log.WithField("sentToday", m.sentToday).WithField("budget", budget).Warn("notification daily budget 80% utilized")
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
