// Package event is the outbound event stream: typed events fanned out to
// best-effort subscribers. A failing or panicking subscriber never blocks or
// crashes delivery to the others.
package event

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Type string

const (
	LoanRequested        Type = "loan_requested"
	LoanCreated          Type = "loan_created"
	LoanRepaid           Type = "loan_repaid"
	LoanClosed           Type = "loan_closed"
	LoanCancelled        Type = "loan_cancelled"
	LoanDefaulted        Type = "loan_defaulted"
	MarginCallTriggered  Type = "margin_call_triggered"
	MarginCallResolved   Type = "margin_call_resolved"
	LiquidationTriggered Type = "liquidation_triggered"
	CollateralAdded      Type = "collateral_added"
	CollateralWithdrawn  Type = "collateral_withdrawn"
	CollateralToppedUp   Type = "collateral_topped_up"
	AlertTriggered       Type = "alert_triggered"
	AssessmentDecided    Type = "assessment_decided"
)

type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	LoanID     string         `json:"loan_id,omitempty"`
	PositionID string         `json:"position_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	At         time.Time      `json:"at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type Handler func(Event)

type Bus struct {
	mu   sync.RWMutex
	subs map[int]Handler
	next int
	log  *zap.Logger
	wg   sync.WaitGroup
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{subs: make(map[int]Handler), log: log}
}

// Subscribe registers a handler and returns an unsubscribe func.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish stamps the event and delivers it to every subscriber on its own
// goroutine. Panics are recovered and logged so one bad subscriber cannot
// take the emitter down.
func (b *Bus) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h := h
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("event subscriber panicked",
						zap.String("event_id", ev.ID),
						zap.String("type", string(ev.Type)),
						zap.Any("panic", r))
				}
			}()
			h(ev)
		}()
	}
}

// Drain waits for in-flight deliveries (shutdown and tests).
func (b *Bus) Drain() { b.wg.Wait() }
