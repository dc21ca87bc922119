// Package notify delivers committed ledger events to configured webhooks.
//
// Delivery runs outside every ledger transaction: it tails the event log, so a
// failed or slow receiver can never roll back or delay a settlement. A receiver
// subscribed to claim.resolved gets the outcome feedback for each agent.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"veribond/internal/config"
	"veribond/internal/domain"
	"veribond/internal/metrics"
	"veribond/internal/repo"
)

const (
	defaultInterval = 2 * time.Second
	defaultTimeout  = 5 * time.Second
	defaultBatch    = 100
)

type Dispatcher struct {
	Repo     repo.Repo
	Hooks    []config.WebhookConfig
	Client   *http.Client
	Logger   *slog.Logger
	Interval time.Duration

	mu      sync.Mutex
	cursors map[int]int64
}

// New returns nil when no hook is configured.
func New(r repo.Repo, hooks []config.WebhookConfig, logger *slog.Logger) *Dispatcher {
	if len(hooks) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Repo:     r,
		Hooks:    hooks,
		Client:   &http.Client{Timeout: defaultTimeout},
		Logger:   logger.With("component", "notify"),
		Interval: defaultInterval,
		cursors:  make(map[int]int64),
	}
}

// Run dispatches until ctx ends.
func (d *Dispatcher) Run(ctx context.Context) {
	if d == nil {
		return
	}
	interval := d.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce delivers pending events to every enabled hook. A hook stops at
// its first failed delivery and retries from there on the next pass.
func (d *Dispatcher) DispatchOnce(ctx context.Context) {
	for i, hook := range d.Hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchHook(ctx, i, hook)
	}
}

func (d *Dispatcher) dispatchHook(ctx context.Context, idx int, hook config.WebhookConfig) {
	cursor, err := d.cursorFor(ctx, idx)
	if err != nil {
		d.Logger.Warn("init cursor failed; retrying next pass", "url", hook.URL, "error", err)
		return
	}
	evts, err := d.Repo.EventsAfter(ctx, defaultBatch, cursor)
	if err != nil {
		d.Logger.Warn("fetch events failed", "error", err)
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range evts {
		if !filter.match(evt.Type) {
			d.setCursor(idx, evt.ID)
			continue
		}
		if err := d.post(ctx, hook, evt); err != nil {
			metrics.NotifyFailures.WithLabelValues(hook.URL).Inc()
			d.Logger.Warn("webhook delivery failed", "url", hook.URL, "event_id", evt.ID, "error", err)
			return
		}
		d.setCursor(idx, evt.ID)
	}
}

// cursorFor starts a hook at the current end of the log; only events
// committed after startup are delivered. Nothing is stored until the end of
// the log is known.
func (d *Dispatcher) cursorFor(ctx context.Context, idx int) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursors == nil {
		d.cursors = make(map[int]int64)
	}
	if cur, ok := d.cursors[idx]; ok {
		return cur, nil
	}
	cur, err := d.Repo.LatestEventID(ctx)
	if err != nil {
		return 0, err
	}
	d.cursors[idx] = cur
	return cur, nil
}

func (d *Dispatcher) setCursor(idx int, v int64) {
	d.mu.Lock()
	d.cursors[idx] = v
	d.mu.Unlock()
}

// Delivery is the JSON body posted to a hook.
type Delivery struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (d *Dispatcher) post(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(Delivery{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	timeout := defaultTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.Client
	if client == nil || client.Timeout != timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Veribond-Event", evt.Type)
	req.Header.Set("X-Veribond-Delivery", strconv.FormatInt(evt.ID, 10))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Veribond-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(types []string) eventFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			set[t] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(t string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[t]
	return ok
}
