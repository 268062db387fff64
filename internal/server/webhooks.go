package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"planforge/internal/domain"
	"planforge/internal/engine"
)

const (
	webhookInterval = 2 * time.Second
	webhookTimeout  = 5 * time.Second
	webhookBatch    = 100
)

// webhookDispatcher polls the event log and POSTs new entries to each
// configured URL. Delivery is at-least-once per URL in log order; a failed
// delivery stalls that URL's cursor until the next tick.
type webhookDispatcher struct {
	engine engine.Engine
	urls   []string
	log    logr.Logger
	client *http.Client

	mu      sync.Mutex
	cursors map[int]int64
}

// StartWebhookDispatcher launches the background event forwarder for the
// given URLs. It returns immediately; the dispatcher stops when ctx ends.
// A nil or empty URL list is a no-op.
func StartWebhookDispatcher(ctx context.Context, e engine.Engine, urls []string, log logr.Logger) {
	var cleaned []string
	for _, u := range urls {
		if strings.TrimSpace(u) != "" {
			cleaned = append(cleaned, strings.TrimSpace(u))
		}
	}
	if len(cleaned) == 0 {
		return
	}
	d := &webhookDispatcher{
		engine:  e,
		urls:    cleaned,
		log:     log,
		client:  &http.Client{Timeout: webhookTimeout},
		cursors: make(map[int]int64),
	}
	go d.run(ctx)
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(webhookInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for i, url := range d.urls {
		d.dispatchTo(ctx, i, url)
	}
}

func (d *webhookDispatcher) dispatchTo(ctx context.Context, idx int, url string) {
	cursor := d.cursorFor(ctx, idx)
	events, err := d.engine.Repo.ListEventsAfter(ctx, cursor, webhookBatch)
	if err != nil {
		d.log.Error(err, "webhook: fetch events failed")
		return
	}
	for _, evt := range events {
		if err := d.postEvent(ctx, url, evt); err != nil {
			d.log.Error(err, "webhook: delivery failed", "url", url, "event", evt.ID)
			return
		}
		d.setCursor(idx, evt.ID)
	}
}

// cursorFor lazily initializes each URL's cursor to the current log head so
// restarts do not replay the whole history.
func (d *webhookDispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.engine.Repo.LatestEventID(ctx)
	if err != nil {
		d.log.Error(err, "webhook: init cursor failed")
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *webhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (d *webhookDispatcher) postEvent(ctx context.Context, url string, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Planforge-Event", evt.Type)
	req.Header.Set("X-Planforge-Delivery", fmt.Sprintf("%d", evt.ID))
	res, err := d.client.Do(req)
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
