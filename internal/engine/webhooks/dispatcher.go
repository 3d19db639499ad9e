package webhooks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"smartqr/internal/platform/config"
)

const (
	EventScanAllowed = "scan.allowed"
	EventScanDenied  = "scan.denied"
)

type Event struct {
	ID        string      `json:"id"`
	Event     string      `json:"event"`
	Timestamp int64       `json:"timestamp"`
	QRCodeID  string      `json:"qr_code_id"`
	Data      interface{} `json:"data"`
}

// Dispatcher sends fire-and-forget notifications. Failed deliveries are
// logged and not retried.
type Dispatcher struct {
	endpoints []config.WebhookEndpoint
	client    *http.Client
	wg        sync.WaitGroup
}

func NewDispatcher(cfg config.WebhooksConfig) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		endpoints: cfg.Endpoints,
		client:    &http.Client{Timeout: timeout},
	}
}

// Dispatch delivers the event to every endpoint subscribed to eventType.
func (d *Dispatcher) Dispatch(eventType, qrID string, data interface{}) {
	if d == nil {
		return
	}

	event := &Event{
		ID:        "evt_" + uuid.New().String(),
		Event:     eventType,
		Timestamp: time.Now().Unix(),
		QRCodeID:  qrID,
		Data:      data,
	}

	for _, ep := range d.endpoints {
		if !subscribed(ep, eventType) {
			continue
		}
		d.wg.Add(1)
		go func(ep config.WebhookEndpoint) {
			defer d.wg.Done()
			if err := d.deliver(ep, event); err != nil {
				log.Warn().Err(err).Str("url", ep.URL).Str("event", eventType).Msg("Webhook delivery failed")
			}
		}(ep)
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ep config.WebhookEndpoint, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-SmartQR-Signature", Sign(ep.Secret, payload))
	req.Header.Set("X-SmartQR-Event", event.Event)
	req.Header.Set("X-SmartQR-Delivery", event.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// subscribed treats an empty event list as all events.
func subscribed(ep config.WebhookEndpoint, eventType string) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, e := range ep.Events {
		if e == eventType || e == "*" {
			return true
		}
	}
	return false
}
