package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"doclife/internal/config"
	"doclife/internal/repo"
)

const (
	defaultRelayInterval = 2 * time.Second
	defaultRelayTimeout  = 5 * time.Second
	defaultMaxAttempts   = 5
)

// Relay posts pending notification intents from the outbox to the
// configured webhooks and records the outcome on each row.
type Relay struct {
	Repo        repo.Repo
	Webhooks    []config.WebhookConfig
	Logger      *logrus.Entry
	Interval    time.Duration
	MaxAttempts int
	Client      *http.Client
}

func NewRelay(r repo.Repo, hooks []config.WebhookConfig, logger *logrus.Entry) *Relay {
	if logger == nil {
		logger = logrus.WithField("component", "relay")
	}
	return &Relay{
		Repo:        r,
		Webhooks:    hooks,
		Logger:      logger,
		Interval:    defaultRelayInterval,
		MaxAttempts: defaultMaxAttempts,
		Client:      &http.Client{Timeout: defaultRelayTimeout},
	}
}

// Enabled reports whether any webhook would receive deliveries.
func (d *Relay) Enabled() bool {
	return len(d.active()) > 0
}

// Run delivers until ctx is done.
func (d *Relay) Run(ctx context.Context) {
	if !d.Enabled() {
		return
	}
	interval := d.Interval
	if interval <= 0 {
		interval = defaultRelayInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := d.DeliverPending(ctx); err != nil && ctx.Err() == nil {
			d.Logger.WithError(err).Warn("relay: read outbox failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Relay) active() []config.WebhookConfig {
	out := []config.WebhookConfig{}
	for _, hook := range d.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		out = append(out, hook)
	}
	return out
}

// DeliverPending makes one pass over the outbox and returns the number of
// intents marked delivered. An intent is delivered once every matching
// webhook accepted it; intents no webhook subscribes to stay pending.
func (d *Relay) DeliverPending(ctx context.Context) (int, error) {
	entries, err := d.Repo.Outbox(ctx, true, 0)
	if err != nil {
		return 0, err
	}
	hooks := d.active()
	maxAttempts := d.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	delivered := 0
	for _, entry := range entries {
		if entry.Attempts >= maxAttempts {
			continue
		}
		var (
			matched int
			failure error
		)
		for _, hook := range hooks {
			if !newTemplateFilter(hook.Templates).match(entry.Intent.Template) {
				continue
			}
			matched++
			if err := d.post(ctx, hook, entry); err != nil {
				failure = fmt.Errorf("%s: %w", hook.URL, err)
				break
			}
		}
		if matched == 0 {
			continue
		}
		log := d.Logger.WithContext(ctx).WithFields(logrus.Fields{
			"intent":   entry.Intent.ID,
			"template": entry.Intent.Template,
			"attempt":  entry.Attempts + 1,
		})
		if failure != nil {
			log.WithError(failure).Warn("relay: delivery failed")
			if err := d.Repo.Events.MarkFailed(ctx, entry.Intent.ID, failure); err != nil {
				return delivered, err
			}
			continue
		}
		if err := d.Repo.Events.MarkDelivered(ctx, entry.Intent.ID); err != nil {
			return delivered, err
		}
		log.Debug("relay: delivered")
		delivered++
	}
	return delivered, nil
}

type relayBody struct {
	Seq        int64          `json:"seq"`
	ID         string         `json:"id"`
	Template   string         `json:"template"`
	Recipients []string       `json:"recipients"`
	Context    map[string]any `json:"context"`
	CreatedAt  string         `json:"created_at"`
}

func (d *Relay) post(ctx context.Context, hook config.WebhookConfig, entry repo.OutboxEntry) error {
	data, err := json.Marshal(relayBody{
		Seq:        entry.Seq,
		ID:         entry.Intent.ID,
		Template:   entry.Intent.Template,
		Recipients: entry.Intent.Recipients,
		Context:    entry.Intent.Context,
		CreatedAt:  entry.CreatedAt,
	})
	if err != nil {
		return err
	}
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: defaultRelayTimeout}
	}
	if hook.TimeoutSeconds > 0 {
		if timeout := time.Duration(hook.TimeoutSeconds) * time.Second; timeout != client.Timeout {
			client = &http.Client{Timeout: timeout, Transport: client.Transport}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Doclife-Template", entry.Intent.Template)
	req.Header.Set("X-Doclife-Delivery", entry.Intent.ID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Doclife-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type templateFilter struct {
	all bool
	set map[string]struct{}
}

func newTemplateFilter(templates []string) templateFilter {
	set := make(map[string]struct{}, len(templates))
	for _, t := range templates {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return templateFilter{all: true}
	}
	return templateFilter{set: set}
}

func (f templateFilter) match(template string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[template]
	return ok
}
