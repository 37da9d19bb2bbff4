package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"crucible/internal/config"
)

const userAgent = "Crucible-Go/0.1.0"

// Event names a notification.
type Event string

const (
	EventRunStarted   Event = "run_started"
	EventRunCompleted Event = "run_completed"
	EventUnitFailed   Event = "unit_failed"
	EventError        Event = "error"
	EventTest         Event = "test"
)

// Payload carries event fields. Keys are documented on each formatter.
type Payload map[string]any

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case time.Duration:
		return formatDuration(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) num(key string) int {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

// Service defines the notification surface exposed to the orchestrator.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventRunStarted:   cfg.Notifications.RunStart,
			EventRunCompleted: cfg.Notifications.RunComplete,
			EventUnitFailed:   cfg.Notifications.UnitFailures,
			EventError:        cfg.Notifications.Errors,
			EventTest:         true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

// format renders an event. Keys used:
//
//	run_started:   experiment, pending, total
//	run_completed: experiment, completed, failed, manual_review, duration
//	unit_failed:   test_id, kind, error
//	error:         context, error
func format(event Event, p Payload) (message, bool) {
	switch event {
	case EventRunStarted:
		return message{
			title: "Crucible - Run Started",
			body:  fmt.Sprintf("🧪 %s: %d of %d units to run", p.str("experiment"), p.num("pending"), p.num("total")),
			tags:  []string{"crucible", "run", "started"},
		}, true
	case EventRunCompleted:
		failed := p.num("failed")
		title := "Crucible - Run Complete"
		if failed > 0 {
			title = "Crucible - Run Complete (with failures)"
		}
		body := fmt.Sprintf("✅ %s: %d completed, %d failed", p.str("experiment"), p.num("completed"), failed)
		if review := p.num("manual_review"); review > 0 {
			body += fmt.Sprintf(", %d need manual review", review)
		}
		if d := p.str("duration"); d != "" {
			body += " in " + d
		}
		return message{
			title: title,
			body:  body,
			tags:  []string{"crucible", "run", "completed"},
		}, true
	case EventUnitFailed:
		body := fmt.Sprintf("❌ %s failed", p.str("test_id"))
		if kind := p.str("kind"); kind != "" {
			body += " (" + kind + ")"
		}
		if errText := p.str("error"); errText != "" {
			body += ": " + errText
		}
		return message{
			title:    "Crucible - Unit Failed",
			body:     body,
			tags:     []string{"crucible", "unit", "failed"},
			priority: "high",
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("❌ Error")
		if label := p.str("context"); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if errText := p.str("error"); errText != "" {
			b.WriteString(errText)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "Crucible - Error",
			body:     b.String(),
			tags:     []string{"crucible", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Crucible - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"crucible", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
