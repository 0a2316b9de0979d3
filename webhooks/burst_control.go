package webhooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type BurstMode string

const (
	BurstModeNone     BurstMode = "none"
	BurstModeCoalesce BurstMode = "coalesce"
	BurstModeDebounce BurstMode = "debounce"

	DefaultBurstWindow     = 2 * time.Second
	DefaultBurstMaxEntries = 4096
)

// ParseBurstMode maps a config value onto a BurstMode. Empty means none.
func ParseBurstMode(value string) (BurstMode, error) {
	switch mode := BurstMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case "", BurstModeNone:
		return BurstModeNone, nil
	case BurstModeCoalesce, BurstModeDebounce:
		return mode, nil
	default:
		return BurstModeNone, fmt.Errorf("webhooks: unknown burst mode %q", value)
	}
}

type BurstDecision struct {
	Allow    bool
	Metadata map[string]any
}

type BurstController interface {
	Allow(ctx context.Context, event Event) (BurstDecision, error)
}

// BurstReleaser is implemented by controllers that can forget a key, so a
// resend after a failed delivery is not suppressed.
type BurstReleaser interface {
	Release(ctx context.Context, event Event)
}

// BurstKeyExtractor returns false when an event should bypass burst control.
type BurstKeyExtractor func(event Event) (string, bool)

type BurstOptions struct {
	Mode       BurstMode
	Window     time.Duration
	MaxEntries int
	ExtractKey BurstKeyExtractor
	Now        func() time.Time
}

// WindowBurstController suppresses repeated events for a key inside a window.
// Coalesce anchors the window on the first event. Debounce moves it forward
// on every event, so a steady stream stays suppressed.
type WindowBurstController struct {
	opts BurstOptions

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewBurstController(opts BurstOptions) *WindowBurstController {
	if opts.Mode == "" {
		opts.Mode = BurstModeNone
	}
	if opts.Window <= 0 {
		opts.Window = DefaultBurstWindow
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultBurstMaxEntries
	}
	if opts.ExtractKey == nil {
		opts.ExtractKey = StatusBurstKey
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &WindowBurstController{opts: opts, seen: map[string]time.Time{}}
}

func (c *WindowBurstController) Allow(_ context.Context, event Event) (BurstDecision, error) {
	pass := BurstDecision{Allow: true}
	if c == nil || c.opts.Mode == BurstModeNone {
		return pass, nil
	}
	key, ok := c.opts.ExtractKey(event)
	if !ok || strings.TrimSpace(key) == "" {
		return pass, nil
	}

	now := c.opts.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	anchor, found := c.seen[key]
	suppressed := found && now.Sub(anchor) < c.opts.Window
	if !suppressed || c.opts.Mode == BurstModeDebounce {
		c.seen[key] = now
	}
	c.evict(now)
	if !suppressed {
		return pass, nil
	}
	return BurstDecision{Metadata: map[string]any{
		"burst_mode":      string(c.opts.Mode),
		"burst_key":       key,
		"burst_window_ms": c.opts.Window.Milliseconds(),
		"suppressed":      true,
	}}, nil
}

func (c *WindowBurstController) Release(_ context.Context, event Event) {
	if c == nil {
		return
	}
	key, ok := c.opts.ExtractKey(event)
	if !ok {
		return
	}
	c.mu.Lock()
	delete(c.seen, key)
	c.mu.Unlock()
}

// evict keeps entries for a few windows, or a single window once the map
// grows past MaxEntries.
func (c *WindowBurstController) evict(now time.Time) {
	ttl := 4 * c.opts.Window
	if len(c.seen) > c.opts.MaxEntries {
		ttl = c.opts.Window
	}
	for key, at := range c.seen {
		if now.Sub(at) > ttl {
			delete(c.seen, key)
		}
	}
}

// MessageBurstKey groups events by source and message id.
func MessageBurstKey(event Event) (string, bool) {
	id := strings.TrimSpace(event.Delivery.ID)
	if id == "" {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(event.Source)) + ":" + id, true
}

// StatusBurstKey also includes the delivery status, so only repeats of the
// same transition are dropped.
func StatusBurstKey(event Event) (string, bool) {
	key, ok := MessageBurstKey(event)
	if !ok {
		return "", false
	}
	return key + ":" + string(event.Delivery.Status), true
}

var (
	_ BurstController = (*WindowBurstController)(nil)
	_ BurstReleaser   = (*WindowBurstController)(nil)
)
