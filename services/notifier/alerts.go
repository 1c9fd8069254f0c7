package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"lyrics-sync-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// DefaultAlertCooldown is the minimum gap between alerts with the same key
const DefaultAlertCooldown = 15 * time.Minute

// AlertHandler turns events into notifications, at most one per cooldown for
// each event type and provider.
type AlertHandler struct {
	notifiers        []Notifier
	cooldownDuration time.Duration
	sendTimeout      time.Duration
	now              func() time.Time

	mu        sync.Mutex
	cooldowns map[string]time.Time
}

// AlertConfig holds configuration for the alert handler
type AlertConfig struct {
	Notifiers        []Notifier
	CooldownDuration time.Duration
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(config AlertConfig) *AlertHandler {
	cooldown := config.CooldownDuration
	if cooldown == 0 {
		cooldown = DefaultAlertCooldown
	}
	return &AlertHandler{
		notifiers:        config.Notifiers,
		cooldownDuration: cooldown,
		sendTimeout:      defaultTimeout,
		now:              time.Now,
		cooldowns:        make(map[string]time.Time),
	}
}

// Start subscribes the handler to bus
func (h *AlertHandler) Start(bus *EventBus) {
	bus.SubscribeAll(h.handleEvent)
	log.Infof("%s Alert handler started (cooldown: %v, notifiers: %d)",
		logcolors.LogNotifier, h.cooldownDuration, len(h.notifiers))
}

func (h *AlertHandler) handleEvent(event *Event) {
	subject, message := formatAlert(event)
	if subject == "" {
		return
	}

	if !h.shouldAlert(cooldownKey(event)) {
		log.Debugf("%s Skipping alert for %s (cooldown active)", logcolors.LogNotifier, event.Type)
		return
	}

	h.sendAlert(subject, message)
}

// cooldownKey separates cooldowns per provider so one flapping provider does
// not hide another
func cooldownKey(event *Event) string {
	if p, ok := event.Data["provider"].(string); ok {
		return string(event.Type) + ":" + p
	}
	return string(event.Type)
}

func (h *AlertHandler) shouldAlert(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	last, exists := h.cooldowns[key]
	if !exists || now.Sub(last) >= h.cooldownDuration {
		h.cooldowns[key] = now
		return true
	}
	return false
}

// ResetAllCooldowns forgets every cooldown
func (h *AlertHandler) ResetAllCooldowns() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cooldowns = make(map[string]time.Time)
}

func formatAlert(event *Event) (subject, message string) {
	switch event.Type {
	case EventCircuitBreakerOpen:
		provider, _ := event.Data["provider"].(string)
		failures, _ := event.Data["failures"].(int)
		cooldown, _ := event.Data["cooldown"].(string)
		subject = fmt.Sprintf("Provider %s unavailable", provider)
		message = fmt.Sprintf(
			"The %s circuit breaker opened after %d consecutive failures.\n\n"+
				"Lookups will skip %s for %s, then probe it again.",
			provider, failures, provider, cooldown)

	case EventCircuitBreakerRecovered:
		provider, _ := event.Data["provider"].(string)
		subject = fmt.Sprintf("Provider %s recovered", provider)
		message = fmt.Sprintf("The %s circuit breaker closed; lookups use it again.", provider)

	case EventAllProvidersOpen:
		providers, _ := event.Data["providers"].([]string)
		subject = "All providers unavailable"
		message = fmt.Sprintf("Every provider circuit breaker is open (%s).\n\n"+
			"Only cached lyrics and local files can be served.", strings.Join(providers, ", "))

	case EventCacheCleared:
		removed, _ := event.Data["removed"].(int)
		subject = "Cache cleared"
		message = fmt.Sprintf("The lyrics cache was cleared (%d entries removed).", removed)

	case EventServerStarted:
		port, _ := event.Data["port"].(string)
		providers, _ := event.Data["providers"].([]string)
		subject = "Server started"
		message = fmt.Sprintf("Server started on port %s with providers: %s.", port, strings.Join(providers, ", "))

	default:
		return "", ""
	}

	switch event.Severity {
	case SeverityCritical:
		subject = "[CRITICAL] " + subject
	case SeverityWarning:
		subject = "[WARNING] " + subject
	}
	return subject, message
}

func (h *AlertHandler) sendAlert(subject, message string) {
	if len(h.notifiers) == 0 {
		log.Debugf("%s No notifiers configured, skipping alert: %s", logcolors.LogNotifier, subject)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
	defer cancel()

	sent := 0
	for _, n := range h.notifiers {
		if err := n.Send(ctx, subject, message); err != nil {
			log.Errorf("%s Failed to send alert via %s: %v", logcolors.LogNotifier, n.Name(), err)
			continue
		}
		sent++
	}
	log.Infof("%s Alert %q sent via %d/%d notifiers", logcolors.LogNotifier, subject, sent, len(h.notifiers))
}
