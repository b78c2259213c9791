package notification

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Channel names a delivery mechanism. Concrete senders are pluggable.
type Channel string

const (
	ChannelDashboard Channel = "dashboard"
	ChannelEmail     Channel = "email"
	ChannelSMS       Channel = "sms"
	ChannelPush      Channel = "push"
	ChannelWebhook   Channel = "webhook"
)

// Template ids for the lifecycle notifications that are not tied to an
// alert type of their own.
const (
	templateResolved  = "resolved"
	templateEscalated = "escalated"
)

// ChannelConfig enables one channel on a template.
type ChannelConfig struct {
	Channel Channel           `yaml:"channel" json:"channel"`
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Config  map[string]string `yaml:"config,omitempty" json:"config,omitempty"`
}

// Template binds an alert type to a rendered notification. Body
// placeholders like {customerId} and {currentBalance} are substituted
// with alert fields at dispatch time. Cooldown is keyed by
// (customer id, template id).
type Template struct {
	ID        string          `yaml:"id" json:"id"`
	AlertType AlertType       `yaml:"alert_type" json:"alert_type"`
	Subject   string          `yaml:"subject" json:"subject"`
	Body      string          `yaml:"body" json:"body"`
	Channels  []ChannelConfig `yaml:"channels" json:"channels"`
	Priority  string          `yaml:"priority" json:"priority"`
	Cooldown  time.Duration   `yaml:"-" json:"cooldown"`
}

type templateFile struct {
	Templates []struct {
		Template        `yaml:",inline"`
		CooldownMinutes int `yaml:"cooldown_minutes"`
	} `yaml:"templates"`
}

// Registry holds notification templates, keyed by id, with an alert-type
// lookup for dispatch. It ships with five built-in defaults, all
// replaceable via Register.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewRegistry creates a registry seeded with the default templates.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string]*Template)}
	for _, t := range defaultTemplates() {
		r.templates[t.ID] = t
	}
	return r
}

func channels(enabled ...Channel) []ChannelConfig {
	configs := make([]ChannelConfig, 0, len(enabled))
	for _, c := range enabled {
		configs = append(configs, ChannelConfig{Channel: c, Enabled: true})
	}
	return configs
}

func defaultTemplates() []*Template {
	return []*Template{
		{
			ID:        string(AlertWarning),
			AlertType: AlertWarning,
			Subject:   "Balance warning for customer {customerId}",
			Body:      "Balance {currentBalance} for customer {customerId} crossed the warning threshold {threshold}. {message}",
			Channels:  channels(ChannelDashboard, ChannelEmail),
			Priority:  "normal",
			Cooldown:  60 * time.Minute,
		},
		{
			ID:        string(AlertCritical),
			AlertType: AlertCritical,
			Subject:   "CRITICAL balance alert for customer {customerId}",
			Body:      "Balance {currentBalance} for customer {customerId} crossed the critical threshold {threshold}. {message}",
			Channels:  channels(ChannelDashboard, ChannelEmail, ChannelSMS),
			Priority:  "high",
			Cooldown:  15 * time.Minute,
		},
		{
			ID:        string(AlertLimitExceeded),
			AlertType: AlertLimitExceeded,
			Subject:   "Change limit exceeded for customer {customerId}",
			Body:      "A change of {triggerAmount} pushed customer {customerId} past limit {threshold}. {message}",
			Channels:  channels(ChannelDashboard, ChannelEmail, ChannelSMS),
			Priority:  "high",
			Cooldown:  5 * time.Minute,
		},
		{
			ID:        templateResolved,
			AlertType: "",
			Subject:   "Alert resolved for customer {customerId}",
			Body:      "Alert {alertId} for customer {customerId} was acknowledged. {message}",
			Channels:  channels(ChannelDashboard),
			Priority:  "low",
			Cooldown:  0,
		},
		{
			ID:        templateEscalated,
			AlertType: "",
			Subject:   "Alert escalated for customer {customerId}",
			Body:      "Alert {alertId} for customer {customerId} escalated to level {escalationLevel} ({severity}). {message}",
			Channels:  channels(ChannelDashboard, ChannelEmail, ChannelSMS),
			Priority:  "urgent",
			Cooldown:  0,
		},
	}
}

// Register adds or replaces a template.
func (r *Registry) Register(t *Template) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	if t.Cooldown < 0 {
		return fmt.Errorf("template cooldown cannot be negative")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = t
	return nil
}

// Get returns the template with the given id.
func (r *Registry) Get(id string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	return t, ok
}

// ForAlertType returns the template bound to an alert type.
func (r *Registry) ForAlertType(alertType AlertType) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.templates {
		if t.AlertType == alertType {
			return t, true
		}
	}
	return nil, false
}

// LoadFile replaces templates from a YAML file. Cooldowns are given in
// minutes in the file.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read templates file: %w", err)
	}

	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse templates file: %w", err)
	}

	for _, entry := range file.Templates {
		t := entry.Template
		t.Cooldown = time.Duration(entry.CooldownMinutes) * time.Minute
		if err := r.Register(&t); err != nil {
			return fmt.Errorf("invalid template %q: %w", entry.ID, err)
		}
	}
	return nil
}
