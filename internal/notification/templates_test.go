package notification

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTemplates(t *testing.T) {
	registry := NewRegistry()

	cases := []struct {
		id       string
		cooldown time.Duration
		channels int
	}{
		{string(AlertWarning), 60 * time.Minute, 2},
		{string(AlertCritical), 15 * time.Minute, 3},
		{string(AlertLimitExceeded), 5 * time.Minute, 3},
		{templateResolved, 0, 1},
		{templateEscalated, 0, 3},
	}

	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			template, ok := registry.Get(tc.id)
			require.True(t, ok)
			assert.Equal(t, tc.cooldown, template.Cooldown)
			assert.Len(t, template.Channels, tc.channels)
			for _, channel := range template.Channels {
				assert.True(t, channel.Enabled)
			}
		})
	}

	t.Run("AlertTypeBinding", func(t *testing.T) {
		template, ok := registry.ForAlertType(AlertLimitExceeded)
		require.True(t, ok)
		assert.Equal(t, string(AlertLimitExceeded), template.ID)
	})
}

func TestRegisterReplacesDefaults(t *testing.T) {
	registry := NewRegistry()

	custom := &Template{
		ID:        string(AlertWarning),
		AlertType: AlertWarning,
		Subject:   "custom subject",
		Body:      "custom body {customerId}",
		Channels:  channels(ChannelDashboard),
		Priority:  "low",
		Cooldown:  5 * time.Minute,
	}
	require.NoError(t, registry.Register(custom))

	stored, ok := registry.Get(string(AlertWarning))
	require.True(t, ok)
	assert.Equal(t, "custom subject", stored.Subject)
	assert.Equal(t, 5*time.Minute, stored.Cooldown)

	t.Run("RejectsEmptyID", func(t *testing.T) {
		assert.Error(t, registry.Register(&Template{}))
	})

	t.Run("RejectsNegativeCooldown", func(t *testing.T) {
		assert.Error(t, registry.Register(&Template{ID: "x", Cooldown: -time.Minute}))
	})
}

func TestLoadTemplatesFromFile(t *testing.T) {
	content := `templates:
  - id: warning
    alert_type: warning
    subject: "File-based warning for {customerId}"
    body: "Balance {currentBalance} crossed {threshold}"
    priority: normal
    cooldown_minutes: 30
    channels:
      - channel: dashboard
        enabled: true
      - channel: webhook
        enabled: true
        config:
          url: https://hooks.example.com/balance
`
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	registry := NewRegistry()
	require.NoError(t, registry.LoadFile(path))

	template, ok := registry.Get(string(AlertWarning))
	require.True(t, ok)
	assert.Equal(t, "File-based warning for {customerId}", template.Subject)
	assert.Equal(t, 30*time.Minute, template.Cooldown)
	require.Len(t, template.Channels, 2)
	assert.Equal(t, ChannelWebhook, template.Channels[1].Channel)
	assert.Equal(t, "https://hooks.example.com/balance", template.Channels[1].Config["url"])

	t.Run("MissingFile", func(t *testing.T) {
		assert.Error(t, registry.LoadFile(filepath.Join(t.TempDir(), "nope.yaml")))
	})
}
