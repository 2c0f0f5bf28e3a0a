package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.RESTPort)
	assert.Equal(t, "9090", cfg.GRPCPort)
	assert.Equal(t, "taskhook.db", cfg.DatabasePath)
	assert.Equal(t, []string{"github"}, cfg.WebhookProviders)
	assert.Equal(t, "openai", cfg.ClassifierProvider)
	assert.Equal(t, 15*time.Second, cfg.ClassifierTimeout)
	assert.Equal(t, 5*time.Minute, cfg.JiraPollInterval)
	assert.Equal(t, "Done", cfg.JiraDoneStatus)
	assert.Equal(t, "completion-mirror", cfg.TaskQueue)
	assert.False(t, cfg.MirrorEnabled)
	assert.False(t, cfg.JiraEnabled())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("REST_PORT", "8181")
	t.Setenv("WEBHOOK_SECRET", "s3cret")
	t.Setenv("WEBHOOK_PROVIDERS", "GitHub, gitea ,")
	t.Setenv("CLASSIFIER_PROVIDER", "Anthropic")
	t.Setenv("CLASSIFIER_TIMEOUT", "2s")
	t.Setenv("MIRROR_ENABLED", "true")
	t.Setenv("JIRA_BASE_URL", "https://acme.atlassian.net")
	t.Setenv("JIRA_USERNAME", "bot")
	t.Setenv("JIRA_TOKEN", "token")
	t.Setenv("JIRA_PROJECT_KEY", "TASK")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8181", cfg.RESTPort)
	assert.Equal(t, "s3cret", cfg.WebhookSecret)
	assert.Equal(t, []string{"github", "gitea"}, cfg.WebhookProviders)
	assert.Equal(t, "anthropic", cfg.ClassifierProvider)
	assert.Equal(t, 2*time.Second, cfg.ClassifierTimeout)
	assert.True(t, cfg.MirrorEnabled)
	assert.True(t, cfg.JiraEnabled())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown provider":  {"CLASSIFIER_PROVIDER": "cohere"},
		"bad timeout":       {"CLASSIFIER_TIMEOUT": "soon"},
		"zero timeout":      {"CLASSIFIER_TIMEOUT": "0s"},
		"bad poll interval": {"JIRA_POLL_INTERVAL": "-1m"},
		"no providers":      {"WEBHOOK_PROVIDERS": " , "},
		"mirror no jira":    {"MIRROR_ENABLED": "true"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	logger, err = NewLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(0))

	logger, err = NewLogger("bogus")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(0))
}
