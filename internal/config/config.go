// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting the binaries read
type Config struct {
	RESTPort     string
	GRPCPort     string
	DatabasePath string
	LogLevel     string

	WebhookSecret    string
	WebhookProviders []string

	ClassifierProvider string
	ClassifierTimeout  time.Duration
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
	AnthropicAPIKey    string
	AnthropicModel     string

	GitHubToken string

	JiraBaseURL      string
	JiraUsername     string
	JiraToken        string
	JiraProjectKey   string
	JiraCustomField  string
	JiraPollInterval time.Duration
	JiraDoneStatus   string

	TemporalAddress   string
	TemporalNamespace string
	TaskQueue         string
	MirrorEnabled     bool

	MetricsStdout bool
	OTLPEndpoint  string
}

var defaults = map[string]interface{}{
	"REST_PORT":           "8080",
	"GRPC_PORT":           "9090",
	"DATABASE_PATH":       "taskhook.db",
	"LOG_LEVEL":           "info",
	"WEBHOOK_SECRET":      "",
	"WEBHOOK_PROVIDERS":   "github",
	"CLASSIFIER_PROVIDER": "openai",
	"CLASSIFIER_TIMEOUT":  "15s",
	"OPENAI_API_KEY":      "",
	"OPENAI_MODEL":        "",
	"OPENAI_BASE_URL":     "",
	"ANTHROPIC_API_KEY":   "",
	"ANTHROPIC_MODEL":     "",
	"GITHUB_TOKEN":        "",
	"JIRA_BASE_URL":       "",
	"JIRA_USERNAME":       "",
	"JIRA_TOKEN":          "",
	"JIRA_PROJECT_KEY":    "",
	"JIRA_CUSTOM_FIELD":   "Repository",
	"JIRA_POLL_INTERVAL":  "5m",
	"JIRA_DONE_STATUS":    "Done",
	"TEMPORAL_ADDRESS":    "localhost:7233",
	"TEMPORAL_NAMESPACE":  "default",
	"TASK_QUEUE":          "completion-mirror",
	"MIRROR_ENABLED":      false,
	"OTEL_METRICS_STDOUT": false,

	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	classifierTimeout, err := parseDuration(v, "CLASSIFIER_TIMEOUT")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parseDuration(v, "JIRA_POLL_INTERVAL")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RESTPort:           v.GetString("REST_PORT"),
		GRPCPort:           v.GetString("GRPC_PORT"),
		DatabasePath:       v.GetString("DATABASE_PATH"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		WebhookSecret:      v.GetString("WEBHOOK_SECRET"),
		WebhookProviders:   splitList(v.GetString("WEBHOOK_PROVIDERS")),
		ClassifierProvider: strings.ToLower(v.GetString("CLASSIFIER_PROVIDER")),
		ClassifierTimeout:  classifierTimeout,
		OpenAIAPIKey:       v.GetString("OPENAI_API_KEY"),
		OpenAIModel:        v.GetString("OPENAI_MODEL"),
		OpenAIBaseURL:      v.GetString("OPENAI_BASE_URL"),
		AnthropicAPIKey:    v.GetString("ANTHROPIC_API_KEY"),
		AnthropicModel:     v.GetString("ANTHROPIC_MODEL"),
		GitHubToken:        v.GetString("GITHUB_TOKEN"),
		JiraBaseURL:        v.GetString("JIRA_BASE_URL"),
		JiraUsername:       v.GetString("JIRA_USERNAME"),
		JiraToken:          v.GetString("JIRA_TOKEN"),
		JiraProjectKey:     v.GetString("JIRA_PROJECT_KEY"),
		JiraCustomField:    v.GetString("JIRA_CUSTOM_FIELD"),
		JiraPollInterval:   pollInterval,
		JiraDoneStatus:     v.GetString("JIRA_DONE_STATUS"),
		TemporalAddress:    v.GetString("TEMPORAL_ADDRESS"),
		TemporalNamespace:  v.GetString("TEMPORAL_NAMESPACE"),
		TaskQueue:          v.GetString("TASK_QUEUE"),
		MirrorEnabled:      v.GetBool("MIRROR_ENABLED"),
		MetricsStdout:      v.GetBool("OTEL_METRICS_STDOUT"),
		OTLPEndpoint:       v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// JiraEnabled reports whether Jira credentials and a project are configured
func (c *Config) JiraEnabled() bool {
	return c.JiraBaseURL != "" && c.JiraUsername != "" && c.JiraToken != "" && c.JiraProjectKey != ""
}

func (c *Config) validate() error {
	switch c.ClassifierProvider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("invalid CLASSIFIER_PROVIDER %q", c.ClassifierProvider)
	}
	if c.ClassifierTimeout <= 0 {
		return fmt.Errorf("CLASSIFIER_TIMEOUT must be positive")
	}
	if c.JiraPollInterval <= 0 {
		return fmt.Errorf("JIRA_POLL_INTERVAL must be positive")
	}
	if len(c.WebhookProviders) == 0 {
		return fmt.Errorf("WEBHOOK_PROVIDERS must name at least one provider")
	}
	if c.MirrorEnabled && !c.JiraEnabled() {
		return fmt.Errorf("MIRROR_ENABLED requires JIRA_BASE_URL, JIRA_USERNAME, JIRA_TOKEN and JIRA_PROJECT_KEY")
	}
	return nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
