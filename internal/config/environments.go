package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/eternisai/enchanted-push/internal/push"
	"github.com/goccy/go-yaml"
)

// EnvironmentsConfig enumerates the push backends the agent may talk to, one
// per deployment environment. The active one is chosen explicitly, never
// inferred.
type EnvironmentsConfig struct {
	// Environments maps an environment name (e.g. "staging") to its backend.
	Environments map[string]push.Config `yaml:"environments"`

	// Presentation holds notification display defaults.
	Presentation PresentationConfig `yaml:"presentation"`
}

// Validate performs validation of an EnvironmentsConfig value:
// - Checks that at least one environment is listed
// - Checks that every environment is complete
// - Checks that no two environments share a backend identity
func (cfg *EnvironmentsConfig) Validate() error {
	if len(cfg.Environments) == 0 {
		return errors.New("no environments specified in push configuration")
	}

	seen := make(map[string]string, len(cfg.Environments))
	for _, name := range cfg.Names() {
		env := cfg.Environments[name]
		if err := env.Validate(); err != nil {
			return fmt.Errorf("environment %s: %w", name, err)
		}

		identity := env.Key()
		if other, exists := seen[identity]; exists {
			return fmt.Errorf("environments %s and %s share project %s and app %s", other, name, env.ProjectID, env.AppID)
		}
		seen[identity] = name
	}

	return cfg.Presentation.Validate()
}

// Names returns the environment names in order.
func (cfg *EnvironmentsConfig) Names() []string {
	names := make([]string, 0, len(cfg.Environments))
	for name := range cfg.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the configuration of environment name.
func (cfg *EnvironmentsConfig) Select(name string) (push.Config, error) {
	if name == "" {
		return push.Config{}, fmt.Errorf("no push environment selected, set PUSH_ENV to one of %v", cfg.Names())
	}
	env, ok := cfg.Environments[name]
	if !ok {
		return push.Config{}, fmt.Errorf("unknown push environment %q, expected one of %v", name, cfg.Names())
	}
	return env, nil
}

// unmarshalEnvironmentsConfig implements a custom YAML unmarshaler for EnvironmentsConfig.
// Validates the value after unmarshaling.
func unmarshalEnvironmentsConfig(value *EnvironmentsConfig, data []byte) error {
	type Aux EnvironmentsConfig
	var aux Aux

	if err := yaml.Unmarshal(data, &aux); err != nil {
		return err
	}

	*value = EnvironmentsConfig(aux)

	if err := value.Validate(); err != nil {
		return err
	}

	return nil
}

// PresentationConfig contains notification display defaults.
type PresentationConfig struct {
	// DefaultIcon is shown when a payload carries no image. Empty means no icon.
	DefaultIcon string `yaml:"default_icon,omitempty"`

	// ClickTarget is opened when a clicked notification names no URL.
	ClickTarget string `yaml:"click_target,omitempty"`

	// AppBaseURL is the origin relative click targets are resolved against.
	AppBaseURL string `yaml:"app_base_url,omitempty"`

	// ForegroundNotifications also shows a system notification for messages
	// delivered to a focused page.
	ForegroundNotifications bool `yaml:"foreground_notifications,omitempty"`
}

// Validate performs validation of a PresentationConfig value:
// - Replaces an empty click target with "/"
// - Verifies AppBaseURL is a valid URL
func (cfg *PresentationConfig) Validate() error {
	if cfg.ClickTarget == "" {
		cfg.ClickTarget = "/"
	}

	if err := validateURLString(cfg.AppBaseURL); err != nil {
		return fmt.Errorf("app_base_url: %w", err)
	}

	return nil
}

func init() {
	// Register unmarshalers of custom types with the YAML library
	yaml.RegisterCustomUnmarshaler[EnvironmentsConfig](unmarshalEnvironmentsConfig)
}

// validateURLString performs basic sanity checks of a string that should contain a valid URL.
// Empty strings are ignored.
func validateURLString(str string) error {
	if str == "" {
		return nil
	}

	u, err := url.Parse(str)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("unsupported URL scheme: %q", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL does not contain a hostname")
	}

	return nil
}
