// Package settings holds user preferences: the display mode, preferred
// symbols per dimension, and currency rates. Preferences live in a YAML
// file and translate into display options and unit library options.
package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jacksodj/unicel-sub000/pkg/unicel"
	"github.com/jacksodj/unicel-sub000/pkg/unicel/units"
)

// Settings is the preference file shape.
type Settings struct {
	// DisplayMode selects the default unit family for rendering:
	// "as-stored", "metric" or "imperial".
	DisplayMode string `yaml:"display_mode"`
	// Preferred maps dimension names ("Length", "Mass", "Currency", ...)
	// to the symbol to display that dimension in.
	Preferred map[string]string `yaml:"preferred,omitempty"`
	// Precision rounds displayed numbers to this many decimal places.
	// Omit for full precision.
	Precision *int `yaml:"precision,omitempty"`
	// CurrencyRates maps currency symbols to their value in USD,
	// e.g. EUR: 1.08. Known currencies are re-rated; new symbols are
	// registered.
	CurrencyRates map[string]float64 `yaml:"currency_rates,omitempty"`
}

// Default returns the settings used when no file exists.
func Default() Settings {
	return Settings{DisplayMode: string(unicel.ModeAsStored)}
}

// Load reads settings from path, filling omitted fields from Default.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Save writes settings to path as YAML.
func (s Settings) Save(path string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// Validate checks field ranges before the settings are applied.
func (s Settings) Validate() error {
	switch unicel.DisplayMode(s.DisplayMode) {
	case "", unicel.ModeAsStored, unicel.ModeMetric, unicel.ModeImperial:
	default:
		return fmt.Errorf("unknown display mode %q", s.DisplayMode)
	}
	if s.Precision != nil && *s.Precision < 0 {
		return fmt.Errorf("precision must not be negative, got %d", *s.Precision)
	}
	for symbol, rate := range s.CurrencyRates {
		if rate <= 0 {
			return fmt.Errorf("currency rate for %s must be positive, got %v", symbol, rate)
		}
	}
	return nil
}

// DisplayOptions translates the settings into rendering options.
func (s Settings) DisplayOptions() unicel.DisplayOptions {
	opts := unicel.DisplayOptions{
		Mode:      unicel.DisplayMode(s.DisplayMode),
		Preferred: s.Preferred,
		Precision: s.Precision,
	}
	if opts.Mode == "" {
		opts.Mode = unicel.ModeAsStored
	}
	return opts
}

// LibraryOptions translates the settings into unit library options.
func (s Settings) LibraryOptions() []units.Option {
	if len(s.CurrencyRates) == 0 {
		return nil
	}
	return []units.Option{units.WithCurrencyRates(s.CurrencyRates)}
}
