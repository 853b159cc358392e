package reset

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/jeogo/casnos-sub001/internal/store"

	"gopkg.in/yaml.v3"
)

var resetTimePattern = regexp.MustCompile(`^\d{2}:\d{2}$`)

type Config struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	ResetTickets bool   `yaml:"reset_tickets" json:"resetTickets"`
	ResetPDFs    bool   `yaml:"reset_pdfs" json:"resetPDFs"`
	ResetCache   bool   `yaml:"reset_cache" json:"resetCache"`
	KeepDays     int    `yaml:"keep_days" json:"keepDays"`
	ResetTime    string `yaml:"reset_time" json:"resetTime"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		ResetTickets: true,
		ResetPDFs:    true,
		ResetCache:   true,
		KeepDays:     30,
		ResetTime:    "00:00",
	}
}

func (c Config) Validate() error {
	if c.KeepDays <= 0 {
		return fmt.Errorf("%w: keepDays must be positive", store.ErrValidation)
	}
	if _, _, err := parseResetTime(c.ResetTime); err != nil {
		return err
	}
	return nil
}

// ConfigPatch carries a partial update; nil fields keep their value.
type ConfigPatch struct {
	Enabled      *bool   `json:"enabled"`
	ResetTickets *bool   `json:"resetTickets"`
	ResetPDFs    *bool   `json:"resetPDFs"`
	ResetCache   *bool   `json:"resetCache"`
	KeepDays     *int    `json:"keepDays"`
	ResetTime    *string `json:"resetTime"`
}

func (p ConfigPatch) Apply(c Config) Config {
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	if p.ResetTickets != nil {
		c.ResetTickets = *p.ResetTickets
	}
	if p.ResetPDFs != nil {
		c.ResetPDFs = *p.ResetPDFs
	}
	if p.ResetCache != nil {
		c.ResetCache = *p.ResetCache
	}
	if p.KeepDays != nil {
		c.KeepDays = *p.KeepDays
	}
	if p.ResetTime != nil {
		c.ResetTime = *p.ResetTime
	}
	return c
}

// LoadConfigFile overlays the YAML file at path onto base. A missing file
// leaves base untouched.
func LoadConfigFile(path string, base Config) (Config, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return base, nil
		}
		return base, err
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return base, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func SaveConfigFile(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func parseResetTime(value string) (int, int, error) {
	if !resetTimePattern.MatchString(value) {
		return 0, 0, fmt.Errorf("%w: resetTime must be HH:MM", store.ErrValidation)
	}
	hour, _ := strconv.Atoi(value[:2])
	minute, _ := strconv.Atoi(value[3:])
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: resetTime out of range", store.ErrValidation)
	}
	return hour, minute, nil
}
