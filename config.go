package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mauipipe/visionresizer/diagnose"
	"github.com/mauipipe/visionresizer/sizer"
)

const defaultBudgetName = "default"

type Configuration struct {
	Port              uint
	ImageHost         string
	HostWhiteList     []string
	SizeLimits        sizer.Size
	Placeholders      []Placeholder
	Budgets           map[string]sizer.Budget
	WarmupPaths       []string
	WarmupBudgets     []string
	WarmupInterval    time.Duration
	WarmupConcurrency int
	CacheThumbnails   bool
	CachePath         string
	LRUSize           int
	RequestTimeout    time.Duration
	Checks            []diagnose.Check
}

// Placeholder is a named bounding box for the fit endpoint.
type Placeholder struct {
	Name string
	Size sizer.Size
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("sizelimits", map[string]any{"width": 8192, "height": 8192})
	v.SetDefault("budgets", map[string]any{
		defaultBudgetName: map[string]any{
			"factor":     sizer.DefaultFactor,
			"min_pixels": sizer.DefaultMinPixels,
			"max_pixels": sizer.DefaultMaxPixels,
		},
		"qwen2vl": map[string]any{
			"factor":     28,
			"min_pixels": 4 * 28 * 28,
			"max_pixels": 16384 * 28 * 28,
		},
	})
	v.SetDefault("warmupbudgets", []string{defaultBudgetName})
	v.SetDefault("warmupinterval", "200ms")
	v.SetDefault("warmupconcurrency", 4)
	v.SetDefault("cachethumbnails", true)
	v.SetDefault("cachepath", filepath.Join(os.TempDir(), "visionresizer"))
	v.SetDefault("lrusize", 128)
	v.SetDefault("requesttimeout", "5s")
}

// newViper builds the config source. An empty path searches the working
// directory for config.{yaml,toml,json}; a missing file there is not an error.
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("VISIONRESIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("cachepath", "RESIZER_CACHE_PATH", "VISIONRESIZER_CACHEPATH"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load configuration file: %w", err)
		}
	}

	return v, nil
}

func decodeConfig(v *viper.Viper) (*Configuration, error) {
	config := new(Configuration)
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	budgets := make(map[string]sizer.Budget, len(config.Budgets))
	for name, b := range config.Budgets {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("budget %q: %w", name, err)
		}
		budgets[strings.ToLower(name)] = b
	}
	if _, ok := budgets[defaultBudgetName]; !ok {
		budgets[defaultBudgetName] = sizer.DefaultBudget()
	}
	config.Budgets = budgets

	if config.WarmupConcurrency <= 0 {
		config.WarmupConcurrency = 1
	}
	return config, nil
}

func (c *Configuration) Budget(name string) (sizer.Budget, bool) {
	if name == "" {
		name = defaultBudgetName
	}
	b, ok := c.Budgets[strings.ToLower(name)]
	return b, ok
}

func (c *Configuration) EnvironmentChecks() []diagnose.Check {
	if len(c.Checks) > 0 {
		return c.Checks
	}
	return diagnose.DefaultChecks(c.CachePath)
}
