package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// triggersFile is the on-disk schema of a trigger-table YAML file.
type triggersFile struct {
	Rules []TriggerRule `yaml:"rules"`
}

// LoadTriggers resolves the effective trigger rules: the YAML file when
// configured, otherwise the inline rules. The table is loaded once at startup
// and passed by reference into the router; it is never mutated afterwards.
func LoadTriggers(cfg TriggersConfig, logger *slog.Logger) ([]TriggerRule, error) {
	if cfg.File == "" {
		return cfg.Rules, nil
	}

	data, err := os.ReadFile(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("read triggers file %s: %w", cfg.File, err)
	}

	var tf triggersFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse triggers file %s: %w", cfg.File, err)
	}

	for i, r := range tf.Rules {
		if len(r.Phrases) == 0 || len(r.Replies) == 0 {
			return nil, fmt.Errorf("triggers file %s: rule %d needs phrases and replies", cfg.File, i)
		}
	}

	logger.Info("trigger rules loaded", "path", cfg.File, "rules", len(tf.Rules))
	return tf.Rules, nil
}
