package main

import (
	"fmt"
	"os"

	"github.com/banshee-data/glitch.audit/internal/config"
)

const defaultConfigHint = config.DefaultConfigPath + " when present"

// commandContext loads the configuration once per invocation.
type commandContext struct {
	configFlag *string

	cfg    *config.AuditConfig
	path   string
	exists bool
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the --config file, falling back to the canonical
// defaults file and then to built-in defaults. An explicit path must exist.
func (c *commandContext) ensureConfig() (*config.AuditConfig, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}

	path := *c.configFlag
	explicit := path != ""
	if !explicit {
		path = config.DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		c.cfg, c.path, c.exists = config.EmptyAuditConfig(), path, false
		return c.cfg, nil
	}

	cfg, err := config.LoadAuditConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	c.cfg, c.path, c.exists = cfg, path, true
	return c.cfg, nil
}
