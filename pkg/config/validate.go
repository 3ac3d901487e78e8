package config

import (
	"fmt"
	"strings"
)

// Validate checks the loaded configuration. Load calls it automatically;
// callers that override fields afterwards should call it again.
func (c *Config) Validate() error {
	switch c.Output.Layout {
	case "paged", "single":
	default:
		return fmt.Errorf("output.layout must be paged or single (got %q)", c.Output.Layout)
	}
	if c.Output.PageSize <= 0 {
		return fmt.Errorf("output.page_size must be > 0 (got %d)", c.Output.PageSize)
	}
	if c.Build.Workers <= 0 {
		return fmt.Errorf("build.workers must be > 0 (got %d)", c.Build.Workers)
	}
	if c.Build.BatchSize <= 0 {
		return fmt.Errorf("build.batch_size must be > 0 (got %d)", c.Build.BatchSize)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}
	return nil
}
