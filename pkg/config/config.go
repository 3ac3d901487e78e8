package config

import "time"

// Config is the root compiler configuration.
type Config struct {
	Output  OutputConfig  `yaml:"output"`
	Build   BuildConfig   `yaml:"build"`
	Staging StagingConfig `yaml:"staging"`
	Log     LogConfig     `yaml:"log"`
}

// OutputConfig controls what is written and where.
type OutputConfig struct {
	// Dir defaults to the directory of the source file.
	Dir         string `yaml:"dir"          env:"TAB2KINDLE_OUTPUT_DIR"`
	Layout      string `yaml:"layout"       env:"TAB2KINDLE_LAYOUT"       env-default:"paged"`
	PageSize    int    `yaml:"page_size"    env:"TAB2KINDLE_PAGE_SIZE"    env-default:"2000"`
	Title       string `yaml:"title"        env:"TAB2KINDLE_TITLE"`
	InLanguage  string `yaml:"in_language"  env:"TAB2KINDLE_IN_LANGUAGE"  env-default:"en-us"`
	OutLanguage string `yaml:"out_language" env:"TAB2KINDLE_OUT_LANGUAGE" env-default:"en-us"`
	// CSSPath names a stylesheet embedded into every page.
	CSSPath string `yaml:"css_path" env:"TAB2KINDLE_CSS"`
}

// BuildConfig holds compilation settings.
type BuildConfig struct {
	Clean                  bool          `yaml:"clean"                    env:"TAB2KINDLE_CLEAN"`
	StrictPhraseComponents bool          `yaml:"strict_phrase_components" env:"TAB2KINDLE_STRICT_PHRASES" env-default:"true"`
	Workers                int           `yaml:"workers"                  env:"TAB2KINDLE_WORKERS"         env-default:"4"`
	BatchSize              int           `yaml:"batch_size"               env:"TAB2KINDLE_BATCH_SIZE"      env-default:"200"`
	FlushInterval          time.Duration `yaml:"flush_interval"           env:"TAB2KINDLE_FLUSH_INTERVAL"  env-default:"200ms"`
}

// StagingConfig controls the temporary entry database.
type StagingConfig struct {
	// Dir defaults to the system temp directory.
	Dir string `yaml:"dir" env:"TAB2KINDLE_TEMP_DIR"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"TAB2KINDLE_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"TAB2KINDLE_LOG_FORMAT" env-default:"text"`
}
