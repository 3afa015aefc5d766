package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	apperrors "flexbackup-manager/internal/errors"
	"flexbackup-manager/internal/executor"
	"flexbackup-manager/internal/schedule"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when no path is given
const DefaultConfigFile = "backup_list.yaml"

// Load reads, defaults, overrides and validates the configuration at path.
// A relative template_file is resolved against the directory of path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigurationError(
			fmt.Sprintf("Failed to read configuration file %s", path), err)
	}

	return LoadFromBytes(data, filepath.Dir(path))
}

// LoadFromBytes parses a YAML document. baseDir anchors relative paths.
func LoadFromBytes(data []byte, baseDir string) (*Config, error) {
	config := &Config{}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, apperrors.NewConfigurationError("Failed to parse YAML config", err)
	}

	var explicit explicitValues
	if err := yaml.Unmarshal(data, &explicit); err != nil {
		return nil, apperrors.NewConfigurationError("Failed to parse YAML config", err)
	}

	config.SetDefaults()
	explicit.apply(config)
	config.LoadFromEnvironment()
	config.resolvePaths(baseDir)

	var problems ValidationErrors
	if explicit.IncrementalFrequency == nil {
		problems.Add("incremental_backup_frequency", "is required", nil)
	}
	if err := config.Validate(); err != nil {
		var verrs ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, apperrors.NewConfigurationError("Configuration validation failed", err)
		}
		problems = append(problems, verrs...)
	}
	if problems.HasErrors() {
		return nil, apperrors.NewConfigurationError("Configuration validation failed", problems)
	}

	return config, nil
}

// explicitValues records numeric keys present in the document, so that an
// explicit 0 reaches Validate instead of being replaced by a default.
type explicitValues struct {
	IncrementalFrequency *struct{} `yaml:"incremental_backup_frequency"`
	Retention            struct {
		Tier1 *int `yaml:"tier1"`
		Tier2 *int `yaml:"tier2"`
	} `yaml:"retention"`
	Executor struct {
		PigzThreads *int `yaml:"pigz_threads"`
	} `yaml:"executor"`
	Setup struct {
		LogRetentionDays *int `yaml:"log_retention_days"`
	} `yaml:"setup"`
}

func (e *explicitValues) apply(c *Config) {
	if e.Retention.Tier1 != nil {
		c.Retention.Tier1 = *e.Retention.Tier1
	}
	if e.Retention.Tier2 != nil {
		c.Retention.Tier2 = *e.Retention.Tier2
	}
	if e.Executor.PigzThreads != nil {
		c.Executor.PigzThreads = *e.Executor.PigzThreads
	}
	if e.Setup.LogRetentionDays != nil {
		c.Setup.LogRetentionDays = *e.Setup.LogRetentionDays
	}
}

func (c *Config) resolvePaths(baseDir string) {
	if c.Executor.TemplateFile != "" && !filepath.IsAbs(c.Executor.TemplateFile) && baseDir != "" {
		c.Executor.TemplateFile = filepath.Join(baseDir, c.Executor.TemplateFile)
	}
}

// Save writes the configuration as YAML
func Save(config *Config, path string) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSampleConfig returns a small working configuration
func GenerateSampleConfig() *Config {
	nocache := true
	config := &Config{
		RootDirectory: "/e",
		DestDirectory: "/backup/nfs",
		SubdirectoryExpansions: map[string]bool{
			"home":    true,
			"srv":     true,
			"archive": false,
		},
		ExcludePatterns:      []string{`\.cache`},
		IncrementalFrequency: schedule.Frequencies{Tier1: 1, Tier2: 3},
		Retention:            RetentionConfig{Tier1: DefaultRetentionTier1, Tier2: DefaultRetentionTier2},
		BackupTiers: TiersConfig{
			Tier1: []schedule.Group{{"home", "srv"}},
			Tier2: []schedule.Group{{"archive"}},
		},
		GCOrder: GCOrderLast,
		Executor: ExecutorConfig{
			Command:     executor.DefaultCommand,
			TempPrefix:  DefaultTempPrefix,
			PigzThreads: DefaultPigzThreads,
			UseNocache:  &nocache,
		},
		Setup: SetupConfig{
			LogDirectory:     "/var/log/flexbackup",
			LogCompression:   executor.CompressionZstd,
			LogRetentionDays: DefaultLogRetentionDays,
		},
	}
	return config
}
