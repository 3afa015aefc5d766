// Package config loads and validates the backup-set configuration document.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"flexbackup-manager/internal/executor"
	"flexbackup-manager/internal/schedule"
)

// GCOrder controls whether retention runs before or after the backups
type GCOrder string

const (
	GCOrderFirst GCOrder = "first"
	GCOrderLast  GCOrder = "last"
)

// Config is the complete backup scheduler configuration
type Config struct {
	RootDirectory          string               `yaml:"root_directory" json:"root_directory"`
	DestDirectory          string               `yaml:"dest_directory" json:"dest_directory"`
	SubdirectoryExpansions map[string]bool      `yaml:"subdirectory_expansions" json:"subdirectory_expansions"`
	ExcludePatterns        []string             `yaml:"exclude_patterns" json:"exclude_patterns"`
	IncrementalFrequency   schedule.Frequencies `yaml:"incremental_backup_frequency" json:"incremental_backup_frequency"`
	Retention              RetentionConfig      `yaml:"retention" json:"retention"`
	BackupTiers            TiersConfig          `yaml:"backup_tiers" json:"backup_tiers"`
	GCOrder                GCOrder              `yaml:"gc_order" json:"gc_order"`
	Executor               ExecutorConfig       `yaml:"executor" json:"executor"`
	Setup                  SetupConfig          `yaml:"setup" json:"setup"`
}

// RetentionConfig is the number of dated snapshots kept per set, by tier
type RetentionConfig struct {
	Tier1 int `yaml:"tier1" json:"tier1"`
	Tier2 int `yaml:"tier2" json:"tier2"`
}

// TiersConfig lists the groups of each tier
type TiersConfig struct {
	Tier1 []schedule.Group `yaml:"tier1" json:"tier1"`
	Tier2 []schedule.Group `yaml:"tier2" json:"tier2"`
}

// ExecutorConfig configures how the backup executable is driven
type ExecutorConfig struct {
	Command      string        `yaml:"command" json:"command"`
	ExtraArgs    []string      `yaml:"extra_args" json:"extra_args"`
	TemplateFile string        `yaml:"template_file" json:"template_file"` // empty selects the built-in template
	TempPrefix   string        `yaml:"temp_prefix" json:"temp_prefix"`
	PigzThreads  int           `yaml:"pigz_threads" json:"pigz_threads"`
	UseNocache   *bool         `yaml:"use_nocache" json:"use_nocache"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"` // 0 means no limit
}

// SetupConfig holds run log settings
type SetupConfig struct {
	LogDirectory     string                   `yaml:"log_directory" json:"log_directory"`
	LogCompression   executor.CompressionType `yaml:"log_compression" json:"log_compression"`
	LogRetentionDays int                      `yaml:"log_retention_days" json:"log_retention_days"`
}

// Default values
const (
	DefaultRetentionTier1   = 2
	DefaultRetentionTier2   = 1
	DefaultTempPrefix       = "flexbackup-"
	DefaultPigzThreads      = 10
	DefaultLogRetentionDays = 30
)

// SetDefaults fills every unset field with its default. The incremental
// frequencies have no default and must be configured.
func (c *Config) SetDefaults() {
	if c.Retention.Tier1 == 0 {
		c.Retention.Tier1 = DefaultRetentionTier1
	}
	if c.Retention.Tier2 == 0 {
		c.Retention.Tier2 = DefaultRetentionTier2
	}
	if c.GCOrder == "" {
		c.GCOrder = GCOrderLast
	}
	if c.SubdirectoryExpansions == nil {
		c.SubdirectoryExpansions = map[string]bool{}
	}

	c.Executor.SetDefaults()
	c.Setup.SetDefaults()
}

// SetDefaults fills unset executor fields
func (ec *ExecutorConfig) SetDefaults() {
	if ec.Command == "" {
		ec.Command = executor.DefaultCommand
	}
	if ec.TempPrefix == "" {
		ec.TempPrefix = DefaultTempPrefix
	}
	if ec.PigzThreads == 0 {
		ec.PigzThreads = DefaultPigzThreads
	}
	if ec.UseNocache == nil {
		enabled := true
		ec.UseNocache = &enabled
	}
}

// Nocache reports whether tar runs under nocache
func (ec *ExecutorConfig) Nocache() bool {
	return ec.UseNocache == nil || *ec.UseNocache
}

// SetDefaults fills unset log settings
func (sc *SetupConfig) SetDefaults() {
	if sc.LogCompression == "" {
		sc.LogCompression = executor.CompressionNone
	}
	if sc.LogRetentionDays == 0 {
		sc.LogRetentionDays = DefaultLogRetentionDays
	}
}

// LoadFromEnvironment applies FLEXBACKUP_* overrides
func (c *Config) LoadFromEnvironment() {
	if val := os.Getenv("FLEXBACKUP_ROOT_DIRECTORY"); val != "" {
		c.RootDirectory = val
	}
	if val := os.Getenv("FLEXBACKUP_DEST_DIRECTORY"); val != "" {
		c.DestDirectory = val
	}
	if val := os.Getenv("FLEXBACKUP_GC_ORDER"); val != "" {
		c.GCOrder = GCOrder(strings.ToLower(val))
	}
	if val := os.Getenv("FLEXBACKUP_RETENTION_TIER1"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			c.Retention.Tier1 = parsed
		}
	}
	if val := os.Getenv("FLEXBACKUP_RETENTION_TIER2"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			c.Retention.Tier2 = parsed
		}
	}

	c.Executor.LoadFromEnvironment()
	c.Setup.LoadFromEnvironment()
}

// LoadFromEnvironment applies executor overrides
func (ec *ExecutorConfig) LoadFromEnvironment() {
	if val := os.Getenv("FLEXBACKUP_EXECUTOR_COMMAND"); val != "" {
		ec.Command = val
	}
	if val := os.Getenv("FLEXBACKUP_EXECUTOR_TEMPLATE_FILE"); val != "" {
		ec.TemplateFile = val
	}
	if val := os.Getenv("FLEXBACKUP_EXECUTOR_PIGZ_THREADS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			ec.PigzThreads = parsed
		}
	}
	if val := os.Getenv("FLEXBACKUP_EXECUTOR_USE_NOCACHE"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			ec.UseNocache = &parsed
		}
	}
	if val := os.Getenv("FLEXBACKUP_EXECUTOR_TIMEOUT"); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			ec.Timeout = parsed
		}
	}
}

// LoadFromEnvironment applies log setting overrides
func (sc *SetupConfig) LoadFromEnvironment() {
	if val := os.Getenv("FLEXBACKUP_LOG_DIRECTORY"); val != "" {
		sc.LogDirectory = val
	}
	if val := os.Getenv("FLEXBACKUP_LOG_COMPRESSION"); val != "" {
		sc.LogCompression = executor.CompressionType(strings.ToLower(val))
	}
	if val := os.Getenv("FLEXBACKUP_LOG_RETENTION_DAYS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			sc.LogRetentionDays = parsed
		}
	}
}

// KeepFor returns the retention count of a tier ("tier1" or "tier2")
func (c *Config) KeepFor(tier string) int {
	if tier == "tier2" {
		return c.Retention.Tier2
	}
	return c.Retention.Tier1
}

// TierSets returns the flattened set names of each tier
func (c *Config) TierSets() (tier1, tier2 []string) {
	return schedule.Flatten(c.BackupTiers.Tier1), schedule.Flatten(c.BackupTiers.Tier2)
}
