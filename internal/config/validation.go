package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"flexbackup-manager/internal/executor"
	"flexbackup-manager/internal/schedule"
)

// ValidationError describes one configuration problem
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one pass
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(e), e[0].Error(), len(e)-1)
}

// Details renders one problem per line
func (e ValidationErrors) Details() string {
	lines := make([]string, 0, len(e))
	for _, v := range e {
		lines = append(lines, "  - "+v.Error())
	}
	return strings.Join(lines, "\n")
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, message string, value interface{}) {
	*e = append(*e, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks the whole document and reports every problem at once
func (c *Config) Validate() error {
	var errors ValidationErrors

	if c.RootDirectory == "" {
		errors.Add("root_directory", "is required", nil)
	}
	if c.DestDirectory == "" {
		errors.Add("dest_directory", "is required", nil)
	}

	if c.IncrementalFrequency.Tier1 <= 0 {
		errors.Add("incremental_backup_frequency.tier1", "must be positive", c.IncrementalFrequency.Tier1)
	}
	if c.IncrementalFrequency.Tier2 <= 0 {
		errors.Add("incremental_backup_frequency.tier2", "must be positive", c.IncrementalFrequency.Tier2)
	}
	if c.Retention.Tier1 <= 0 {
		errors.Add("retention.tier1", "must be positive", c.Retention.Tier1)
	}
	if c.Retention.Tier2 <= 0 {
		errors.Add("retention.tier2", "must be positive", c.Retention.Tier2)
	}

	c.validateTiers(&errors)

	if c.GCOrder != GCOrderFirst && c.GCOrder != GCOrderLast {
		errors.Add("gc_order", "must be 'first' or 'last'", c.GCOrder)
	}

	for i, pat := range c.ExcludePatterns {
		if pat == "" {
			errors.Add(fmt.Sprintf("exclude_patterns[%d]", i), "must not be empty", nil)
		}
	}

	c.Executor.validate(&errors)
	c.Setup.validate(&errors)

	if errors.HasErrors() {
		return errors
	}
	return nil
}

func (c *Config) validateTiers(errors *ValidationErrors) {
	// one tier may be empty; with both empty the cycle has no entries
	if len(c.BackupTiers.Tier1)+len(c.BackupTiers.Tier2) == 0 {
		errors.Add("backup_tiers", "tier1 and tier2 must not both be empty", nil)
	}

	seen := map[string]string{}
	check := func(tier string, groups []schedule.Group) {
		for i, group := range groups {
			field := fmt.Sprintf("backup_tiers.%s[%d]", tier, i)
			if len(group) == 0 {
				errors.Add(field, "group must not be empty", nil)
				continue
			}
			for _, name := range group {
				switch {
				case name == "":
					errors.Add(field, "set name must not be empty", nil)
				case strings.ContainsRune(name, os.PathSeparator) || name == "." || name == "..":
					errors.Add(field, "set name must be a plain directory name", name)
				case seen[name] != "":
					errors.Add(field, fmt.Sprintf("set %s already listed in %s", name, seen[name]), name)
				default:
					seen[name] = field
					if _, ok := c.SubdirectoryExpansions[name]; !ok {
						errors.Add("subdirectory_expansions", fmt.Sprintf("set %s has no expansion entry", name), name)
					}
				}
			}
		}
	}
	check("tier1", c.BackupTiers.Tier1)
	check("tier2", c.BackupTiers.Tier2)

	var orphans []string
	for name := range c.SubdirectoryExpansions {
		if seen[name] == "" {
			orphans = append(orphans, name)
		}
	}
	sort.Strings(orphans)
	for _, name := range orphans {
		errors.Add("subdirectory_expansions", fmt.Sprintf("set %s is not in any tier", name), name)
	}
}

func (ec *ExecutorConfig) validate(errors *ValidationErrors) {
	if ec.Command == "" {
		errors.Add("executor.command", "is required", nil)
	}
	if ec.PigzThreads <= 0 {
		errors.Add("executor.pigz_threads", "must be positive", ec.PigzThreads)
	}
	if ec.Timeout < 0 {
		errors.Add("executor.timeout", "must not be negative", ec.Timeout.String())
	}
	if strings.ContainsRune(ec.TempPrefix, os.PathSeparator) {
		errors.Add("executor.temp_prefix", "must not contain a path separator", ec.TempPrefix)
	}
	if ec.TemplateFile != "" {
		if info, err := os.Stat(ec.TemplateFile); err != nil {
			errors.Add("executor.template_file", "file not found", ec.TemplateFile)
		} else if info.IsDir() {
			errors.Add("executor.template_file", "is a directory", ec.TemplateFile)
		}
	}
}

func (sc *SetupConfig) validate(errors *ValidationErrors) {
	valid := false
	for _, c := range executor.SupportedCompressions {
		if sc.LogCompression == c {
			valid = true
			break
		}
	}
	if !valid {
		errors.Add("setup.log_compression", "must be one of none, gzip, lz4, zstd", sc.LogCompression)
	}
	if sc.LogRetentionDays < 0 {
		errors.Add("setup.log_retention_days", "must not be negative", sc.LogRetentionDays)
	}
}
