package executor

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Placeholders understood by RenderConfig.
const (
	PlaceholderSetName        = "@@SET_NAME@@"
	PlaceholderSetContent     = "@@SET_CONTENT@@"
	PlaceholderStoreDir       = "@@BACKUP_STORE_DIR@@"
	PlaceholderExcludePattern = "@@BACKUP_EXCLUDE_PATTERN@@"
	PlaceholderGzip           = "@@GZIP@@"
	PlaceholderTar            = "@@TAR@@"
)

// DefaultTemplate is used when no template file is configured.
//
//go:embed default.conf.tmpl
var DefaultTemplate string

var placeholderPattern = regexp.MustCompile(`@@[A-Z0-9_]+@@`)

// TemplateValues are substituted into the executor configuration template.
type TemplateValues struct {
	SetName         string
	SetContent      []string
	StoreDir        string
	ExcludePatterns []string
	Gzip            string
	Tar             string
}

// LoadTemplate reads a configuration template and checks that it only uses
// known placeholders. An empty path selects DefaultTemplate.
func LoadTemplate(path string) (string, error) {
	if path == "" {
		return DefaultTemplate, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read config template %s: %w", path, err)
	}
	tmpl := string(data)
	if unknown := unknownPlaceholders(tmpl); len(unknown) > 0 {
		return "", fmt.Errorf("config template %s uses unknown placeholders: %s", path, strings.Join(unknown, ", "))
	}
	return tmpl, nil
}

func unknownPlaceholders(tmpl string) []string {
	known := map[string]bool{
		PlaceholderSetName:        true,
		PlaceholderSetContent:     true,
		PlaceholderStoreDir:       true,
		PlaceholderExcludePattern: true,
		PlaceholderGzip:           true,
		PlaceholderTar:            true,
	}
	var unknown []string
	seen := map[string]bool{}
	for _, p := range placeholderPattern.FindAllString(tmpl, -1) {
		if !known[p] && !seen[p] {
			seen[p] = true
			unknown = append(unknown, p)
		}
	}
	return unknown
}

// RenderConfig substitutes values into tmpl.
func RenderConfig(tmpl string, v TemplateValues) (string, error) {
	if unknown := unknownPlaceholders(tmpl); len(unknown) > 0 {
		return "", fmt.Errorf("unknown placeholders in template: %s", strings.Join(unknown, ", "))
	}
	if v.SetName == "" {
		return "", fmt.Errorf("set name is required")
	}
	if len(v.SetContent) == 0 {
		return "", fmt.Errorf("set %s has no directories to back up", v.SetName)
	}

	r := strings.NewReplacer(
		PlaceholderSetName, v.SetName,
		PlaceholderSetContent, strings.Join(v.SetContent, " "),
		PlaceholderStoreDir, v.StoreDir,
		PlaceholderExcludePattern, ExcludePatternBlock(v.ExcludePatterns),
		PlaceholderGzip, v.Gzip,
		PlaceholderTar, v.Tar,
	)
	return r.Replace(tmpl), nil
}

// ExcludePatternBlock renders exclude patterns as flexbackup perl
// assignments, one per line.
func ExcludePatternBlock(patterns []string) string {
	var b strings.Builder
	for i, pat := range patterns {
		escaped := strings.ReplaceAll(strings.ReplaceAll(pat, `\`, `\\`), `'`, `\'`)
		fmt.Fprintf(&b, "$exclude_expr[%d] = '%s';\n", i, escaped)
	}
	return b.String()
}
