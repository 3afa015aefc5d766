package display

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"flexbackup-manager/internal/retention"
	"flexbackup-manager/internal/schedule"
	"flexbackup-manager/internal/scheduler"
	"flexbackup-manager/internal/snapshot"

	"gopkg.in/yaml.v3"
)

// Format selects how results are printed
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a --format value
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (table, json, yaml)", s)
	}
}

// Renderer writes plans and reports in one format
type Renderer struct {
	out    io.Writer
	format Format
	colors *ColorSystem
	width  int
}

// NewRenderer creates a renderer. colors may be nil for plain output.
func NewRenderer(out io.Writer, format Format, colors *ColorSystem) *Renderer {
	if colors == nil {
		colors = NewColorSystem(DarkColorTheme(), false)
	}
	return &Renderer{out: out, format: format, colors: colors, width: -1}
}

// SetWidth fixes the table width; zero disables fitting
func (r *Renderer) SetWidth(width int) {
	r.width = width
}

func (r *Renderer) table(headers ...string) *Table {
	t := NewTable(r.colors, headers...)
	if r.width >= 0 {
		t.SetMaxWidth(r.width)
	}
	return t
}

// PlanView is the printable form of a day's plan
type PlanView struct {
	Plan  *schedule.Plan   `json:"plan" yaml:"plan"`
	Cycle []schedule.Group `json:"cycle" yaml:"cycle"`
}

// RenderPlan prints the plan and the full cycle with today marked
func (r *Renderer) RenderPlan(plan *schedule.Plan, cycle []schedule.Group) error {
	if r.format != FormatTable {
		return r.encode(PlanView{Plan: plan, Cycle: cycle})
	}

	fmt.Fprintf(r.out, "%s %s (cycle index %d/%d)\n\n",
		r.colors.Colorize("Backup plan for", r.colors.Theme().Primary),
		plan.Date.Format("2006-01-02"), plan.Index, plan.CycleLength)

	t := r.table("LEVEL", "SETS")
	t.AddRow(string(schedule.LevelFull), joinOrDash(plan.Full))
	t.AddRow(string(schedule.LevelIncremental), joinOrDash(plan.Incremental))
	t.RenderTo(r.out)

	if len(cycle) == 0 {
		return nil
	}
	fmt.Fprintln(r.out)
	ct := r.table("DAY", "FULL BACKUP", "")
	ct.SetColumnAlignment(0, AlignRight)
	for i, g := range cycle {
		marker := ""
		if i == plan.Index {
			marker = "<- today"
		}
		ct.AddRow(strconv.Itoa(i), g.String(), marker)
		if i == plan.Index {
			ct.ColorCell(1, r.colors.Theme().Success)
		}
	}
	ct.RenderTo(r.out)
	return nil
}

// RenderReport prints the outcome of a run
func (r *Renderer) RenderReport(report *scheduler.RunReport) error {
	if r.format != FormatTable {
		return r.encode(report)
	}

	title := "Backup run " + report.RunID
	if report.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintln(r.out, r.colors.Colorize(title, r.colors.Theme().Primary))

	t := r.table("SET", "LEVEL", "STATUS", "EXIT", "DURATION", "DETAIL")
	t.SetColumnAlignment(3, AlignRight)
	for _, list := range [][]scheduler.SetReport{report.Incremental, report.Full} {
		for _, s := range list {
			exit, duration := "-", "-"
			if s.Result != nil {
				exit = strconv.Itoa(s.Result.ExitCode)
				duration = s.Result.Duration.Round(time.Second).String()
			}
			t.AddRow(s.Set, string(s.Level), string(s.Status), exit, duration, s.Reason)
			t.ColorCell(2, r.statusColor(s.Status))
		}
	}
	t.RenderTo(r.out)

	if len(report.GC) > 0 {
		fmt.Fprintln(r.out)
		r.renderGC(report.GC)
	}

	if report.Error != "" {
		fmt.Fprintln(r.out, r.colors.Colorize("Run aborted: "+report.Error, r.colors.Theme().Error))
	} else if failed := report.Failed(); len(failed) > 0 {
		fmt.Fprintln(r.out, r.colors.Sprintf(r.colors.Theme().Warning, "%d set(s) failed: %s", len(failed), strings.Join(failed, ", ")))
	}
	return nil
}

func (r *Renderer) renderGC(tiers []*retention.TierResult) {
	t := r.table("TIER", "SET", "KEEP", "REMOVED", "KEPT", "ERROR")
	t.SetColumnAlignment(2, AlignRight)
	for _, tier := range tiers {
		for _, s := range tier.Sets {
			t.AddRow(tier.Tier, s.Set, strconv.Itoa(s.Keep), snapshotNames(s.Removed), snapshotNames(s.Kept), s.Error)
			if s.Error != "" {
				t.ColorCell(5, r.colors.Theme().Error)
			}
		}
	}
	t.RenderTo(r.out)
}

// RenderGC prints the result of a retention-only pass
func (r *Renderer) RenderGC(tiers []*retention.TierResult) error {
	if r.format != FormatTable {
		return r.encode(tiers)
	}
	r.renderGC(tiers)
	return nil
}

// RenderCandidates prints what retention would remove per set
func (r *Renderer) RenderCandidates(candidates map[string]*retention.SetResult) error {
	if r.format != FormatTable {
		return r.encode(candidates)
	}

	sets := make([]string, 0, len(candidates))
	for set := range candidates {
		sets = append(sets, set)
	}
	sort.Strings(sets)

	t := r.table("SET", "KEEP", "WOULD REMOVE", "SKIPPED")
	for _, set := range sets {
		c := candidates[set]
		t.AddRow(set, strconv.Itoa(c.Keep), snapshotNames(c.Removed), strings.Join(c.Skipped, ", "))
		if len(c.Removed) > 0 {
			t.ColorCell(2, r.colors.Theme().Warning)
		}
	}
	t.RenderTo(r.out)
	return nil
}

func (r *Renderer) statusColor(s scheduler.SetStatus) Color {
	switch s {
	case scheduler.StatusCompleted:
		return r.colors.Theme().Success
	case scheduler.StatusSkipped:
		return r.colors.Theme().Warning
	default:
		return r.colors.Theme().Error
	}
}

func (r *Renderer) encode(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if r.format == FormatJSON {
		_, err = fmt.Fprintln(r.out, string(data))
		return err
	}

	// JSON is valid YAML; decoding into a node keeps the field order of
	// the json tags.
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style = 0
	} else if n.Kind == yaml.ScalarNode {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func snapshotNames(snaps []snapshot.Snapshot) string {
	if len(snaps) == 0 {
		return "-"
	}
	names := make([]string, 0, len(snaps))
	for _, s := range snaps {
		names = append(names, s.Name)
	}
	return strings.Join(names, ", ")
}

func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}
