package cmd

import (
	"fmt"

	"flexbackup-manager/internal/config"
	apperrors "flexbackup-manager/internal/errors"
	"flexbackup-manager/internal/schedule"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (a *app) newConfigCommand() *cobra.Command {
	var (
		check  bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or check a configuration file",
		Long: `Without flags, print a sample configuration that can be used with --config.

Examples:
  # Write a sample configuration
  flexbackup-manager config --output backup_list.yaml

  # Validate the configuration in use and summarize the rotation
  flexbackup-manager config --check --config /etc/flexbackup/backup_list.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if check {
				cfg, err := a.loadConfig()
				if err != nil {
					return err
				}
				tier1, tier2 := cfg.TierSets()
				length := schedule.CycleLength(len(cfg.BackupTiers.Tier1), len(cfg.BackupTiers.Tier2))
				fmt.Fprintf(out, "Configuration %s is valid\n", a.v.GetString("config"))
				fmt.Fprintf(out, "  tier1: %d set(s), keep %d\n", len(tier1), cfg.Retention.Tier1)
				fmt.Fprintf(out, "  tier2: %d set(s), keep %d\n", len(tier2), cfg.Retention.Tier2)
				fmt.Fprintf(out, "  cycle length: %d day(s)\n", length)
				return nil
			}

			sample := config.GenerateSampleConfig()
			if output != "" {
				if err := config.Save(sample, output); err != nil {
					return apperrors.NewFilesystemError("Failed to write sample configuration", err)
				}
				fmt.Fprintf(out, "Sample configuration written to %s\n", output)
				return nil
			}

			data, err := yaml.Marshal(sample)
			if err != nil {
				return fmt.Errorf("failed to marshal sample configuration: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "validate the file given by --config")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the sample to this file instead of stdout")
	return cmd
}
