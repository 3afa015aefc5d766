package cmd

import (
	apperrors "flexbackup-manager/internal/errors"
	"flexbackup-manager/internal/schedule"

	"github.com/spf13/cobra"
)

func (a *app) newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show which sets are backed up on a day",
		Long: `Print the full and incremental sets for a day together with the whole
rotation cycle. Nothing is run and nothing on disk is touched.

Examples:
  flexbackup-manager plan
  flexbackup-manager plan --date=2024-03-01 --format=yaml`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.bindDate(cmd)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			now, err := a.now()
			if err != nil {
				return err
			}

			tiers := cfg.BackupTiers
			plan, err := schedule.PlanFor(tiers.Tier1, tiers.Tier2, cfg.IncrementalFrequency, now)
			if err != nil {
				return apperrors.NewConfigurationError("Failed to compute backup plan", err)
			}
			cycle, err := schedule.BuildCycle(tiers.Tier1, tiers.Tier2)
			if err != nil {
				return apperrors.NewConfigurationError("Failed to build backup cycle", err)
			}
			return a.newRenderer(cmd.OutOrStdout()).RenderPlan(plan, cycle)
		},
	}
	cmd.Flags().String("date", "", "day to plan (YYYY-MM-DD, default today)")
	return cmd
}
