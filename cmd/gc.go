package cmd

import (
	"fmt"

	apperrors "flexbackup-manager/internal/errors"
	"flexbackup-manager/internal/scheduler"

	"github.com/spf13/cobra"
)

func (a *app) newGCCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Remove snapshots beyond retention",
		Long: `Apply the retention of each tier without running any backup. With
--dry-run the snapshots that would be removed are listed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			logger, err := a.newLogger(cmd)
			if err != nil {
				return err
			}

			dryRun := a.v.GetBool("dry_run")
			s, err := scheduler.New(cfg, scheduler.Options{Logger: logger, Clock: a.clock, DryRun: dryRun})
			if err != nil {
				return err
			}
			renderer := a.newRenderer(cmd.OutOrStdout())

			if dryRun {
				candidates, cerr := s.Candidates()
				if err := renderer.RenderCandidates(candidates); err != nil {
					return err
				}
				if cerr != nil {
					return apperrors.NewRetentionError("Failed to list snapshots", cerr)
				}
				return nil
			}

			tiers := s.CollectGarbage(cmd.Context())
			if err := renderer.RenderGC(tiers); err != nil {
				return err
			}
			var failed int
			for _, t := range tiers {
				failed += len(t.Failed)
			}
			if failed > 0 {
				return apperrors.NewRetentionError(fmt.Sprintf("retention failed for %d set(s)", failed), nil)
			}
			return nil
		},
	}
}
