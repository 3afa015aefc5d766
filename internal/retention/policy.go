// Package retention removes dated snapshots that fall outside a tier's
// retention window.
package retention

import (
	"context"
	"fmt"
	"time"

	apperrors "flexbackup-manager/internal/errors"
	"flexbackup-manager/internal/logging"
	"flexbackup-manager/internal/snapshot"
)

// SelectStale splits snapshots, which must be sorted oldest first, into the
// ones to remove and the keep most recent ones.
func SelectStale(snapshots []snapshot.Snapshot, keep int) (stale, kept []snapshot.Snapshot) {
	if keep < 0 {
		keep = 0
	}
	if len(snapshots) <= keep {
		return nil, append([]snapshot.Snapshot(nil), snapshots...)
	}
	cut := len(snapshots) - keep
	stale = append([]snapshot.Snapshot(nil), snapshots[:cut]...)
	kept = append([]snapshot.Snapshot(nil), snapshots[cut:]...)
	return stale, kept
}

// SetResult describes one set's sweep
type SetResult struct {
	Set     string              `json:"set"`
	Keep    int                 `json:"keep"`
	Removed []snapshot.Snapshot `json:"removed"`
	Kept    []snapshot.Snapshot `json:"kept"`
	Skipped []string            `json:"skipped,omitempty"`
	DryRun  bool                `json:"dry_run"`
	Error   string              `json:"error,omitempty"`
}

// TierResult aggregates the sweeps of all sets in a tier
type TierResult struct {
	Tier     string        `json:"tier"`
	Keep     int           `json:"keep"`
	Sets     []*SetResult  `json:"sets"`
	Failed   []string      `json:"failed,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Sweeper applies retention counts to snapshot stores
type Sweeper struct {
	store  snapshot.Store
	logger *logging.Logger
}

// NewSweeper creates a sweeper over store
func NewSweeper(store snapshot.Store, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Sweeper{store: store, logger: logger}
}

// Candidates returns the snapshots of set that a sweep would remove, along
// with the full listing.
func (s *Sweeper) Candidates(set string, keep int) (*SetResult, error) {
	if keep <= 0 {
		return nil, apperrors.NewConfigurationError(
			fmt.Sprintf("retention count for %s must be positive, got %d", set, keep), nil)
	}

	listing, err := s.store.List(set)
	if err != nil {
		return nil, apperrors.WrapError(err, fmt.Sprintf("error listing directory for garbage collection: %s", set))
	}

	stale, kept := SelectStale(listing.Snapshots, keep)

	return &SetResult{
		Set:     set,
		Keep:    keep,
		Removed: stale,
		Kept:    kept,
		Skipped: listing.Skipped,
	}, nil
}

// SweepSet removes the stale snapshots of one set. The first removal failure
// aborts the set's pass; snapshots removed before it stay removed.
func (s *Sweeper) SweepSet(ctx context.Context, set string, keep int, dryRun bool) (*SetResult, error) {
	result, err := s.Candidates(set, keep)
	if err != nil {
		s.logger.LogRetentionSweep(set, keep, 0, dryRun, err)
		return nil, err
	}
	result.DryRun = dryRun

	if len(result.Removed) == 0 {
		s.logger.LogRetentionSweep(set, keep, 0, dryRun, nil)
		return result, nil
	}

	removed := make([]snapshot.Snapshot, 0, len(result.Removed))
	for _, snap := range result.Removed {
		if err := ctx.Err(); err != nil {
			result.Removed = removed
			return result, apperrors.NewAppError(apperrors.ErrorTypeInterruption, "garbage collection interrupted", err)
		}

		if dryRun {
			s.logger.WithField("set", set).Infof("Would remove old backup: %s", snap.Path)
			removed = append(removed, snap)
			continue
		}

		s.logger.WithField("set", set).Infof("Removing old backup: %s", snap.Path)
		if err := s.store.Remove(snap.Path); err != nil {
			result.Removed = removed
			gcErr := apperrors.NewRetentionError(
				fmt.Sprintf("error removing directory '%s' during GC", snap.Path), err).
				WithContext("set", set).
				WithContext("snapshot", snap.Name)
			result.Error = gcErr.Error()
			s.logger.LogRetentionSweep(set, keep, len(removed), dryRun, gcErr)
			return result, gcErr
		}
		removed = append(removed, snap)
	}

	result.Removed = removed
	s.logger.LogRetentionSweep(set, keep, len(removed), dryRun, nil)
	return result, nil
}

// SweepTier sweeps every set of a tier. A failing set is recorded and does
// not stop its siblings.
func (s *Sweeper) SweepTier(ctx context.Context, tier string, sets []string, keep int, dryRun bool) *TierResult {
	start := time.Now()
	result := &TierResult{Tier: tier, Keep: keep}

	for _, set := range sets {
		if ctx.Err() != nil {
			result.Failed = append(result.Failed, set)
			continue
		}

		setResult, err := s.SweepSet(ctx, set, keep, dryRun)
		if err != nil {
			result.Failed = append(result.Failed, set)
			if setResult == nil {
				setResult = &SetResult{Set: set, Keep: keep, DryRun: dryRun}
			}
			setResult.Error = err.Error()
		}
		result.Sets = append(result.Sets, setResult)
	}

	result.Duration = time.Since(start)
	return result
}
