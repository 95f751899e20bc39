package interactions

import (
	"context"
	"time"

	"tidepool/internal/counters"
	"tidepool/internal/models"
	"tidepool/internal/observability"
	"tidepool/internal/repository"
)

// Drift is one detected mismatch between a cached counter and the row count
// it should mirror.
type Drift struct {
	Key           counters.Key
	Cached        int64
	Authoritative int64
}

// Reconciler sweeps cached counters against the rows and reports drift.
// Repair rebuilds the drifted counter from the rows; detection alone is the
// default so a sweep can run read-only.
type Reconciler struct {
	likes    repository.LikeRepository
	comments repository.CommentRepository
	counters *counters.Cache
	logger   *observability.Logger
}

func NewReconciler(
	likes repository.LikeRepository,
	commentRepo repository.CommentRepository,
	counterCache *counters.Cache,
	logger *observability.Logger,
) *Reconciler {
	if logger == nil {
		logger = observability.GlobalLogger
	}
	return &Reconciler{
		likes:    likes,
		comments: commentRepo,
		counters: counterCache,
		logger:   logger,
	}
}

// SweepLikes compares the cached like counter of every target that has
// active likes against the rows. With repair set, drifted counters are
// rebuilt from the active actor IDs so membership answers stay correct too.
func (r *Reconciler) SweepLikes(ctx context.Context, targetType string, repair bool) ([]Drift, error) {
	targetIDs, err := r.likes.ActiveTargetIDs(ctx, targetType)
	if err != nil {
		return nil, err
	}

	var drifts []Drift
	for _, targetID := range targetIDs {
		key := counters.Key{TargetType: targetType, TargetID: targetID, Metric: counters.MetricLikes}
		drift, err := r.check(ctx, key, func() ([]uint, error) {
			return r.likes.ActiveActorIDs(ctx, targetType, targetID)
		}, repair)
		if err != nil {
			return drifts, err
		}
		if drift != nil {
			drifts = append(drifts, *drift)
		}
	}
	return drifts, nil
}

// SweepComments compares the cached comment counter of every target that has
// comments against the rows, rebuilding drifted counters when repair is set.
func (r *Reconciler) SweepComments(ctx context.Context, targetType string, repair bool) ([]Drift, error) {
	targetIDs, err := r.comments.TargetIDs(ctx, targetType)
	if err != nil {
		return nil, err
	}

	var drifts []Drift
	for _, targetID := range targetIDs {
		drift, err := r.CheckComments(ctx, targetType, targetID, repair)
		if err != nil {
			return drifts, err
		}
		if drift != nil {
			drifts = append(drifts, *drift)
		}
	}
	return drifts, nil
}

// CheckComments compares one target's cached comment counter against its
// rows.
func (r *Reconciler) CheckComments(ctx context.Context, targetType string, targetID uint, repair bool) (*Drift, error) {
	key := counters.Key{TargetType: targetType, TargetID: targetID, Metric: counters.MetricComments}
	return r.check(ctx, key, func() ([]uint, error) {
		return r.comments.IDsForTarget(ctx, targetType, targetID)
	}, repair)
}

// check compares the cached count against the authoritative member list.
// Repair rebuilds the set from those members, restoring count and membership
// in one step.
func (r *Reconciler) check(ctx context.Context, key counters.Key, members func() ([]uint, error), repair bool) (*Drift, error) {
	cached, err := r.counters.GetCount(ctx, key)
	if err != nil {
		return nil, err
	}
	ids, err := members()
	if err != nil {
		return nil, err
	}
	rows := int64(len(ids))
	if cached == rows {
		return nil, nil
	}

	observability.ReconciliationDrift.WithLabelValues(string(key.Metric)).Inc()
	drift := &Drift{Key: key, Cached: cached, Authoritative: rows}
	err = models.NewConsistencyDrift(key.String(), cached, rows)
	r.logger.Warn("counter drift detected",
		"key", key.String(),
		"cached", cached,
		"authoritative", rows,
		"repair", repair,
		"error", err)

	if repair {
		if err := r.counters.Rebuild(ctx, key, ids); err != nil {
			return drift, err
		}
	}
	return drift, nil
}

// RunPeriodic sweeps like and comment counters on an interval until the
// context ends.
func (r *Reconciler) RunPeriodic(ctx context.Context, targetType string, interval time.Duration, repair bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runSweep(ctx, "reconcile_likes", targetType, repair, r.SweepLikes)
			r.runSweep(ctx, "reconcile_comments", targetType, repair, r.SweepComments)
		}
	}
}

func (r *Reconciler) runSweep(
	ctx context.Context,
	op string,
	targetType string,
	repair bool,
	sweep func(context.Context, string, bool) ([]Drift, error),
) {
	start := time.Now()
	observability.LogAsyncOperationStart(ctx, op, map[string]interface{}{
		"target_type": targetType,
		"repair":      repair,
	})
	drifts, err := sweep(ctx, targetType, repair)
	if err != nil {
		observability.LogAsyncOperationError(ctx, op, err, nil)
		return
	}
	observability.LogAsyncOperationEnd(ctx, op, map[string]interface{}{
		"target_type": targetType,
		"drifts":      len(drifts),
		"duration":    time.Since(start).String(),
	})
}
