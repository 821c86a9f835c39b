package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/forge-games/contribot/internal/github"
	"github.com/forge-games/contribot/internal/models"
	"github.com/forge-games/contribot/internal/points"
	"github.com/forge-games/contribot/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ActivityFetcher is the slice of the GitHub client the reconciler
// needs; tests substitute it.
type ActivityFetcher interface {
	DeltaActivity(ctx context.Context, repo *github.Repo, handle string, since time.Time) (github.Activity, error)
}

// Reconciler periodically walks every linked user, fetches activity
// since the user's checkpoint and converts it into points and badges.
type Reconciler struct {
	storage *storage.Storage
	fetcher ActivityFetcher

	// repoFn yields the currently active repository, or nil when none
	// is set. The holder itself lives in the bot layer.
	repoFn func() *github.Repo

	interval time.Duration
	workers  int

	// passMu guarantees at most one pass at a time; trigger is
	// buffered so overlapping triggers coalesce into one pending pass.
	passMu  sync.Mutex
	trigger chan struct{}

	lastMu   sync.Mutex
	lastPass time.Time
}

func New(store *storage.Storage, fetcher ActivityFetcher, repoFn func() *github.Repo, interval time.Duration, workers int) *Reconciler {
	return &Reconciler{
		storage:  store,
		fetcher:  fetcher,
		repoFn:   repoFn,
		interval: interval,
		workers:  workers,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests an immediate pass. Non-blocking: if a pass is
// already pending the request is coalesced.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run drives passes until ctx is cancelled. Two producers feed it:
// the fixed-interval ticker and Trigger.
func (r *Reconciler) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	logger := logrus.WithField("component", "reconciler")

	for {
		select {
		case <-t.C:
			if err := r.RunOnce(ctx); err != nil {
				logger.Errorf("periodic pass failed: %v", err)
			}
		case <-r.trigger:
			if err := r.RunOnce(ctx); err != nil {
				logger.Errorf("triggered pass failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

type delta struct {
	activity github.Activity
	err      error
}

// RunOnce executes a single reconciliation pass. If another pass is in
// flight the call is dropped; if no repository is active it is a
// no-op. Every user's checkpoint is advanced to the pass start time
// whether or not that user's fetch succeeded.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	if !r.passMu.TryLock() {
		return nil
	}
	defer r.passMu.Unlock()

	repo := r.repoFn()
	if repo == nil {
		return nil
	}

	start := time.Now().UTC()
	logger := logrus.WithFields(logrus.Fields{
		"component": "reconciler",
		"pass_id":   uuid.New().String(),
		"repo":      repo.FullName(),
	})

	users, err := r.storage.ListUsers(ctx)
	if err != nil {
		return err
	}
	logger.Debugf("starting pass over %d users", len(users))

	deltas := make([]delta, len(users))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.workers)
	for i, user := range users {
		i, user := i, user
		eg.Go(func() error {
			activity, err := r.fetcher.DeltaActivity(egCtx, repo, user.GithubUser, user.LastActivityCheck)
			deltas[i] = delta{activity: activity, err: err}
			return nil
		})
	}
	// Workers never return errors; failures stay per-user in deltas.
	_ = eg.Wait()

	for i, user := range users {
		r.applyDelta(ctx, logger, user, deltas[i], start)
	}

	r.lastMu.Lock()
	r.lastPass = start
	r.lastMu.Unlock()

	logger.Infof("pass complete in %v", time.Since(start))
	return nil
}

// LastPass reports the start time of the most recently completed
// pass; zero when none has run yet.
func (r *Reconciler) LastPass() time.Time {
	r.lastMu.Lock()
	defer r.lastMu.Unlock()
	return r.lastPass
}

// applyDelta folds one user's fetched delta into the record and
// persists it. A fetch failure leaves points and badges untouched but
// the checkpoint still advances, so a persistently erroring user does
// not accumulate an unbounded backlog.
func (r *Reconciler) applyDelta(ctx context.Context, logger *logrus.Entry, user *models.User, d delta, start time.Time) {
	if d.err != nil {
		logger.Errorf("fetching delta for @%s: %v", user.GithubUser, d.err)
	} else if earned := points.Compute(d.activity.Commits, d.activity.Issues, d.activity.PullRequests); earned > 0 {
		user.Points += earned
		if added := points.ApplyBadges(user); len(added) > 0 {
			logger.Infof("@%s earned badges %v", user.GithubUser, added)
		}
		logger.Infof("@%s: +%d pts", user.GithubUser, earned)
	}

	user.LastActivityCheck = start
	if err := r.storage.SaveUser(ctx, user); err != nil {
		logger.Errorf("saving %s: %v", user, err)
	}
}
