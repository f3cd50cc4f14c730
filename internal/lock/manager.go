package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sellside/coedit/internal/observability"
	"github.com/sellside/coedit/model"
)

// VersionSource reports a record's current version number for the known
// version check in DetectConflict. Satisfied by the record store.
type VersionSource interface {
	CurrentVersion(ctx context.Context, id int64) (int64, error)
}

// Options configure a Manager.
type Options struct {
	// DefaultTTL applies when an acquire or refresh gives no TTL.
	DefaultTTL time.Duration
	// MaxTTL caps caller-supplied TTLs.
	MaxTTL time.Duration
	// SweepGrace keeps lapsed rows for this long before Sweep reclaims
	// them, so an in-flight refresh never races the sweeper.
	SweepGrace time.Duration
}

// Manager guarantees at most one concurrent editor per resource, with
// automatic expiry so a crashed client can never lock a resource out
// permanently.
type Manager struct {
	store    Store
	versions VersionSource
	authz    model.Authorizer
	logger   *zap.Logger
	metrics  *observability.Metrics
	opts     Options
	now      func() time.Time
}

// AcquireOptions modify a single acquire call.
type AcquireOptions struct {
	TTL time.Duration
	// Force supersedes another holder's active lock. It is an
	// administrative recovery path gated by the lock:force permission;
	// callers must surface it as a destructive confirmation.
	Force bool
}

// NewManager creates a lock manager.
func NewManager(store Store, versions VersionSource, authz model.Authorizer, logger *zap.Logger, metrics *observability.Metrics, opts Options) *Manager {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 30 * time.Minute
	}
	if opts.MaxTTL < opts.DefaultTTL {
		opts.MaxTTL = opts.DefaultTTL
	}
	if opts.SweepGrace <= 0 {
		opts.SweepGrace = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		versions: versions,
		authz:    authz,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Acquire claims a resource for the holder. Re-acquiring one's own
// active lock is idempotent and extends it. An active lock held by
// someone else fails fast with CONFLICT/LOCKED_BY_OTHER — acquisition
// never queues.
func (m *Manager) Acquire(ctx context.Context, resourceType string, resourceID int64, holderID string, opts AcquireOptions) (model.Lock, error) {
	ctx, span := observability.StartSpan(ctx, "lock.Acquire",
		observability.AttrResourceType.String(resourceType),
		observability.AttrResourceID.Int64(resourceID),
		observability.AttrActorID.String(holderID),
	)
	var err error
	defer func() { observability.EndSpanWithError(span, err) }()

	now := m.now()
	candidate := model.Lock{
		ID:              uuid.New().String(),
		ResourceType:    resourceType,
		ResourceID:      resourceID,
		HolderID:        holderID,
		AcquiredAt:      now,
		ExpiresAt:       now.Add(m.clampTTL(opts.TTL)),
		LastRefreshedAt: now,
	}

	if opts.Force {
		var lk model.Lock
		lk, err = m.forceAcquire(ctx, candidate, now)
		return lk, err
	}

	lk, acquireErr := m.store.Acquire(ctx, candidate, now)
	if acquireErr != nil {
		err = acquireErr
		if model.ReasonOf(err) == model.ConflictLockedByOther {
			m.metrics.RecordLockAcquire(resourceType, "conflict")
		}
		return model.Lock{}, err
	}

	if lk.ID == candidate.ID {
		m.metrics.RecordLockAcquire(resourceType, "acquired")
		m.logger.Info("lock acquired",
			zap.String("lock_id", lk.ID),
			zap.String("resource_type", resourceType),
			zap.Int64("resource_id", resourceID),
			zap.String("holder_id", holderID),
			zap.Time("expires_at", lk.ExpiresAt),
		)
	} else {
		// Same holder re-acquired: the store kept the original lock.
		m.metrics.RecordLockAcquire(resourceType, "extended")
	}
	return lk, nil
}

// forceAcquire supersedes whatever lock exists after an authorization
// check, and logs the takeover distinctly for audit.
func (m *Manager) forceAcquire(ctx context.Context, candidate model.Lock, now time.Time) (model.Lock, error) {
	if m.authz != nil {
		ok, err := m.authz.Allowed(ctx, candidate.HolderID, model.PermForceLock, nil)
		if err != nil {
			return model.Lock{}, fmt.Errorf("authorize force acquire: %w", err)
		}
		if !ok {
			return model.Lock{}, model.NewForbiddenError(
				fmt.Sprintf("actor %q may not force-acquire locks", candidate.HolderID),
			)
		}
	}

	existing, err := m.store.GetActive(ctx, candidate.ResourceType, candidate.ResourceID, now)
	if err != nil {
		return model.Lock{}, err
	}

	if err := m.store.Replace(ctx, candidate); err != nil {
		return model.Lock{}, err
	}

	m.metrics.RecordLockAcquire(candidate.ResourceType, "forced")
	supersededHolder := ""
	if existing != nil {
		supersededHolder = existing.HolderID
	}
	m.logger.Warn("lock forcibly acquired",
		zap.String("lock_id", candidate.ID),
		zap.String("resource_type", candidate.ResourceType),
		zap.Int64("resource_id", candidate.ResourceID),
		zap.String("holder_id", candidate.HolderID),
		zap.String("superseded_holder", supersededHolder),
	)
	return candidate, nil
}

// Release removes the holder's lock. Only the holder may release; an
// override goes through Acquire with Force instead.
func (m *Manager) Release(ctx context.Context, lockID, holderID string) error {
	lk, err := m.store.GetByID(ctx, lockID)
	if err != nil {
		return err
	}
	if !lk.Active(m.now()) {
		return model.NewNotFoundError(fmt.Sprintf("lock %q has already expired", lockID))
	}
	if lk.HolderID != holderID {
		return model.NewForbiddenError(
			fmt.Sprintf("lock %q is held by %q, not %q", lockID, lk.HolderID, holderID),
		)
	}

	if err := m.store.Delete(ctx, lockID); err != nil {
		return err
	}
	m.metrics.RecordLockRelease()
	m.logger.Info("lock released",
		zap.String("lock_id", lockID),
		zap.String("holder_id", holderID),
	)
	return nil
}

// Refresh extends a still-active lock. A lapsed or released lock fails
// with NOT_FOUND; callers must re-acquire rather than resurrect it.
func (m *Manager) Refresh(ctx context.Context, lockID string, ttl time.Duration) (model.Lock, error) {
	now := m.now()
	lk, err := m.store.UpdateExpiry(ctx, lockID, now.Add(m.clampTTL(ttl)), now, now)
	if err != nil {
		if model.CodeOf(err) == model.ErrNotFound {
			m.metrics.RecordLockRefresh("expired")
		}
		return model.Lock{}, err
	}
	m.metrics.RecordLockRefresh("ok")
	return lk, nil
}

// ActiveLock returns the resource's active lock, or nil when none
// exists. Expiry is evaluated here, at read time.
func (m *Manager) ActiveLock(ctx context.Context, resourceType string, resourceID int64) (*model.Lock, error) {
	return m.store.GetActive(ctx, resourceType, resourceID, m.now())
}

// DetectConflict probes a resource on behalf of a requester. A stale
// knownVersion wins over lock state: even a legitimate lock holder must
// reload when the underlying content has moved.
func (m *Manager) DetectConflict(ctx context.Context, resourceType string, resourceID int64, requesterID string, knownVersion *int64) (model.ConflictInfo, error) {
	if knownVersion != nil && m.versions != nil {
		current, err := m.versions.CurrentVersion(ctx, resourceID)
		if err != nil {
			return model.ConflictInfo{}, err
		}
		if current != *knownVersion {
			m.metrics.RecordConflictProbe("version_mismatch")
			return model.ConflictInfo{
				HasConflict:    true,
				Reason:         model.ConflictVersionMismatch,
				CurrentVersion: current,
			}, nil
		}
	}

	lk, err := m.store.GetActive(ctx, resourceType, resourceID, m.now())
	if err != nil {
		return model.ConflictInfo{}, err
	}
	if lk == nil || lk.HolderID == requesterID {
		m.metrics.RecordConflictProbe("none")
		return model.ConflictInfo{HasConflict: false, Lock: lk}, nil
	}

	m.metrics.RecordConflictProbe("locked_by_other")
	return model.ConflictInfo{
		HasConflict: true,
		Reason:      model.ConflictLockedByOther,
		HolderID:    lk.HolderID,
		Lock:        lk,
	}, nil
}

// Sweep reclaims lock rows lapsed longer than the grace period. Storage
// reclamation only: read-time expiry already makes lapsed rows invisible.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	cutoff := m.now().Add(-m.opts.SweepGrace)
	reclaimed, err := m.store.DeleteLapsedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		m.metrics.RecordSweepReclaimed(reclaimed)
		m.logger.Debug("lock sweep reclaimed rows", zap.Int64("count", reclaimed))
	}
	return reclaimed, nil
}

func (m *Manager) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return m.opts.DefaultTTL
	}
	if ttl > m.opts.MaxTTL {
		return m.opts.MaxTTL
	}
	return ttl
}
