package identity

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/logger"
)

// Config controls the identity caches.
type Config struct {
	SnapshotTTL  time.Duration
	DirectoryTTL time.Duration
}

// Service supplies identity snapshots and the email directory, caching
// both with independent TTLs. Snapshots live in a per-user in-process
// TTL cache; the directory goes through the pluggable DirectoryCache so
// it can be shared via Redis.
type Service struct {
	store     Store
	snapshots *gocache.Cache
	directory DirectoryCache
	logger    *logger.Logger
}

// NewService creates the identity service.
func NewService(store Store, directory DirectoryCache, cfg Config, log *logger.Logger) *Service {
	if directory == nil {
		directory = NewMemoryDirectoryCache(cfg.DirectoryTTL)
	}
	return &Service{
		store:     store,
		snapshots: gocache.New(cfg.SnapshotTTL, 2*cfg.SnapshotTTL),
		directory: directory,
		logger:    log,
	}
}

// Snapshot returns the identifier snapshot for a user, from cache when
// fresh.
func (s *Service) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	if v, ok := s.snapshots.Get(userID); ok {
		return v.(*Snapshot), nil
	}
	if s.store == nil {
		return nil, ErrNoStore
	}

	snapshot, err := s.store.FetchSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.snapshots.Set(userID, snapshot, gocache.DefaultExpiration)
	return snapshot, nil
}

// Directory returns the email to user-id mapping, from cache when fresh.
func (s *Service) Directory(ctx context.Context) (Directory, error) {
	if dir, ok := s.directory.Get(ctx); ok {
		return dir, nil
	}
	if s.store == nil {
		return nil, ErrNoStore
	}

	dir, err := s.store.FetchDirectory(ctx)
	if err != nil {
		return nil, err
	}

	s.directory.Set(ctx, dir)
	return dir, nil
}

// Invalidate drops cached identity data for a user. Must be called when
// a user's profile changes; the directory is dropped too since emails
// may have moved.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	s.snapshots.Delete(userID)
	s.directory.Invalidate(ctx)
	s.logger.Debug("Identity caches invalidated", zap.String("user_id", userID))
}
