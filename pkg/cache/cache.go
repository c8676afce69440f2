package cache

import (
	"context"
	"fmt"
	"time"
)

// Backend types.
const (
	TypeMemory = "memory"
	TypeDisk   = "disk"
)

// Cache is a key/value store with per-entry expiry.
type Cache interface {
	// Get returns the value for key. ok is false on a miss or an expired entry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value for ttl. ttl <= 0 uses the default TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend's resources.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Type is "memory" or "disk".
	Type string

	// TTL is the default entry lifetime.
	TTL time.Duration

	// CleanupInterval is how often the memory janitor purges expired items.
	CleanupInterval time.Duration

	// Path is the SQLite database file for the disk backend.
	Path string

	// CleanupSchedule is the cron spec for the disk cleanup job.
	CleanupSchedule string
}

// New creates the backend described by cfg. For the disk backend a cleanup
// scheduler is started and stopped by Close.
func New(cfg Config) (Cache, error) {
	switch cfg.Type {
	case TypeMemory, "":
		return NewMemory(cfg.TTL, cfg.CleanupInterval), nil
	case TypeDisk:
		disk, err := NewDisk(cfg.Path, cfg.TTL)
		if err != nil {
			return nil, err
		}
		if cfg.CleanupSchedule != "" {
			sched := NewScheduler(disk)
			if err := sched.Start(cfg.CleanupSchedule); err != nil {
				disk.Close()
				return nil, err
			}
			disk.scheduler = sched
		}
		return disk, nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Type)
	}
}
