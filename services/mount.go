package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	mountCacheTTL       = 30 * time.Second
	mountHealthInterval = 45 * time.Second
	mountRefreshDepth   = 3
	mountRetryBaseDelay = 500 * time.Millisecond
)

// MountGuard wraps filesystem operations against potentially flaky network
// mounts with stale-handle retry and a short-lived availability cache.
type MountGuard struct {
	mu    sync.Mutex
	cache map[string]mountStatus
	roots []string

	// replaceable in tests
	refreshFn func(string)
	sleepFn   func(time.Duration)
}

type mountStatus struct {
	available bool
	checkedAt time.Time
}

// NewMountGuard creates a guard that health-checks the given mount roots.
func NewMountGuard(roots ...string) *MountGuard {
	g := &MountGuard{
		cache: make(map[string]mountStatus),
		roots: roots,
	}
	g.refreshFn = g.refreshMount
	g.sleepFn = time.Sleep
	return g
}

// WithRetry executes op, retrying up to maxAttempts when the error identifies
// a stale remote-filesystem handle. Each retry is preceded by a mount refresh
// and an exponential backoff step. Any other error class propagates
// immediately.
func (m *MountGuard) WithRetry(op func() error, path string, maxAttempts int) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			m.refreshFn(path)
			m.sleepFn(mountRetryBaseDelay << (attempt - 1))
		}
		err = op()
		if err == nil {
			return nil
		}
		if !isStaleHandle(err) {
			return err
		}
		log.Printf("Stale handle on %s (attempt %d/%d): %v", path, attempt+1, maxAttempts, err)
	}
	return fmt.Errorf("operation on %s failed after %d attempts: %w", path, maxAttempts, err)
}

// Probe reports whether path is reachable, using a cached answer when fresh.
func (m *MountGuard) Probe(path string) bool {
	m.mu.Lock()
	status, ok := m.cache[path]
	m.mu.Unlock()
	if ok && time.Since(status.checkedAt) < mountCacheTTL {
		return status.available
	}
	return m.probeNow(path)
}

// EnsureDir validates that dir exists (creating it if needed) and is
// listable, retrying through the stale-handle path. A failure here means the
// destination mount is genuinely unreachable.
func (m *MountGuard) EnsureDir(dir string) error {
	err := m.WithRetry(func() error {
		if err := os.MkdirAll(dir, 0o775); err != nil {
			return err
		}
		_, err := os.ReadDir(dir)
		return err
	}, dir, 3)
	if err != nil {
		m.storeStatus(dir, false)
		return Wrap(ErrMountUnavailable, fmt.Sprintf("destination %s is not reachable", dir), err)
	}
	m.storeStatus(dir, true)
	return nil
}

// RunHealthMonitor probes all known mount roots on a fixed interval so that
// request-path probes are usually cache hits. Blocks until ctx is done.
func (m *MountGuard) RunHealthMonitor(ctx context.Context) {
	ticker := time.NewTicker(mountHealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, root := range m.roots {
				if root == "" {
					continue
				}
				if !m.probeNow(root) {
					log.Printf("Mount health check: %s unavailable, refreshing", root)
					m.refreshMount(root)
					m.probeNow(root)
				}
			}
		}
	}
}

func (m *MountGuard) probeNow(path string) bool {
	available := true
	if _, err := os.ReadDir(path); err != nil {
		available = false
	}
	m.storeStatus(path, available)
	return available
}

func (m *MountGuard) storeStatus(path string, available bool) {
	m.mu.Lock()
	m.cache[path] = mountStatus{available: available, checkedAt: time.Now()}
	m.mu.Unlock()
}

// refreshMount touches the path and each ancestor directory up to a bounded
// depth, forcing the network filesystem client to revalidate its handles.
func (m *MountGuard) refreshMount(path string) {
	current := path
	for i := 0; i < mountRefreshDepth; i++ {
		if current == "" || current == "/" || current == "." {
			break
		}
		// stat + list force the client to revalidate the cached handle
		_, _ = os.Stat(current)
		_, _ = os.ReadDir(current)
		current = filepath.Dir(current)
	}
}

// isStaleHandle reports whether err identifies a stale NFS/network file
// handle, the only error class eligible for mount-refresh retry.
func isStaleHandle(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ESTALE) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "stale")
}
