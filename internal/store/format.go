package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// drainPoll is how often Drain retries while a session is open
const drainPoll = 10 * time.Millisecond

// ErrSessionsOpen is returned by Quiesced when a namespace still holds an
// open session.
var ErrSessionsOpen = errors.New("store sessions still open")

// Format removes everything below root, leaving an empty directory. It is the
// factory-reset wipe of the configuration filesystem.
func Format(root string) error {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return os.MkdirAll(root, 0700)
	}
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", root, err)
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
	}

	return syncDir(root)
}

// Quiesced returns ErrSessionsOpen if any of the namespaces has an open
// session.
func Quiesced(namespaces ...*Namespace) error {
	for _, ns := range namespaces {
		if n := ns.OpenSessions(); n > 0 {
			return fmt.Errorf("%w: %s has %d", ErrSessionsOpen, ns.Name(), n)
		}
	}
	return nil
}

// Drain waits until none of the namespaces has an open session and then keeps
// new sessions from beginning until release is called. Either all namespaces
// are held or none is. If ctx ends first, Drain returns ErrSessionsOpen
// wrapping the context error.
func Drain(ctx context.Context, namespaces ...*Namespace) (release func(), err error) {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	for {
		if release, ok := tryHold(namespaces); ok {
			return release, nil
		}
		select {
		case <-ctx.Done():
			if err := Quiesced(namespaces...); err != nil {
				return nil, fmt.Errorf("%w (%w)", err, ctx.Err())
			}
			return nil, fmt.Errorf("%w: %w", ErrSessionsOpen, ctx.Err())
		case <-ticker.C:
		}
	}
}

func tryHold(namespaces []*Namespace) (func(), bool) {
	held := make([]*Namespace, 0, len(namespaces))
	release := func() {
		for _, ns := range held {
			ns.mu.Unlock()
		}
	}
	for _, ns := range namespaces {
		if !ns.mu.TryLock() {
			release()
			return nil, false
		}
		held = append(held, ns)
	}
	return release, true
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dir, err)
	}
	defer func() { _ = d.Close() }()
	// Some filesystems refuse fsync on directories; the entries are gone either way.
	_ = d.Sync()
	return nil
}
