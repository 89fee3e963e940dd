// Package thumbnail stores diagram preview images on disk, keyed by
// diagram id, with a background reaper that removes files no longer
// referenced by any diagram.
package thumbnail

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// OrphanGrace is the minimum age an unreferenced thumbnail file must reach
// before the reaper will delete it, giving a diagram create/upload race a
// window to catch up before its thumbnail is treated as orphaned.
const OrphanGrace = 5 * time.Minute

var unsafeChar = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// sanitize replaces any character outside [A-Za-z0-9_-] with "_", which
// also eliminates path traversal since "/" and ".." become "_".
func sanitize(id string) string {
	return unsafeChar.ReplaceAllString(id, "_")
}

// acceptedMIMETypes are the only data-URL MIME types the store accepts.
// SVG is intentionally excluded to avoid script payloads.
var acceptedMIMETypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// Store manages thumbnail files under dataDir/thumbnails.
type Store struct {
	dir    string
	logger *logrus.Entry
}

// New creates a Store rooted at dataDir. The thumbnails subdirectory is
// created if missing.
func New(dataDir string, logger *logrus.Entry) (*Store, error) {
	dir := filepath.Join(dataDir, "thumbnails")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create thumbnail directory: %w", err)
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{dir: dir, logger: logger.WithField("component", "thumbnail")}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, sanitize(id)+".png")
}

// Save decodes dataURL and writes it to disk as the thumbnail for id.
// Only image/png, image/jpeg, image/webp, and image/gif data URLs are
// accepted.
func (s *Store) Save(id, dataURL string) error {
	mimeType, payload, err := decodeDataURL(dataURL)
	if err != nil {
		return fmt.Errorf("decode thumbnail: %w", err)
	}
	if !acceptedMIMETypes[mimeType] {
		return fmt.Errorf("unsupported thumbnail mime type %q", mimeType)
	}

	normalized, err := normalize(mimeType, payload)
	if err != nil {
		// Normalization is best-effort: a format resize/EXIF-strip can't
		// handle still gets persisted as decoded, since rejecting a valid
		// upload because thumbnailing failed is worse than storing it
		// unresized.
		s.logger.WithError(err).WithField("diagramId", id).Warn("thumbnail normalize failed, storing as-is")
		normalized = payload
	}

	tmp := s.path(id) + ".tmp"
	if err := os.WriteFile(tmp, normalized, 0o644); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}
	if err := os.Rename(tmp, s.path(id)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize thumbnail: %w", err)
	}
	return nil
}

// Load returns the thumbnail contents for id as a data URL, or ("", false)
// if none exists.
func (s *Store) Load(id string) (string, bool, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read thumbnail: %w", err)
	}
	return encodeDataURL("image/png", data), true, nil
}

// Exists reports whether a thumbnail file is present for id.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Delete removes the thumbnail for id, if any. Missing files are not an
// error.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete thumbnail: %w", err)
	}
	return nil
}

// List returns the diagram ids of every thumbnail currently on disk.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list thumbnails: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".tmp") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, filepath.Ext(name)))
	}
	return ids, nil
}

// CleanupOrphans deletes thumbnail files whose id is not in existingIDs and
// whose mtime is older than minAge, preserving files that are either
// referenced or too new to safely judge orphaned (a Save may be in
// flight for a diagram that was just created).
func (s *Store) CleanupOrphans(existingIDs map[string]bool, minAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("list thumbnails: %w", err)
	}

	deleted := 0
	cutoff := time.Now().Add(-minAge)
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if existingIDs[id] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			s.logger.WithError(err).WithField("id", id).Warn("failed to remove orphan thumbnail")
			continue
		}
		deleted++
	}
	return deleted, nil
}

// RunReaper launches a background goroutine that runs CleanupOrphans once
// after startupDelay, then on every tick of interval, until stop is
// closed. existingIDs is invoked fresh on every run so it always reflects
// the latest set of live diagram ids.
func (s *Store) RunReaper(startupDelay, interval, minAge time.Duration, existingIDs func() map[string]bool, stop <-chan struct{}) {
	go func() {
		timer := time.NewTimer(startupDelay)
		defer timer.Stop()

		select {
		case <-stop:
			return
		case <-timer.C:
		}

		s.runOnce(existingIDs, minAge)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.runOnce(existingIDs, minAge)
			}
		}
	}()
}

func (s *Store) runOnce(existingIDs func() map[string]bool, minAge time.Duration) {
	deleted, err := s.CleanupOrphans(existingIDs(), minAge)
	if err != nil {
		s.logger.WithError(err).Warn("thumbnail reaper run failed")
		return
	}
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Info("thumbnail reaper removed orphans")
	}
}
