// Package store persists labeled recordings as CSV files, one directory per
// label under a base directory.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/sensorbench/sensorbench/internal/sample"
)

var (
	ErrInvalidLabel      = errors.New("invalid label name")
	ErrLabelNotFound     = errors.New("label not found")
	ErrRecordingNotFound = errors.New("recording not found")
)

// Label is a label directory together with its sample count.
type Label struct {
	Name    string `json:"name"`
	Samples int    `json:"samples"`
}

// Store is a filesystem-backed labeled recording store.
type Store struct {
	log     *slog.Logger
	baseDir string
	clock   clockwork.Clock
}

// New creates the base directory if needed and returns a store rooted there.
func New(log *slog.Logger, baseDir string, clock clockwork.Clock) (*Store, error) {
	if baseDir == "" {
		return nil, errors.New("base dir is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory %s: %w", baseDir, err)
	}
	return &Store{log: log, baseDir: baseDir, clock: clock}, nil
}

// BaseDir returns the store root.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// SanitizeLabel strips everything but alphanumerics, underscore and hyphen.
// An empty result is invalid.
func SanitizeLabel(name string) (string, error) {
	var b strings.Builder
	for _, c := range name {
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-' {
			b.WriteRune(c)
		}
	}
	out := b.String()
	if out == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidLabel, name)
	}
	return out, nil
}

// Labels lists all label directories with their sample counts, sorted by name.
func (s *Store) Labels() ([]Label, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read base directory: %w", err)
	}

	labels := make([]Label, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		recs, err := s.List(e.Name())
		if err != nil {
			// Out-of-band directories in the base dir are not labels.
			if errors.Is(err, ErrInvalidLabel) {
				s.log.Warn("Skipping non-label directory", "dir", e.Name())
				continue
			}
			return nil, err
		}
		labels = append(labels, Label{Name: e.Name(), Samples: len(recs)})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
	return labels, nil
}

// CreateLabel sanitizes the name, creates its directory, and returns the
// sanitized name. Creating an existing label is not an error.
func (s *Store) CreateLabel(name string) (string, error) {
	sanitized, err := SanitizeLabel(name)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.baseDir, sanitized)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create label directory %s: %w", dir, err)
	}
	s.log.Info("Created label directory", "label", sanitized, "dir", dir)
	return sanitized, nil
}

// List returns the recording filenames of a label, most recent first.
// The timestamped filename scheme makes descending lexicographic order
// chronological.
func (s *Store) List(label string) ([]string, error) {
	dir, err := s.labelDir(label)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLabelNotFound, label)
		}
		return nil, fmt.Errorf("failed to read label directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Save writes the recording to its label directory and returns the filename.
// A zero TakenAt is filled from the store clock.
func (s *Store) Save(rec *sample.Recording) (string, error) {
	sanitized, err := SanitizeLabel(rec.Label)
	if err != nil {
		return "", err
	}
	if sanitized != rec.Label {
		return "", fmt.Errorf("%w: %q", ErrInvalidLabel, rec.Label)
	}
	if len(rec.Frames) == 0 {
		return "", errors.New("refusing to save an empty recording")
	}
	if rec.TakenAt.IsZero() {
		rec.TakenAt = s.clock.Now()
	}

	dir := filepath.Join(s.baseDir, rec.Label)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrLabelNotFound, rec.Label)
		}
		return "", fmt.Errorf("failed to stat label directory: %w", err)
	}

	name := rec.Filename()
	path := filepath.Join(dir, name)
	if err := writeFrames(path, rec.Frames); err != nil {
		return "", err
	}
	s.log.Info("Saved recording", "label", rec.Label, "file", name, "frames", len(rec.Frames))
	return name, nil
}

// Load reads one recording. Rows that do not parse as a full frame are
// skipped, mirroring the tolerant reader on the wire side.
func (s *Store) Load(label, filename string) (*sample.Recording, error) {
	path, err := s.recordingPath(label, filename)
	if err != nil {
		return nil, err
	}
	frames, err := readFrames(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrRecordingNotFound, label, filename)
		}
		return nil, err
	}

	rec := &sample.Recording{Label: label, Frames: frames}
	if takenAt, perr := ParseFilenameTime(label, filename); perr == nil {
		rec.TakenAt = takenAt
	}
	return rec, nil
}

// Delete removes a recording and returns the filename that should take over
// the selection focus: the next entry below, the previous one if the deleted
// entry was last, or empty when nothing remains.
func (s *Store) Delete(label, filename string) (string, error) {
	path, err := s.recordingPath(label, filename)
	if err != nil {
		return "", err
	}

	names, err := s.List(label)
	if err != nil {
		return "", err
	}
	idx := -1
	for i, n := range names {
		if n == filename {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", fmt.Errorf("%w: %s/%s", ErrRecordingNotFound, label, filename)
	}

	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("failed to delete recording: %w", err)
	}
	s.log.Info("Deleted recording", "label", label, "file", filename)

	switch {
	case idx < len(names)-1:
		return names[idx+1], nil
	case idx > 0:
		return names[idx-1], nil
	default:
		return "", nil
	}
}

func (s *Store) labelDir(label string) (string, error) {
	sanitized, err := SanitizeLabel(label)
	if err != nil || sanitized != label {
		return "", fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	return filepath.Join(s.baseDir, label), nil
}

// recordingPath validates the filename against traversal and resolves it
// inside the label directory.
func (s *Store) recordingPath(label, filename string) (string, error) {
	dir, err := s.labelDir(label)
	if err != nil {
		return "", err
	}
	if filename == "" || filename != filepath.Base(filename) || strings.Contains(filename, "..") || !strings.HasSuffix(filename, ".csv") {
		return "", fmt.Errorf("%w: invalid filename %q", ErrRecordingNotFound, filename)
	}
	return filepath.Join(dir, filename), nil
}
