// Package registry owns the versioned category taxonomy and its change log.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aluiziolira/go-best-rank/models"
	"github.com/aluiziolira/go-best-rank/store"
)

const (
	snapshotFile = "best_categories.json"
	logFile      = "category_version_log.json"
	reportFile   = "category_changes.md"
)

// ReconcileResult is the outcome of Reconcile.
type ReconcileResult struct {
	Changed  bool
	Snapshot models.CategorySnapshot
	Entry    *models.VersionLogEntry
}

// CheckResult compares an observed set against the stored snapshot without writing.
type CheckResult struct {
	Changed      bool
	CurrentHash  string
	ObservedHash string
	Version      int
	Added        []models.CategoryNode
	Removed      []models.CategoryNode
}

// Registry persists the taxonomy snapshot and version log under one directory.
// It is single-writer: concurrent Reconcile calls must be serialized by the caller.
type Registry struct {
	dir string
	now func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New returns a registry rooted at dir.
func New(dir string, opts ...Option) *Registry {
	r := &Registry{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SnapshotPath is the location of the current snapshot file.
func (r *Registry) SnapshotPath() string { return filepath.Join(r.dir, snapshotFile) }

// LogPath is the location of the version log.
func (r *Registry) LogPath() string { return filepath.Join(r.dir, logFile) }

// ReportPath is the location of the latest change report.
func (r *Registry) ReportPath() string { return filepath.Join(r.dir, reportFile) }

// snapshotDocument is the on-disk form of a snapshot.
type snapshotDocument struct {
	models.CategorySnapshot
	TotalDepth1 int       `json:"total_depth1"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type logDocument struct {
	Versions []models.VersionLogEntry `json:"versions"`
}

// ComputeHash digests the canonical form of nodes. Input order and repeated
// identities do not affect the result.
func ComputeHash(nodes []models.CategoryNode) string {
	return hashCanonical(canonical(nodes))
}

func canonical(nodes []models.CategoryNode) []models.CategoryNode {
	out := models.UniqueNodes(nodes)
	models.SortNodes(out)
	return out
}

func hashCanonical(nodes []models.CategoryNode) string {
	lines := make([]string, len(nodes))
	for i, n := range nodes {
		lines[i] = strings.Join([]string{n.Depth1Code, n.Depth1Name, n.Depth2Code, n.Depth2Name}, "|")
	}
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// Diff returns observed-minus-current and current-minus-observed by whole-node equality.
func Diff(current, observed []models.CategoryNode) (added, removed []models.CategoryNode) {
	cur := make(map[models.CategoryNode]struct{}, len(current))
	for _, n := range current {
		cur[n] = struct{}{}
	}
	obs := make(map[models.CategoryNode]struct{}, len(observed))
	for _, n := range observed {
		obs[n] = struct{}{}
	}

	added = []models.CategoryNode{}
	for _, n := range observed {
		if _, ok := cur[n]; !ok {
			added = append(added, n)
		}
	}
	removed = []models.CategoryNode{}
	for _, n := range current {
		if _, ok := obs[n]; !ok {
			removed = append(removed, n)
		}
	}
	models.SortNodes(added)
	models.SortNodes(removed)
	return added, removed
}

// Load returns the persisted snapshot, or the empty snapshot when none exists.
// A version log whose tail lags the snapshot is repaired from the snapshot's
// recorded diff.
func (r *Registry) Load() (models.CategorySnapshot, error) {
	snap, err := r.readSnapshot()
	if err != nil || snap.Empty() {
		return snap, err
	}
	if err := r.repairLog(snap); err != nil {
		return models.CategorySnapshot{}, err
	}
	return snap, nil
}

// Reconcile records observed as a new version when its hash differs from the
// current snapshot. An unchanged set is a no-op.
func (r *Registry) Reconcile(observed []models.CategoryNode) (ReconcileResult, error) {
	current, err := r.Load()
	if err != nil {
		return ReconcileResult{}, err
	}

	nodes := canonical(observed)
	hash := hashCanonical(nodes)
	if hash == current.Hash {
		return ReconcileResult{Changed: false, Snapshot: current}, nil
	}

	added, removed := Diff(current.Nodes, nodes)
	now := r.now()
	next := models.CategorySnapshot{
		Version:    current.Version + 1,
		Hash:       hash,
		CapturedAt: now,
		Nodes:      nodes,
		OldHash:    current.Hash,
		Added:      added,
		Removed:    removed,
	}

	if err := r.writeSnapshot(next); err != nil {
		return ReconcileResult{}, err
	}
	entry := entryFor(next)
	if err := r.appendLog(entry); err != nil {
		return ReconcileResult{}, err
	}
	if err := store.WriteBytesAtomic(r.ReportPath(), []byte(ChangeReport(entry))); err != nil {
		return ReconcileResult{}, &store.PersistenceError{Op: "write", Key: r.ReportPath(), Err: err}
	}

	slog.Info("category taxonomy changed",
		slog.Int("version", next.Version),
		slog.String("hash", shortHash(next.Hash)),
		slog.Int("added", len(added)),
		slog.Int("removed", len(removed)),
	)
	return ReconcileResult{Changed: true, Snapshot: next, Entry: &entry}, nil
}

// Check reports whether observed differs from the stored snapshot.
func (r *Registry) Check(observed []models.CategoryNode) (CheckResult, error) {
	current, err := r.Load()
	if err != nil {
		return CheckResult{}, err
	}
	nodes := canonical(observed)
	hash := hashCanonical(nodes)
	res := CheckResult{
		Changed:      hash != current.Hash,
		CurrentHash:  current.Hash,
		ObservedHash: hash,
		Version:      current.Version,
	}
	if res.Changed {
		res.Added, res.Removed = Diff(current.Nodes, nodes)
	}
	return res, nil
}

// History returns up to limit most recent log entries, newest first.
// A limit of zero or less returns every entry.
func (r *Registry) History(limit int) ([]models.VersionLogEntry, error) {
	entries, err := r.readLog()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]models.VersionLogEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out, nil
}

// VersionsBetween returns log entries whose timestamp falls in [start, end).
func (r *Registry) VersionsBetween(start, end time.Time) ([]models.VersionLogEntry, error) {
	entries, err := r.readLog()
	if err != nil {
		return nil, err
	}
	var out []models.VersionLogEntry
	for _, e := range entries {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func entryFor(s models.CategorySnapshot) models.VersionLogEntry {
	return models.VersionLogEntry{
		Version:   s.Version,
		Timestamp: s.CapturedAt,
		OldHash:   s.OldHash,
		NewHash:   s.Hash,
		Added:     nonNil(s.Added),
		Removed:   nonNil(s.Removed),
	}
}

func nonNil(nodes []models.CategoryNode) []models.CategoryNode {
	if nodes == nil {
		return []models.CategoryNode{}
	}
	return nodes
}

func (r *Registry) readSnapshot() (models.CategorySnapshot, error) {
	data, err := os.ReadFile(r.SnapshotPath())
	if errors.Is(err, fs.ErrNotExist) {
		return models.CategorySnapshot{Nodes: []models.CategoryNode{}}, nil
	}
	if err != nil {
		return models.CategorySnapshot{}, &store.PersistenceError{Op: "read", Key: r.SnapshotPath(), Err: err}
	}
	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.CategorySnapshot{}, &store.PersistenceError{Op: "read", Key: r.SnapshotPath(), Err: fmt.Errorf("decode snapshot: %w", err)}
	}
	return doc.CategorySnapshot, nil
}

func (r *Registry) writeSnapshot(s models.CategorySnapshot) error {
	doc := snapshotDocument{CategorySnapshot: s, TotalDepth1: s.Depth1Count(), UpdatedAt: s.CapturedAt}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := store.WriteBytesAtomic(r.SnapshotPath(), data); err != nil {
		return &store.PersistenceError{Op: "write", Key: r.SnapshotPath(), Err: err}
	}
	return nil
}

func (r *Registry) readLog() ([]models.VersionLogEntry, error) {
	data, err := os.ReadFile(r.LogPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &store.PersistenceError{Op: "read", Key: r.LogPath(), Err: err}
	}
	var doc logDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &store.PersistenceError{Op: "read", Key: r.LogPath(), Err: fmt.Errorf("decode version log: %w", err)}
	}
	return doc.Versions, nil
}

func (r *Registry) appendLog(entry models.VersionLogEntry) error {
	entries, err := r.readLog()
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	data, err := json.MarshalIndent(logDocument{Versions: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode version log: %w", err)
	}
	if err := store.WriteBytesAtomic(r.LogPath(), data); err != nil {
		return &store.PersistenceError{Op: "write", Key: r.LogPath(), Err: err}
	}
	return nil
}

// repairLog appends the snapshot's entry when a previous run committed the
// snapshot but stopped before the log was written.
func (r *Registry) repairLog(snap models.CategorySnapshot) error {
	entries, err := r.readLog()
	if err != nil {
		return err
	}
	last := 0
	if len(entries) > 0 {
		last = entries[len(entries)-1].Version
	}
	switch {
	case last >= snap.Version:
		return nil
	case last == snap.Version-1:
		slog.Warn("repairing category version log",
			slog.Int("log_version", last),
			slog.Int("snapshot_version", snap.Version),
		)
		return r.appendLog(entryFor(snap))
	default:
		return &store.PersistenceError{
			Op:  "read",
			Key: r.LogPath(),
			Err: fmt.Errorf("version log ends at v%d but snapshot is v%d", last, snap.Version),
		}
	}
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
