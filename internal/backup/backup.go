// Package backup takes verified file-level snapshots of the registry database
// and restores them atomically.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Archerevan-01fischb/MW-website/internal/model"
	"github.com/google/uuid"
)

const (
	filePrefix = "registry-"
	fileSuffix = ".db"
	timeLayout = "20060102T150405.000Z"
)

// sqliteHeader opens every SQLite 3 database file.
var sqliteHeader = []byte("SQLite format 3\x00")

// Source is anything that can stream a consistent copy of the database.
// *store.Store satisfies it.
type Source interface {
	CopyTo(ctx context.Context, w io.Writer) (int64, error)
}

// Facility writes snapshots into Dir. A snapshot that takes longer than
// Timeout is abandoned.
type Facility struct {
	Dir     string
	Timeout time.Duration
	Log     *slog.Logger
}

// Snapshot describes one backup file.
type Snapshot struct {
	ID        string
	Path      string
	Size      int64
	CreatedAt time.Time
}

func failed(op string, err error) error {
	return &model.OpError{Op: op, Kind: model.KindBackupFailed, Entity: "backup", Err: err}
}

func (f *Facility) logger() *slog.Logger {
	if f.Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return f.Log
}

// Snapshot copies src into a new timestamped file and verifies it. Any
// failure, including the timeout, is a BackupFailed error and leaves no
// partial snapshot behind.
func (f *Facility) Snapshot(ctx context.Context, src Source) (*Snapshot, error) {
	const op = "backup snapshot"
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return nil, failed(op, fmt.Errorf("creating backup dir: %w", err))
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	final := filepath.Join(f.Dir, filePrefix+now.Format(timeLayout)+"-"+id+fileSuffix)

	tmp, err := os.CreateTemp(f.Dir, ".snapshot-*")
	if err != nil {
		return nil, failed(op, fmt.Errorf("creating temp file: %w", err))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := src.CopyTo(ctx, tmp)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, failed(op, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, failed(op, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		return nil, failed(op, fmt.Errorf("publishing snapshot: %w", err))
	}

	size, err := Verify(final)
	if err != nil {
		os.Remove(final)
		return nil, failed(op, err)
	}
	if size != n {
		os.Remove(final)
		return nil, failed(op, fmt.Errorf("snapshot is %d bytes, copied %d", size, n))
	}

	f.logger().Info("backup.created", "path", final, "bytes", size)
	return &Snapshot{ID: id, Path: final, Size: size, CreatedAt: now}, nil
}

// Verify checks that path is a readable, non-empty SQLite file and returns its size.
func Verify(path string) (int64, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening snapshot: %w", err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat snapshot: %w", err)
	}
	if info.Size() == 0 {
		return 0, errors.New("snapshot is empty")
	}
	head := make([]byte, len(sqliteHeader))
	if _, err := io.ReadFull(fh, head); err != nil {
		return 0, fmt.Errorf("reading snapshot header: %w", err)
	}
	if !bytes.Equal(head, sqliteHeader) {
		return 0, errors.New("snapshot is not an SQLite database")
	}
	return info.Size(), nil
}

// Restore replaces dbPath with the snapshot at backupPath. The database must
// not be open. The new file is staged next to dbPath and renamed into place,
// so dbPath is either the old file or the complete snapshot.
func Restore(backupPath, dbPath string) error {
	const op = "backup restore"
	if _, err := Verify(backupPath); err != nil {
		return failed(op, err)
	}

	in, err := os.Open(backupPath)
	if err != nil {
		return failed(op, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dbPath), ".restore-*")
	if err != nil {
		return failed(op, fmt.Errorf("creating temp file: %w", err))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	_, err = io.Copy(tmp, in)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return failed(op, fmt.Errorf("staging restore: %w", err))
	}

	// A leftover rollback journal would be replayed into the restored file.
	if err := os.Remove(dbPath + "-journal"); err != nil && !os.IsNotExist(err) {
		return failed(op, fmt.Errorf("removing stale journal: %w", err))
	}
	if err := os.Rename(tmpName, dbPath); err != nil {
		return failed(op, fmt.Errorf("replacing database: %w", err))
	}
	return nil
}

// List returns the snapshots in Dir, newest first.
func (f *Facility) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(f.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Snapshot
	for _, e := range entries {
		snap, ok := parseName(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		snap.Path = filepath.Join(f.Dir, e.Name())
		snap.Size = info.Size()
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// parseName splits registry-<timestamp>-<uuid>.db.
func parseName(name string) (Snapshot, bool) {
	rest, ok := strings.CutPrefix(name, filePrefix)
	if !ok {
		return Snapshot{}, false
	}
	rest, ok = strings.CutSuffix(rest, fileSuffix)
	if !ok {
		return Snapshot{}, false
	}
	ts, id, ok := strings.Cut(rest, "-")
	if !ok {
		return Snapshot{}, false
	}
	created, err := time.Parse(timeLayout, ts)
	if err != nil {
		return Snapshot{}, false
	}
	if _, err := uuid.Parse(id); err != nil {
		return Snapshot{}, false
	}
	return Snapshot{ID: id, CreatedAt: created}, true
}
