package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Archerevan-01fischb/MW-website/internal/model"
	"github.com/Archerevan-01fischb/MW-website/internal/store"
)

type sourceFunc func(ctx context.Context, w io.Writer) (int64, error)

func (f sourceFunc) CopyTo(ctx context.Context, w io.Writer) (int64, error) { return f(ctx, w) }

func seededStore(t *testing.T, dir string) *store.Store {
	t.Helper()
	s, err := store.New(dir, nil)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	st := model.Settlement{
		SystemName: "Harbour", TileID: "A1", PixelX: 5, PixelY: 6,
		SpatialType: model.SpatialIsolated, Confidence: model.ConfidenceHigh,
	}
	if _, err := s.CreateSettlement(context.Background(), &st); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	return s
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return data
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := seededStore(t, filepath.Join(root, "data"))
	f := &Facility{Dir: filepath.Join(root, "backups"), Timeout: 10 * time.Second}

	snap, err := f.Snapshot(context.Background(), s)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	dbPath := s.Path
	if err := s.Close(); err != nil {
		t.Fatalf("closing: %v", err)
	}
	original := readFile(t, dbPath)
	if !bytes.Equal(readFile(t, snap.Path), original) {
		t.Fatal("expected snapshot to match the database byte for byte")
	}

	s2, err := store.Open(dbPath, nil)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	other := model.Settlement{
		SystemName: "Quarry", TileID: "A1", PixelX: 50, PixelY: 60,
		SpatialType: model.SpatialEdge, Confidence: model.ConfidenceLow,
	}
	if _, err := s2.CreateSettlement(context.Background(), &other); err != nil {
		t.Fatalf("writing after snapshot: %v", err)
	}
	s2.Close()
	if bytes.Equal(readFile(t, dbPath), original) {
		t.Fatal("expected the database to change after the write")
	}

	if err := Restore(snap.Path, dbPath); err != nil {
		t.Fatalf("restoring: %v", err)
	}
	if !bytes.Equal(readFile(t, dbPath), original) {
		t.Error("expected restore to reproduce the snapshot byte for byte")
	}
}

func TestSnapshotFailsWhenDirIsFile(t *testing.T) {
	root := t.TempDir()
	s := seededStore(t, filepath.Join(root, "data"))
	defer s.Close()

	blocker := filepath.Join(root, "backups")
	if err := os.WriteFile(blocker, []byte("not a dir"), 0o644); err != nil {
		t.Fatalf("writing blocker: %v", err)
	}
	f := &Facility{Dir: blocker, Timeout: time.Second}
	if _, err := f.Snapshot(context.Background(), s); !errors.Is(err, model.ErrBackupFailed) {
		t.Fatalf("expected BackupFailed, got %v", err)
	}
}

func TestSnapshotTimeout(t *testing.T) {
	dir := t.TempDir()
	slow := sourceFunc(func(ctx context.Context, w io.Writer) (int64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	f := &Facility{Dir: dir, Timeout: 20 * time.Millisecond}

	_, err := f.Snapshot(context.Background(), slow)
	if !errors.Is(err, model.ErrBackupFailed) {
		t.Fatalf("expected BackupFailed, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the deadline in the chain, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no files left behind, got %d", len(entries))
	}
}

func TestSnapshotRejectsUnverifiableCopy(t *testing.T) {
	dir := t.TempDir()
	f := &Facility{Dir: dir}

	for name, src := range map[string]Source{
		"empty": sourceFunc(func(context.Context, io.Writer) (int64, error) { return 0, nil }),
		"garbage": sourceFunc(func(_ context.Context, w io.Writer) (int64, error) {
			n, err := w.Write([]byte("definitely not sqlite"))
			return int64(n), err
		}),
	} {
		if _, err := f.Snapshot(context.Background(), src); !errors.Is(err, model.ErrBackupFailed) {
			t.Errorf("%s: expected BackupFailed, got %v", name, err)
		}
	}
	snaps, err := f.List()
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("expected failed snapshots to be removed, got %d", len(snaps))
	}
}

func TestListNewestFirst(t *testing.T) {
	root := t.TempDir()
	s := seededStore(t, filepath.Join(root, "data"))
	defer s.Close()
	f := &Facility{Dir: filepath.Join(root, "backups")}

	first, err := f.Snapshot(context.Background(), s)
	if err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := f.Snapshot(context.Background(), s)
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if err := os.WriteFile(filepath.Join(f.Dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("writing stray file: %v", err)
	}

	snaps, err := f.List()
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].ID != second.ID || snaps[1].ID != first.ID {
		t.Errorf("expected newest first, got %s then %s", snaps[0].ID, snaps[1].ID)
	}
}

func TestRestoreRejectsBadBackup(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.db")
	if err := os.WriteFile(bad, []byte("nope"), 0o644); err != nil {
		t.Fatalf("writing: %v", err)
	}
	target := filepath.Join(dir, "registry.db")
	if err := os.WriteFile(target, []byte("keep"), 0o644); err != nil {
		t.Fatalf("writing: %v", err)
	}
	if err := Restore(bad, target); !errors.Is(err, model.ErrBackupFailed) {
		t.Fatalf("expected BackupFailed, got %v", err)
	}
	if string(readFile(t, target)) != "keep" {
		t.Error("expected target untouched after a rejected restore")
	}
}
