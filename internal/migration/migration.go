// Package migration rewrites numeric gondola identifiers into the textual
// GONDOLA_NN scheme and renames the stations that carry them.
package migration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/Archerevan-01fischb/MW-website/internal/backup"
	"github.com/Archerevan-01fischb/MW-website/internal/model"
	"github.com/Archerevan-01fischb/MW-website/internal/store"
	"github.com/google/uuid"
)

// pylonSuffix captures the historical pylon number at the end of a name.
var pylonSuffix = regexp.MustCompile(`-(\d+)$`)

// Engine runs the naming migration against a store, snapshotting it first.
type Engine struct {
	Store  *store.Store
	Backup *backup.Facility
	Log    *slog.Logger
}

// Defect is a settlement the migration could not rename.
type Defect struct {
	SettlementID int64
	Name         string
	Reason       string
}

// Report itemizes one migration run.
type Report struct {
	RunID              string
	BackupPath         string
	Width              int
	SystemsUpdated     int
	SettlementsUpdated int
	Unchanged          int
	Defects            []Defect
}

// Changed reports whether the run rewrote anything.
func (r *Report) Changed() bool {
	return r.SystemsUpdated > 0 || r.SettlementsUpdated > 0
}

// Run assigns text identifiers and rewrites station names in one
// transaction whose first step is the snapshot, so no other write can land
// between the backup and the renames. A snapshot failure aborts before any
// change. A constraint failure or cancellation rolls every rename back; the
// snapshot stays on disk either way. Pylons whose names lack a numeric suffix
// are left as they are and reported: Run commits the other rows and returns
// the report together with an AmbiguousSuffix error.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	log := e.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	rep := &Report{RunID: uuid.NewString()}
	log = log.With("run", rep.RunID)

	var defects []Defect
	var snapErr error
	err := e.Store.WithRenameTx(ctx, func(r *store.RenameTx) error {
		snap, err := e.Backup.Snapshot(ctx, r)
		if err != nil {
			snapErr = err
			return err
		}
		rep.BackupPath = snap.Path
		log.Info("migration.started", "backup", snap.Path)

		systems, err := r.GondolaSystems()
		if err != nil {
			return err
		}
		maxNumber := 0
		for _, g := range systems {
			maxNumber = max(maxNumber, g.Identifier.Number)
		}
		width := model.TextWidth(maxNumber)
		updatedSystems, updatedSettlements, unchanged := 0, 0, 0
		defects = defects[:0]

		for _, g := range systems {
			next := g.Identifier.Migrate(width)
			if next.Text != g.Identifier.Text {
				if err := r.SetSystemText(g.ID, next.Text); err != nil {
					return err
				}
				updatedSystems++
			}

			stations, err := r.Settlements(g.ID)
			if err != nil {
				return err
			}
			for _, st := range stations {
				if err := ctx.Err(); err != nil {
					return err
				}
				name, defect := stationName(next.Text, st)
				if defect != "" {
					defects = append(defects, Defect{SettlementID: st.ID, Name: st.SystemName, Reason: defect})
					log.Warn("migration.ambiguous_suffix", "settlement", st.ID, "name", st.SystemName)
					continue
				}
				if name == st.SystemName {
					unchanged++
					continue
				}
				if err := r.RenameSettlement(st.ID, name); err != nil {
					return err
				}
				log.Debug("migration.renamed", "settlement", st.ID, "from", st.SystemName, "to", name)
				updatedSettlements++
			}
		}
		rep.Width = width
		rep.SystemsUpdated = updatedSystems
		rep.SettlementsUpdated = updatedSettlements
		rep.Unchanged = unchanged
		return nil
	})
	if snapErr != nil {
		log.Error("migration.aborted", "err", snapErr)
		return nil, snapErr
	}
	if err != nil {
		log.Error("migration.rolled_back", "err", err, "backup", rep.BackupPath)
		return nil, err
	}
	rep.Defects = append([]Defect(nil), defects...)

	log.Info("migration.committed",
		"width", rep.Width,
		"systems", rep.SystemsUpdated,
		"settlements", rep.SettlementsUpdated,
		"unchanged", rep.Unchanged,
		"defects", len(rep.Defects))
	if len(rep.Defects) > 0 {
		return rep, &model.OpError{
			Op:     "naming migration",
			Kind:   model.KindAmbiguousSuffix,
			Entity: "settlements",
			Err:    fmt.Errorf("%d pylon names lack a numeric suffix", len(rep.Defects)),
		}
	}
	return rep, nil
}

// stationName builds the new name from the role template. A non-empty second
// result explains why the station cannot be renamed.
func stationName(text string, st model.Settlement) (string, string) {
	if st.Gondola == nil {
		return "", "not a gondola station"
	}
	switch st.Gondola.Role {
	case model.RoleOrigin:
		return text + "-ORIGIN", ""
	case model.RoleTerminus:
		return text + "-TERMINUS", ""
	case model.RolePylon:
		m := pylonSuffix.FindStringSubmatch(st.SystemName)
		if m == nil {
			return "", fmt.Sprintf("pylon name %q has no trailing numeric suffix", st.SystemName)
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return "", fmt.Sprintf("pylon suffix %q: %v", m[1], err)
		}
		return fmt.Sprintf("%s-PYLON-%02d", text, n), ""
	}
	return "", fmt.Sprintf("unknown gondola role %q", st.Gondola.Role)
}
