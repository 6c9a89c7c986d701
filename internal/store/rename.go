package store

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"

	"github.com/Archerevan-01fischb/MW-website/internal/model"
)

// RenameTx is the narrow write surface the naming migration runs against.
// It only assigns text identifiers and rewrites settlement names; row ids,
// numbers and foreign keys are never touched.
type RenameTx struct {
	ctx   context.Context
	tx    *sql.Tx
	path  string
	dirty bool
}

// WithRenameTx runs fn in one exclusive transaction. An error from fn, or a
// cancelled ctx, rolls every rename back.
func (s *Store) WithRenameTx(ctx context.Context, fn func(r *RenameTx) error) error {
	return s.withTx(ctx, "rename", func(tx *sql.Tx) error {
		return fn(&RenameTx{ctx: ctx, tx: tx, path: s.Path})
	})
}

// CopyTo writes the database file as of the start of the transaction. No
// other writer can commit until the transaction ends, so a copy taken here
// is exactly the state the renames apply to. It must be called before any
// rename.
func (r *RenameTx) CopyTo(ctx context.Context, w io.Writer) (int64, error) {
	if r.dirty {
		return 0, errors.New("copying database: transaction already has writes")
	}
	return copyFile(ctx, r.path, w)
}

// GondolaSystems lists every system ordered by number.
func (r *RenameTx) GondolaSystems() ([]model.GondolaSystem, error) {
	return listGondolaSystems(r.ctx, r.tx)
}

// Settlements lists the stations of one system in sequence order.
func (r *RenameTx) Settlements(systemID int64) ([]model.Settlement, error) {
	return listSettlements(r.ctx, r.tx, "gondola_system_id = ? ORDER BY gondola_sequence, id", systemID)
}

// SetSystemText assigns the textual identifier of a system. The text must
// encode the system's existing number.
func (r *RenameTx) SetSystemText(id int64, text string) error {
	const op = "set system text"
	g, err := getGondolaSystem(r.ctx, r.tx, "id = ?", id)
	if err != nil {
		return err
	}
	next := model.SystemIdentifier{Number: g.Identifier.Number, Text: text}
	if text == "" || !next.Consistent() {
		return model.Constraint(op, "gondola_systems", "text %q does not encode system_number %d", text, g.Identifier.Number)
	}
	taken, err := exists(r.ctx, r.tx, "SELECT 1 FROM gondola_systems WHERE gondola_system_text = ? AND id <> ?", text, id)
	if err != nil {
		return err
	}
	if taken {
		return model.Constraint(op, "gondola_systems", "duplicate gondola_system_text %q", text)
	}
	r.dirty = true
	if _, err := r.tx.ExecContext(r.ctx, "UPDATE gondola_systems SET gondola_system_text = ? WHERE id = ?", text, id); err != nil {
		return classify(op, err)
	}
	return nil
}

// RenameSettlement rewrites a settlement's system_name.
func (r *RenameTx) RenameSettlement(id int64, name string) error {
	const op = "rename settlement"
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Constraint(op, "settlements", "system_name is required")
	}
	taken, err := exists(r.ctx, r.tx, "SELECT 1 FROM settlements WHERE system_name = ? AND id <> ?", name, id)
	if err != nil {
		return err
	}
	if taken {
		return model.Constraint(op, "settlements", "duplicate system_name %q", name)
	}
	r.dirty = true
	res, err := r.tx.ExecContext(r.ctx, "UPDATE settlements SET system_name = ? WHERE id = ?", name, id)
	if err != nil {
		return classify(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &model.OpError{Op: op, Kind: model.KindNotFound, Entity: "settlements", Err: sql.ErrNoRows}
	}
	return nil
}
