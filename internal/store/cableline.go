package store

import (
	"context"
	"database/sql"
	"sort"

	"github.com/Archerevan-01fischb/MW-website/internal/model"
)

// LineDraft is a cable line and its ordered members, before insertion.
type LineDraft struct {
	Line    model.CableCarLine
	Members []model.LineMembership
}

// CreateCableLine validates and inserts a cable line with its memberships.
// Member LineIDs are ignored and set to the new line's id.
func (s *Store) CreateCableLine(ctx context.Context, line *model.CableCarLine, members []model.LineMembership) (int64, error) {
	var id int64
	err := s.withTx(ctx, "create cable line", func(tx *sql.Tx) error {
		var err error
		id, err = createCableLine(ctx, tx, line, members)
		return err
	})
	if err != nil {
		return 0, err
	}
	line.ID = id
	return id, nil
}

// ReplaceCableLines swaps a system's cable lines for drafts in one
// transaction. Anchors that reference an old line block the replacement.
// The returned lines carry their new ids.
func (s *Store) ReplaceCableLines(ctx context.Context, systemID int64, drafts []LineDraft) ([]model.CableCarLine, error) {
	const op = "replace cable lines"
	var out []model.CableCarLine
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		if _, err := getGondolaSystem(ctx, tx, "id = ?", systemID); err != nil {
			return err
		}
		anchored, err := count(ctx, tx, `SELECT COUNT(*) FROM stitching_anchors
			WHERE cable_car_line_id IN (SELECT id FROM cable_car_lines WHERE gondola_system_id = ?)`, systemID)
		if err != nil {
			return err
		}
		if anchored > 0 {
			return model.Referential(op, "cable_car_lines", "%d anchors reference the current lines of system %d", anchored, systemID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cable_car_settlements
			WHERE cable_car_line_id IN (SELECT id FROM cable_car_lines WHERE gondola_system_id = ?)`, systemID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM cable_car_lines WHERE gondola_system_id = ?", systemID); err != nil {
			return err
		}

		for i := range drafts {
			line := drafts[i].Line
			if line.GondolaSystemID != systemID {
				return model.Constraint(op, "cable_car_lines", "draft %d belongs to system %d, not %d", i, line.GondolaSystemID, systemID)
			}
			id, err := createCableLine(ctx, tx, &line, drafts[i].Members)
			if err != nil {
				return err
			}
			line.ID = id
			out = append(out, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func createCableLine(ctx context.Context, q querier, line *model.CableCarLine, members []model.LineMembership) (int64, error) {
	const op = "create cable line"
	if _, err := canonicalTile(op, "cable_car_lines", &line.TileID); err != nil {
		return 0, err
	}
	if !line.LineType.Valid() {
		return 0, model.Constraint(op, "cable_car_lines", "invalid line_type %q", line.LineType)
	}
	if line.AxisCoordinate < 0 {
		return 0, model.Constraint(op, "cable_car_lines", "negative axis_coordinate %d", line.AxisCoordinate)
	}
	if len(members) == 0 {
		return 0, model.Constraint(op, "cable_car_lines", "a cable line needs at least one settlement")
	}
	if line.SettlementCount != len(members) {
		return 0, model.Constraint(op, "cable_car_lines", "settlement_count %d does not match %d members", line.SettlementCount, len(members))
	}
	if line.GondolaSystemID != 0 {
		ok, err := exists(ctx, q, "SELECT 1 FROM gondola_systems WHERE id = ?", line.GondolaSystemID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, model.Referential(op, "cable_car_lines", "gondola system %d does not exist", line.GondolaSystemID)
		}
	}

	ordered := append([]model.LineMembership(nil), members...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SequenceNumber < ordered[j].SequenceNumber })
	seen := make(map[int64]bool)
	for i, m := range ordered {
		if m.SequenceNumber != i {
			return 0, model.Constraint(op, "cable_car_settlements", "sequence numbers must run 0..%d without gaps or repeats, got %d at position %d", len(ordered)-1, m.SequenceNumber, i)
		}
		if seen[m.SettlementID] {
			return 0, model.Constraint(op, "cable_car_settlements", "settlement %d appears twice", m.SettlementID)
		}
		seen[m.SettlementID] = true

		st, err := getSettlement(ctx, q, "id = ?", m.SettlementID)
		if model.IsKind(err, model.KindNotFound) {
			return 0, model.Referential(op, "cable_car_settlements", "settlement %d does not exist", m.SettlementID)
		}
		if err != nil {
			return 0, err
		}
		if st.TileID != line.TileID {
			return 0, model.Constraint(op, "cable_car_settlements", "settlement %d is on tile %s, line is on %s", st.ID, st.TileID, line.TileID)
		}
		if line.GondolaSystemID != 0 && st.SystemID() != line.GondolaSystemID {
			return 0, model.Constraint(op, "cable_car_settlements", "settlement %d is not on gondola system %d", st.ID, line.GondolaSystemID)
		}
	}

	res, err := q.ExecContext(ctx, `INSERT INTO cable_car_lines (tile_id, line_type, axis_coordinate, settlement_count, gondola_system_id)
		VALUES (?, ?, ?, ?, ?)`,
		line.TileID, string(line.LineType), line.AxisCoordinate, line.SettlementCount, nullInt64(line.GondolaSystemID))
	if err != nil {
		return 0, classify(op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, m := range ordered {
		if _, err := q.ExecContext(ctx, `INSERT INTO cable_car_settlements (cable_car_line_id, settlement_id, sequence_number)
			VALUES (?, ?, ?)`, id, m.SettlementID, m.SequenceNumber); err != nil {
			return 0, classify(op, err)
		}
	}
	return id, nil
}

// ListCableLinesBySystem returns a system's lines in id order.
func (s *Store) ListCableLinesBySystem(ctx context.Context, systemID int64) ([]model.CableCarLine, error) {
	return listCableLines(ctx, s.DB, "gondola_system_id = ? ORDER BY id", systemID)
}

// ListCableLinesByTile returns the lines on one tile.
func (s *Store) ListCableLinesByTile(ctx context.Context, tileID string) ([]model.CableCarLine, error) {
	return listCableLines(ctx, s.DB, "tile_id = ? ORDER BY id", lookupTile(tileID))
}

// ListMemberships returns a line's members in sequence order.
func (s *Store) ListMemberships(ctx context.Context, lineID int64) ([]model.LineMembership, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT cable_car_line_id, settlement_id, sequence_number
		FROM cable_car_settlements WHERE cable_car_line_id = ? ORDER BY sequence_number`, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LineMembership
	for rows.Next() {
		var m model.LineMembership
		if err := rows.Scan(&m.LineID, &m.SettlementID, &m.SequenceNumber); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func listCableLines(ctx context.Context, q querier, where string, args ...any) ([]model.CableCarLine, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, tile_id, line_type, axis_coordinate, settlement_count, gondola_system_id
		FROM cable_car_lines WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CableCarLine
	for rows.Next() {
		var l model.CableCarLine
		var lineType string
		var systemID sql.NullInt64
		if err := rows.Scan(&l.ID, &l.TileID, &lineType, &l.AxisCoordinate, &l.SettlementCount, &systemID); err != nil {
			return nil, err
		}
		l.LineType = model.Orientation(lineType)
		l.GondolaSystemID = systemID.Int64
		out = append(out, l)
	}
	return out, rows.Err()
}
