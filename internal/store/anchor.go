package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/Archerevan-01fischb/MW-website/internal/model"
	"github.com/Archerevan-01fischb/MW-website/internal/tilegrid"
)

// CreateAnchor validates and inserts one stitching anchor.
func (s *Store) CreateAnchor(ctx context.Context, a *model.StitchingAnchor) (int64, error) {
	var id int64
	err := s.withTx(ctx, "create anchor", func(tx *sql.Tx) error {
		var err error
		id, err = createAnchor(ctx, tx, a)
		return err
	})
	if err != nil {
		return 0, err
	}
	a.ID = id
	return id, nil
}

// CreateAnchors inserts a batch atomically: one invalid anchor rejects all.
func (s *Store) CreateAnchors(ctx context.Context, anchors []model.StitchingAnchor) error {
	return s.withTx(ctx, "create anchors", func(tx *sql.Tx) error {
		for i := range anchors {
			id, err := createAnchor(ctx, tx, &anchors[i])
			if err != nil {
				return err
			}
			anchors[i].ID = id
		}
		return nil
	})
}

func createAnchor(ctx context.Context, q querier, a *model.StitchingAnchor) (int64, error) {
	const op = "create anchor"
	if err := validateAnchor(ctx, q, op, a); err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, `INSERT INTO stitching_anchors (
		anchor_id, anchor_type, tile1_id, tile2_id, edge,
		settlement1_id, settlement2_id, cable_car_line_id, gondola_system_id,
		distance_pixels, settlement_count
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AnchorID, string(a.Kind), a.Tile1ID, nullString(a.Tile2ID), a.Edge,
		nullInt64(a.Settlement1ID), nullInt64(a.Settlement2ID), nullInt64(a.CableCarLineID), nullInt64(a.GondolaSystemID),
		nullFloatPtr(a.DistancePixels), nullIntPtr(a.SettlementCount))
	if err != nil {
		return 0, classify(op, err)
	}
	return res.LastInsertId()
}

// validateAnchor enforces the field family of each anchor kind and checks
// that every referenced row exists and sits on the tiles the edge names.
func validateAnchor(ctx context.Context, q querier, op string, a *model.StitchingAnchor) error {
	const entity = "stitching_anchors"
	a.AnchorID = strings.TrimSpace(a.AnchorID)
	if a.AnchorID == "" {
		return model.Constraint(op, entity, "anchor_id is required")
	}
	edge, err := tilegrid.ParseEdge(a.Edge)
	if err != nil {
		return err
	}
	a.Edge = edge.String()
	for _, id := range []*string{&a.Tile1ID, &a.Tile2ID} {
		if *id == "" {
			continue
		}
		if _, err := canonicalTile(op, entity, id); err != nil {
			return err
		}
	}
	onEdge := func(tile string) bool { return tile == edge.Tile1ID || tile == edge.Tile2ID }
	if !onEdge(a.Tile1ID) {
		return model.Constraint(op, entity, "tile1 %s is not on edge %s", a.Tile1ID, a.Edge)
	}

	switch a.Kind {
	case model.AnchorSettlementPair:
		if a.Tile2ID == "" || !onEdge(a.Tile2ID) || a.Tile2ID == a.Tile1ID {
			return model.Constraint(op, entity, "settlement-pair anchor needs the other tile of %s as tile2", a.Edge)
		}
		if a.Settlement1ID == 0 || a.Settlement2ID == 0 || a.Settlement1ID == a.Settlement2ID {
			return model.Constraint(op, entity, "settlement-pair anchor needs two distinct settlements")
		}
		if a.DistancePixels == nil || *a.DistancePixels < 0 {
			return model.Constraint(op, entity, "settlement-pair anchor needs a non-negative distance_pixels")
		}
		if a.CableCarLineID != 0 || a.GondolaSystemID != 0 || a.SettlementCount != nil {
			return model.Constraint(op, entity, "settlement-pair anchor cannot carry cable-line fields")
		}
	case model.AnchorOrphanSettlement:
		if a.Tile2ID != "" {
			return model.Constraint(op, entity, "orphan anchor cannot have tile2")
		}
		if a.Settlement1ID == 0 || a.Settlement2ID != 0 {
			return model.Constraint(op, entity, "orphan anchor needs exactly settlement1")
		}
		if a.DistancePixels != nil || a.CableCarLineID != 0 || a.GondolaSystemID != 0 || a.SettlementCount != nil {
			return model.Constraint(op, entity, "orphan anchor carries only a settlement")
		}
	case model.AnchorCableLine:
		if a.Tile2ID == "" || !onEdge(a.Tile2ID) || a.Tile2ID == a.Tile1ID {
			return model.Constraint(op, entity, "cable-line anchor needs the other tile of %s as tile2", a.Edge)
		}
		if a.Settlement1ID != 0 || a.Settlement2ID != 0 || a.DistancePixels != nil {
			return model.Constraint(op, entity, "cable-line anchor cannot carry settlement-pair fields")
		}
		if a.SettlementCount == nil || *a.SettlementCount < 1 {
			return model.Constraint(op, entity, "cable-line anchor needs a positive settlement_count")
		}
		if a.CableCarLineID == 0 && a.GondolaSystemID == 0 {
			return model.Constraint(op, entity, "cable-line anchor needs a cable line or gondola system")
		}
	default:
		return model.Constraint(op, entity, "invalid anchor_type %q", a.Kind)
	}

	taken, err := exists(ctx, q, "SELECT 1 FROM stitching_anchors WHERE anchor_id = ?", a.AnchorID)
	if err != nil {
		return err
	}
	if taken {
		return model.Constraint(op, entity, "duplicate anchor_id %q", a.AnchorID)
	}

	for _, ref := range []struct {
		id   int64
		tile string
	}{{a.Settlement1ID, a.Tile1ID}, {a.Settlement2ID, a.Tile2ID}} {
		if ref.id == 0 {
			continue
		}
		st, err := getSettlement(ctx, q, "id = ?", ref.id)
		if model.IsKind(err, model.KindNotFound) {
			return model.Referential(op, entity, "settlement %d does not exist", ref.id)
		}
		if err != nil {
			return err
		}
		if st.TileID != ref.tile {
			return model.Constraint(op, entity, "settlement %d is on %s, anchor expects %s", ref.id, st.TileID, ref.tile)
		}
	}

	if a.GondolaSystemID != 0 {
		ok, err := exists(ctx, q, "SELECT 1 FROM gondola_systems WHERE id = ?", a.GondolaSystemID)
		if err != nil {
			return err
		}
		if !ok {
			return model.Referential(op, entity, "gondola system %d does not exist", a.GondolaSystemID)
		}
	}
	if a.CableCarLineID != 0 {
		lines, err := listCableLines(ctx, q, "id = ?", a.CableCarLineID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return model.Referential(op, entity, "cable line %d does not exist", a.CableCarLineID)
		}
		line := lines[0]
		if !onEdge(line.TileID) {
			return model.Constraint(op, entity, "cable line %d is on %s, not on edge %s", line.ID, line.TileID, a.Edge)
		}
		if a.GondolaSystemID != 0 && line.GondolaSystemID != a.GondolaSystemID {
			return model.Constraint(op, entity, "cable line %d belongs to system %d, anchor names %d", line.ID, line.GondolaSystemID, a.GondolaSystemID)
		}
	}
	return nil
}

// ListAnchorsByEdge returns the anchors recorded for one edge descriptor.
func (s *Store) ListAnchorsByEdge(ctx context.Context, edge string) ([]model.StitchingAnchor, error) {
	if e, err := tilegrid.ParseEdge(edge); err == nil {
		edge = e.String()
	}
	return listAnchors(ctx, s.DB, "edge = ? ORDER BY anchor_id", edge)
}

// ListAnchors returns every anchor.
func (s *Store) ListAnchors(ctx context.Context) ([]model.StitchingAnchor, error) {
	return listAnchors(ctx, s.DB, "1 = 1 ORDER BY anchor_id")
}

func listAnchors(ctx context.Context, q querier, where string, args ...any) ([]model.StitchingAnchor, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, anchor_id, anchor_type, tile1_id, tile2_id, edge,
		settlement1_id, settlement2_id, cable_car_line_id, gondola_system_id,
		distance_pixels, settlement_count
		FROM stitching_anchors WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StitchingAnchor
	for rows.Next() {
		var a model.StitchingAnchor
		var kind string
		var tile2 sql.NullString
		var s1, s2, line, system, settlementCount sql.NullInt64
		var distance sql.NullFloat64
		if err := rows.Scan(&a.ID, &a.AnchorID, &kind, &a.Tile1ID, &tile2, &a.Edge,
			&s1, &s2, &line, &system, &distance, &settlementCount); err != nil {
			return nil, err
		}
		a.Kind = model.AnchorKind(kind)
		a.Tile2ID = tile2.String
		a.Settlement1ID = s1.Int64
		a.Settlement2ID = s2.Int64
		a.CableCarLineID = line.Int64
		a.GondolaSystemID = system.Int64
		a.DistancePixels = floatPtr(distance)
		a.SettlementCount = intPtr(settlementCount)
		out = append(out, a)
	}
	return out, rows.Err()
}
