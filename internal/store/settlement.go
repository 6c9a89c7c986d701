package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Archerevan-01fischb/MW-website/internal/model"
	"github.com/Archerevan-01fischb/MW-website/internal/tilegrid"
)

const settlementColumns = `id, system_name, display_name, aliases,
	gondola_system_id, gondola_role, gondola_sequence,
	tile_id, tile_row, tile_col, pixel_x, pixel_y, world_x, world_z, elevation,
	validated, spatial_type, enemy_occupied, confidence,
	brightness, color_r, color_g, color_b, terrain_type`

// CreateSettlement validates and inserts a settlement, returning its row id.
func (s *Store) CreateSettlement(ctx context.Context, st *model.Settlement) (int64, error) {
	var id int64
	err := s.withTx(ctx, "create settlement", func(tx *sql.Tx) error {
		var err error
		id, err = createSettlement(ctx, tx, st)
		return err
	})
	if err != nil {
		return 0, err
	}
	st.ID = id
	return id, nil
}

func createSettlement(ctx context.Context, q querier, st *model.Settlement) (int64, error) {
	const op = "create settlement"
	if err := validateSettlement(ctx, q, op, st, 0); err != nil {
		return 0, err
	}

	aliases, _ := json.Marshal(nonNil(st.Aliases))
	var systemID sql.NullInt64
	var role sql.NullString
	var seq sql.NullInt64
	if st.Gondola != nil {
		systemID = sql.NullInt64{Int64: st.Gondola.SystemID, Valid: true}
		role = sql.NullString{String: string(st.Gondola.Role), Valid: true}
		seq = sql.NullInt64{Int64: int64(st.Gondola.Sequence), Valid: true}
	}
	res, err := q.ExecContext(ctx, `INSERT INTO settlements (
		system_name, display_name, aliases,
		gondola_system_id, gondola_role, gondola_sequence,
		tile_id, tile_row, tile_col, pixel_x, pixel_y, world_x, world_z, elevation,
		validated, spatial_type, enemy_occupied, confidence,
		brightness, color_r, color_g, color_b, terrain_type
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.SystemName, st.DisplayName, string(aliases),
		systemID, role, seq,
		st.TileID, st.TileRow, st.TileCol, st.PixelX, st.PixelY, st.WorldX, st.WorldZ, nullFloatPtr(st.Elevation),
		st.Validated, string(st.SpatialType), st.EnemyOccupied, string(st.Confidence),
		nullFloatPtr(st.Terrain.Brightness), nullIntPtr(st.Terrain.R), nullIntPtr(st.Terrain.G), nullIntPtr(st.Terrain.B), st.Terrain.TerrainType)
	if err != nil {
		return 0, classify(op, err)
	}
	return res.LastInsertId()
}

// validateSettlement checks every settlement invariant against the current
// store contents. self is the row being updated, or 0 for an insert.
func validateSettlement(ctx context.Context, q querier, op string, st *model.Settlement, self int64) error {
	st.SystemName = strings.TrimSpace(st.SystemName)
	if st.SystemName == "" {
		return model.Constraint(op, "settlements", "system_name is required")
	}
	tile, err := canonicalTile(op, "settlements", &st.TileID)
	if err != nil {
		return err
	}
	if tile.Row != st.TileRow || tile.Col != st.TileCol {
		return model.Constraint(op, "settlements", "tile %s is row %d col %d, got row %d col %d", st.TileID, tile.Row, tile.Col, st.TileRow, st.TileCol)
	}
	if st.PixelX < 0 || st.PixelY < 0 {
		return model.Constraint(op, "settlements", "negative pixel coordinates (%d,%d)", st.PixelX, st.PixelY)
	}
	if !st.SpatialType.Valid() {
		return model.Constraint(op, "settlements", "invalid spatial_type %q", st.SpatialType)
	}
	if !st.Confidence.Valid() {
		return model.Constraint(op, "settlements", "invalid confidence %q", st.Confidence)
	}
	for _, c := range []*int{st.Terrain.R, st.Terrain.G, st.Terrain.B} {
		if c != nil && (*c < 0 || *c > 255) {
			return model.Constraint(op, "settlements", "colour channel %d out of range", *c)
		}
	}
	if (st.Gondola != nil) != (st.SpatialType == model.SpatialInLine) {
		return model.Constraint(op, "settlements", "spatial_type %q inconsistent with gondola membership", st.SpatialType)
	}

	taken, err := exists(ctx, q, "SELECT 1 FROM settlements WHERE system_name = ? AND id <> ?", st.SystemName, self)
	if err != nil {
		return err
	}
	if taken {
		return model.Constraint(op, "settlements", "duplicate system_name %q", st.SystemName)
	}
	taken, err = exists(ctx, q, "SELECT 1 FROM settlements WHERE tile_id = ? AND pixel_x = ? AND pixel_y = ? AND id <> ?",
		st.TileID, st.PixelX, st.PixelY, self)
	if err != nil {
		return err
	}
	if taken {
		return model.Constraint(op, "settlements", "a settlement already exists at %s(%d,%d)", st.TileID, st.PixelX, st.PixelY)
	}

	if st.Gondola != nil {
		return validateGondolaMembership(ctx, q, op, st.Gondola, self)
	}
	return nil
}

// validateGondolaMembership checks that the role and sequence fit the other
// stations already on the system: origin at 0, pylons strictly between,
// terminus above everything else, no repeated sequence.
func validateGondolaMembership(ctx context.Context, q querier, op string, m *model.GondolaMembership, self int64) error {
	if !m.Role.Valid() {
		return model.Constraint(op, "settlements", "invalid gondola_role %q", m.Role)
	}
	if m.Sequence < 0 {
		return model.Constraint(op, "settlements", "negative gondola_sequence %d", m.Sequence)
	}
	ok, err := exists(ctx, q, "SELECT 1 FROM gondola_systems WHERE id = ?", m.SystemID)
	if err != nil {
		return err
	}
	if !ok {
		return model.Referential(op, "settlements", "gondola system %d does not exist", m.SystemID)
	}

	rows, err := q.QueryContext(ctx, "SELECT gondola_role, gondola_sequence FROM settlements WHERE gondola_system_id = ? AND id <> ?", m.SystemID, self)
	if err != nil {
		return err
	}
	defer rows.Close()

	maxSeq, terminusSeq := -1, -1
	hasOrigin := false
	for rows.Next() {
		var role string
		var seq int
		if err := rows.Scan(&role, &seq); err != nil {
			return err
		}
		if seq == m.Sequence {
			return model.Constraint(op, "settlements", "gondola_sequence %d already used on system %d", seq, m.SystemID)
		}
		if seq > maxSeq {
			maxSeq = seq
		}
		switch model.GondolaRole(role) {
		case model.RoleOrigin:
			hasOrigin = true
		case model.RoleTerminus:
			terminusSeq = seq
		case model.RolePylon:
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	switch m.Role {
	case model.RoleOrigin:
		if m.Sequence != 0 {
			return model.Constraint(op, "settlements", "origin must have gondola_sequence 0, got %d", m.Sequence)
		}
		if hasOrigin {
			return model.Constraint(op, "settlements", "system %d already has an origin", m.SystemID)
		}
	case model.RolePylon:
		if m.Sequence == 0 {
			return model.Constraint(op, "settlements", "pylon cannot take the origin sequence 0")
		}
		if terminusSeq >= 0 && m.Sequence > terminusSeq {
			return model.Constraint(op, "settlements", "pylon sequence %d is past the terminus at %d", m.Sequence, terminusSeq)
		}
	case model.RoleTerminus:
		if terminusSeq >= 0 {
			return model.Constraint(op, "settlements", "system %d already has a terminus", m.SystemID)
		}
		if m.Sequence == 0 || m.Sequence < maxSeq {
			return model.Constraint(op, "settlements", "terminus sequence %d must be the highest on system %d (current max %d)", m.Sequence, m.SystemID, maxSeq)
		}
	}
	return nil
}

// canonicalTile parses *id and rewrites it to its canonical form, so that
// "B10 " and "B10" key the same row.
func canonicalTile(op, entity string, id *string) (tilegrid.Tile, error) {
	tile, err := tilegrid.ParseTileID(*id)
	if err != nil {
		return tilegrid.Tile{}, model.Constraint(op, entity, "%v", err)
	}
	*id = tile.ID()
	return tile, nil
}

// lookupTile canonicalizes a tile id used as a query key. Ids that do not
// parse are used as given and simply match nothing.
func lookupTile(id string) string {
	if tile, err := tilegrid.ParseTileID(id); err == nil {
		return tile.ID()
	}
	return id
}

// FindSettlementByLocation returns the settlement at a tile pixel, or a
// NotFound error.
func (s *Store) FindSettlementByLocation(ctx context.Context, tileID string, x, y int) (*model.Settlement, error) {
	return getSettlement(ctx, s.DB, "tile_id = ? AND pixel_x = ? AND pixel_y = ?", lookupTile(tileID), x, y)
}

// FindSettlementsBySystem returns a system's stations ordered by gondola_sequence.
func (s *Store) FindSettlementsBySystem(ctx context.Context, systemID int64) ([]model.Settlement, error) {
	return listSettlements(ctx, s.DB, "gondola_system_id = ? ORDER BY gondola_sequence, id", systemID)
}

// ListSettlementsByTile returns the settlements on one tile.
func (s *Store) ListSettlementsByTile(ctx context.Context, tileID string) ([]model.Settlement, error) {
	return listSettlements(ctx, s.DB, "tile_id = ? ORDER BY id", lookupTile(tileID))
}

// ListSettlements returns every settlement in row order.
func (s *Store) ListSettlements(ctx context.Context) ([]model.Settlement, error) {
	return listSettlements(ctx, s.DB, "1 = 1 ORDER BY id")
}

// GetSettlement loads one settlement by row id.
func (s *Store) GetSettlement(ctx context.Context, id int64) (*model.Settlement, error) {
	return getSettlement(ctx, s.DB, "id = ?", id)
}

// UpdateSettlementGondola reassigns a settlement to another system, role and
// sequence, revalidating every invariant. A settlement still on a cable line
// must have its line rebuilt or removed first.
func (s *Store) UpdateSettlementGondola(ctx context.Context, id int64, m model.GondolaMembership) error {
	return s.setGondola(ctx, "update settlement gondola", id, &m, model.SpatialInLine)
}

// DetachSettlement removes a settlement from its gondola system and gives it
// a non-in-line classification.
func (s *Store) DetachSettlement(ctx context.Context, id int64, spatial model.SpatialType) error {
	const op = "detach settlement"
	if spatial == model.SpatialInLine {
		return model.Constraint(op, "settlements", "a detached settlement cannot stay %q", spatial)
	}
	return s.setGondola(ctx, op, id, nil, spatial)
}

func (s *Store) setGondola(ctx context.Context, op string, id int64, m *model.GondolaMembership, spatial model.SpatialType) error {
	return s.withTx(ctx, op, func(tx *sql.Tx) error {
		st, err := getSettlement(ctx, tx, "id = ?", id)
		if err != nil {
			return err
		}
		lines, err := count(ctx, tx, "SELECT COUNT(*) FROM cable_car_settlements WHERE settlement_id = ?", id)
		if err != nil {
			return err
		}
		if lines > 0 {
			return model.Referential(op, "settlements", "settlement %d is still a member of %d cable lines", id, lines)
		}

		st.Gondola = m
		st.SpatialType = spatial
		if err := validateSettlement(ctx, tx, op, st, id); err != nil {
			return err
		}

		var systemID sql.NullInt64
		var role sql.NullString
		var seq sql.NullInt64
		if m != nil {
			systemID = sql.NullInt64{Int64: m.SystemID, Valid: true}
			role = sql.NullString{String: string(m.Role), Valid: true}
			seq = sql.NullInt64{Int64: int64(m.Sequence), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `UPDATE settlements
			SET gondola_system_id = ?, gondola_role = ?, gondola_sequence = ?, spatial_type = ?
			WHERE id = ?`, systemID, role, seq, string(spatial), id)
		return err
	})
}

// DeleteSettlement removes a settlement nothing references.
func (s *Store) DeleteSettlement(ctx context.Context, id int64) error {
	const op = "delete settlement"
	return s.withTx(ctx, op, func(tx *sql.Tx) error {
		if _, err := getSettlement(ctx, tx, "id = ?", id); err != nil {
			return err
		}
		lines, err := count(ctx, tx, "SELECT COUNT(*) FROM cable_car_settlements WHERE settlement_id = ?", id)
		if err != nil {
			return err
		}
		anchors, err := count(ctx, tx, "SELECT COUNT(*) FROM stitching_anchors WHERE settlement1_id = ? OR settlement2_id = ?", id, id)
		if err != nil {
			return err
		}
		if lines+anchors > 0 {
			return model.Referential(op, "settlements", "settlement %d is still referenced by %d cable lines, %d anchors", id, lines, anchors)
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM settlements WHERE id = ?", id)
		return err
	})
}

func getSettlement(ctx context.Context, q querier, where string, args ...any) (*model.Settlement, error) {
	row := q.QueryRowContext(ctx, "SELECT "+settlementColumns+" FROM settlements WHERE "+where, args...)
	st, err := scanSettlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.OpError{Op: "get settlement", Kind: model.KindNotFound, Entity: "settlements", Err: fmt.Errorf("no settlement where %s %v", where, args)}
	}
	return st, err
}

func listSettlements(ctx context.Context, q querier, where string, args ...any) ([]model.Settlement, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+settlementColumns+" FROM settlements WHERE "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func scanSettlement(sc scanner) (*model.Settlement, error) {
	var st model.Settlement
	var aliases, spatial, confidence string
	var systemID, seq, r, g, b sql.NullInt64
	var role sql.NullString
	var elevation, brightness sql.NullFloat64
	if err := sc.Scan(&st.ID, &st.SystemName, &st.DisplayName, &aliases,
		&systemID, &role, &seq,
		&st.TileID, &st.TileRow, &st.TileCol, &st.PixelX, &st.PixelY, &st.WorldX, &st.WorldZ, &elevation,
		&st.Validated, &spatial, &st.EnemyOccupied, &confidence,
		&brightness, &r, &g, &b, &st.Terrain.TerrainType); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(aliases), &st.Aliases); err != nil {
		return nil, fmt.Errorf("decoding aliases of settlement %d: %w", st.ID, err)
	}
	if len(st.Aliases) == 0 {
		st.Aliases = nil
	}
	if systemID.Valid {
		st.Gondola = &model.GondolaMembership{
			SystemID: systemID.Int64,
			Role:     model.GondolaRole(role.String),
			Sequence: int(seq.Int64),
		}
	}
	st.SpatialType = model.SpatialType(spatial)
	st.Confidence = model.Confidence(confidence)
	st.Elevation = floatPtr(elevation)
	st.Terrain.Brightness = floatPtr(brightness)
	st.Terrain.R = intPtr(r)
	st.Terrain.G = intPtr(g)
	st.Terrain.B = intPtr(b)
	return &st, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
