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

const gondolaColumns = `id, system_name, system_number, gondola_system_text,
	origin_tile_id, origin_pixel_x, origin_pixel_y, origin_brightness, origin_terrain,
	terminus_tile_id, terminus_pixel_x, terminus_pixel_y, terminus_brightness, terminus_terrain,
	brightness_delta, orientation, station_count, tile_list`

// CreateGondolaSystem validates and inserts a gondola system, returning its row id.
func (s *Store) CreateGondolaSystem(ctx context.Context, g *model.GondolaSystem) (int64, error) {
	var id int64
	err := s.withTx(ctx, "create gondola system", func(tx *sql.Tx) error {
		var err error
		id, err = createGondolaSystem(ctx, tx, g)
		return err
	})
	if err != nil {
		return 0, err
	}
	g.ID = id
	return id, nil
}

func createGondolaSystem(ctx context.Context, q querier, g *model.GondolaSystem) (int64, error) {
	const op = "create gondola system"
	if err := validateGondolaSystem(g); err != nil {
		return 0, err
	}

	taken, err := exists(ctx, q, "SELECT 1 FROM gondola_systems WHERE system_name = ?", g.Name)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, model.Constraint(op, "gondola_systems", "duplicate system_name %q", g.Name)
	}
	taken, err = exists(ctx, q, "SELECT 1 FROM gondola_systems WHERE system_number = ?", g.Identifier.Number)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, model.Constraint(op, "gondola_systems", "duplicate system_number %d", g.Identifier.Number)
	}
	if g.Identifier.Text != "" {
		taken, err = exists(ctx, q, "SELECT 1 FROM gondola_systems WHERE gondola_system_text = ?", g.Identifier.Text)
		if err != nil {
			return 0, err
		}
		if taken {
			return 0, model.Constraint(op, "gondola_systems", "duplicate gondola_system_text %q", g.Identifier.Text)
		}
	}

	tiles, err := json.Marshal(g.TileList)
	if err != nil {
		return 0, fmt.Errorf("encoding tile_list: %w", err)
	}
	res, err := q.ExecContext(ctx, `INSERT INTO gondola_systems (
		system_name, system_number, gondola_system_text,
		origin_tile_id, origin_pixel_x, origin_pixel_y, origin_brightness, origin_terrain,
		terminus_tile_id, terminus_pixel_x, terminus_pixel_y, terminus_brightness, terminus_terrain,
		brightness_delta, orientation, station_count, tile_list
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.Name, g.Identifier.Number, nullString(g.Identifier.Text),
		g.Origin.TileID, g.Origin.PixelX, g.Origin.PixelY, g.Origin.Brightness, g.Origin.TerrainType,
		g.Terminus.TileID, g.Terminus.PixelX, g.Terminus.PixelY, g.Terminus.Brightness, g.Terminus.TerrainType,
		g.BrightnessDelta, string(g.Orientation), g.StationCount, string(tiles))
	if err != nil {
		return 0, classify(op, err)
	}
	return res.LastInsertId()
}

// validateGondolaSystem checks the row-local invariants. An empty tile list
// defaults to the endpoint tiles.
func validateGondolaSystem(g *model.GondolaSystem) error {
	const op = "create gondola system"
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return model.Constraint(op, "gondola_systems", "system_name is required")
	}
	if g.Identifier.Number <= 0 {
		return model.Constraint(op, "gondola_systems", "system_number must be positive, got %d", g.Identifier.Number)
	}
	if !g.Identifier.Consistent() {
		return model.Constraint(op, "gondola_systems", "gondola_system_text %q does not encode system_number %d", g.Identifier.Text, g.Identifier.Number)
	}
	if !g.Orientation.Valid() {
		return model.Constraint(op, "gondola_systems", "invalid orientation %q", g.Orientation)
	}
	if g.StationCount < 2 {
		return model.Constraint(op, "gondola_systems", "station_count must be at least 2, got %d", g.StationCount)
	}
	for _, ep := range []struct {
		name string
		e    *model.Endpoint
	}{{"origin", &g.Origin}, {"terminus", &g.Terminus}} {
		tile, err := tilegrid.ParseTileID(ep.e.TileID)
		if err != nil {
			return model.Constraint(op, "gondola_systems", "%s: %v", ep.name, err)
		}
		ep.e.TileID = tile.ID()
		if ep.e.PixelX < 0 || ep.e.PixelY < 0 {
			return model.Constraint(op, "gondola_systems", "%s: negative pixel coordinates", ep.name)
		}
	}
	if g.Origin.SameLocation(g.Terminus) {
		return model.Constraint(op, "gondola_systems", "origin and terminus are the same location %s(%d,%d)", g.Origin.TileID, g.Origin.PixelX, g.Origin.PixelY)
	}

	if len(g.TileList) == 0 {
		g.TileList = []string{g.Origin.TileID}
		if g.Terminus.TileID != g.Origin.TileID {
			g.TileList = append(g.TileList, g.Terminus.TileID)
		}
	}
	seen := make(map[string]bool)
	g.TileList = append([]string(nil), g.TileList...)
	for i := range g.TileList {
		tile, err := tilegrid.ParseTileID(g.TileList[i])
		if err != nil {
			return model.Constraint(op, "gondola_systems", "tile_list: %v", err)
		}
		t := tile.ID()
		g.TileList[i] = t
		if seen[t] {
			return model.Constraint(op, "gondola_systems", "tile_list repeats %s", t)
		}
		seen[t] = true
	}
	if !seen[g.Origin.TileID] || !seen[g.Terminus.TileID] {
		return model.Constraint(op, "gondola_systems", "tile_list must include the origin and terminus tiles")
	}
	return nil
}

// GetGondolaSystem loads one system by row id.
func (s *Store) GetGondolaSystem(ctx context.Context, id int64) (*model.GondolaSystem, error) {
	return getGondolaSystem(ctx, s.DB, "id = ?", id)
}

// GetGondolaSystemByNumber loads one system by its numeric identifier.
func (s *Store) GetGondolaSystemByNumber(ctx context.Context, number int) (*model.GondolaSystem, error) {
	return getGondolaSystem(ctx, s.DB, "system_number = ?", number)
}

// ListGondolaSystems returns every system ordered by system number.
func (s *Store) ListGondolaSystems(ctx context.Context) ([]model.GondolaSystem, error) {
	return listGondolaSystems(ctx, s.DB)
}

func getGondolaSystem(ctx context.Context, q querier, where string, args ...any) (*model.GondolaSystem, error) {
	row := q.QueryRowContext(ctx, "SELECT "+gondolaColumns+" FROM gondola_systems WHERE "+where, args...)
	g, err := scanGondolaSystem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.OpError{Op: "get gondola system", Kind: model.KindNotFound, Entity: "gondola_systems", Err: fmt.Errorf("no system where %s %v", where, args)}
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func listGondolaSystems(ctx context.Context, q querier) ([]model.GondolaSystem, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+gondolaColumns+" FROM gondola_systems ORDER BY system_number")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GondolaSystem
	for rows.Next() {
		g, err := scanGondolaSystem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGondolaSystem(sc scanner) (*model.GondolaSystem, error) {
	var g model.GondolaSystem
	var text sql.NullString
	var orientation, tiles string
	if err := sc.Scan(&g.ID, &g.Name, &g.Identifier.Number, &text,
		&g.Origin.TileID, &g.Origin.PixelX, &g.Origin.PixelY, &g.Origin.Brightness, &g.Origin.TerrainType,
		&g.Terminus.TileID, &g.Terminus.PixelX, &g.Terminus.PixelY, &g.Terminus.Brightness, &g.Terminus.TerrainType,
		&g.BrightnessDelta, &orientation, &g.StationCount, &tiles); err != nil {
		return nil, err
	}
	g.Identifier.Text = text.String
	g.Orientation = model.Orientation(orientation)
	if err := json.Unmarshal([]byte(tiles), &g.TileList); err != nil {
		return nil, fmt.Errorf("decoding tile_list of system %d: %w", g.ID, err)
	}
	return &g, nil
}

// DeleteGondolaSystem removes a system that nothing references. It never
// cascades: referencing settlements, cable lines or anchors block the delete.
func (s *Store) DeleteGondolaSystem(ctx context.Context, id int64) error {
	const op = "delete gondola system"
	return s.withTx(ctx, op, func(tx *sql.Tx) error {
		if _, err := getGondolaSystem(ctx, tx, "id = ?", id); err != nil {
			return err
		}
		settlements, err := count(ctx, tx, "SELECT COUNT(*) FROM settlements WHERE gondola_system_id = ?", id)
		if err != nil {
			return err
		}
		lines, err := count(ctx, tx, "SELECT COUNT(*) FROM cable_car_lines WHERE gondola_system_id = ?", id)
		if err != nil {
			return err
		}
		anchors, err := count(ctx, tx, "SELECT COUNT(*) FROM stitching_anchors WHERE gondola_system_id = ?", id)
		if err != nil {
			return err
		}
		if settlements+lines+anchors > 0 {
			return model.Referential(op, "gondola_systems",
				"system %d is still referenced by %d settlements, %d cable lines, %d anchors", id, settlements, lines, anchors)
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM gondola_systems WHERE id = ?", id)
		return err
	})
}
