package store

import (
	"context"

	"github.com/Archerevan-01fischb/MW-website/internal/model"
)

// Summary reads the registry_summary view.
func (s *Store) Summary(ctx context.Context) (*model.Summary, error) {
	var sum model.Summary
	var isolated, inLine, boundaryValidated, boundary, edge int
	err := s.DB.QueryRowContext(ctx, `SELECT total, isolated, in_line, boundary_validated, boundary, edge, enemy_occupied
		FROM registry_summary`).Scan(&sum.Total, &isolated, &inLine, &boundaryValidated, &boundary, &edge, &sum.EnemyOccupied)
	if err != nil {
		return nil, err
	}
	sum.BySpatialType = map[model.SpatialType]int{
		model.SpatialIsolated:          isolated,
		model.SpatialInLine:            inLine,
		model.SpatialBoundaryValidated: boundaryValidated,
		model.SpatialBoundary:          boundary,
		model.SpatialEdge:              edge,
	}
	return &sum, nil
}

// Counts holds row counts per table, for status output.
type Counts struct {
	GondolaSystems int
	Settlements    int
	CableLines     int
	Memberships    int
	Anchors        int
}

// Counts returns the number of rows in every registry table.
func (s *Store) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	for _, t := range []struct {
		table string
		dst   *int
	}{
		{"gondola_systems", &c.GondolaSystems},
		{"settlements", &c.Settlements},
		{"cable_car_lines", &c.CableLines},
		{"cable_car_settlements", &c.Memberships},
		{"stitching_anchors", &c.Anchors},
	} {
		n, err := count(ctx, s.DB, "SELECT COUNT(*) FROM "+t.table)
		if err != nil {
			return nil, err
		}
		*t.dst = n
	}
	return &c, nil
}
