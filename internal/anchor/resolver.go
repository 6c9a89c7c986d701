// Package anchor derives stitching anchors for a shared tile edge.
package anchor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/Archerevan-01fischb/MW-website/internal/model"
	"github.com/Archerevan-01fischb/MW-website/internal/store"
	"github.com/Archerevan-01fischb/MW-website/internal/tilegrid"
)

// TileData is what the resolver reads about one side of an edge.
type TileData struct {
	Settlements []model.Settlement
	Lines       []model.CableCarLine
}

// Resolver matches settlements across a tile edge. Tolerance is the largest
// shared-frame distance that still pairs two settlements; Margin is the band,
// in pixels from the edge, in which a settlement is a candidate at all.
type Resolver struct {
	Store     *store.Store
	Grid      tilegrid.Grid
	Tolerance float64
	Margin    int
	Log       *slog.Logger
}

// Resolution is the set of anchors produced for one edge.
type Resolution struct {
	Edge    tilegrid.Edge
	Anchors []model.StitchingAnchor
	Pairs   int
	Orphans int
	Cables  int
}

// ResolveAnchor computes and stores the anchors of edge, whose tiles must be
// tile1 and tile2 in that order. It reads settlements and cable lines and
// writes only stitching anchors, all in one transaction. An edge that already
// has anchors is rejected.
func (r *Resolver) ResolveAnchor(ctx context.Context, edge, tile1, tile2 string) (*Resolution, error) {
	const op = "resolve anchor"
	e, err := tilegrid.ParseEdge(edge)
	if err != nil {
		return nil, err
	}
	if e.Tile1ID != tile1 || e.Tile2ID != tile2 {
		return nil, model.Constraint(op, "stitching_anchors", "edge %s joins %s and %s, not %s and %s", edge, e.Tile1ID, e.Tile2ID, tile1, tile2)
	}
	existing, err := r.Store.ListAnchorsByEdge(ctx, e.String())
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, model.Constraint(op, "stitching_anchors", "edge %s already has %d anchors", e, len(existing))
	}

	d1, err := r.load(ctx, e.Tile1ID)
	if err != nil {
		return nil, err
	}
	d2, err := r.load(ctx, e.Tile2ID)
	if err != nil {
		return nil, err
	}

	res, err := r.Resolve(e, d1, d2)
	if err != nil {
		return nil, err
	}
	if err := r.Store.CreateAnchors(ctx, res.Anchors); err != nil {
		return nil, err
	}
	r.logger().Info("anchors resolved", "edge", e.String(), "pairs", res.Pairs, "orphans", res.Orphans, "cable_lines", res.Cables)
	return res, nil
}

func (r *Resolver) load(ctx context.Context, tileID string) (TileData, error) {
	settlements, err := r.Store.ListSettlementsByTile(ctx, tileID)
	if err != nil {
		return TileData{}, fmt.Errorf("loading settlements on %s: %w", tileID, err)
	}
	lines, err := r.Store.ListCableLinesByTile(ctx, tileID)
	if err != nil {
		return TileData{}, fmt.Errorf("loading cable lines on %s: %w", tileID, err)
	}
	return TileData{Settlements: settlements, Lines: lines}, nil
}

func (r *Resolver) logger() *slog.Logger {
	if r.Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Log
}

// Resolve computes the anchors for e without touching the store. d1 and d2
// describe e.Tile1 and e.Tile2.
func (r *Resolver) Resolve(e tilegrid.Edge, d1, d2 TileData) (*Resolution, error) {
	if err := r.Grid.Validate(); err != nil {
		return nil, err
	}
	if r.Tolerance < 0 || r.Margin <= 0 {
		return nil, fmt.Errorf("resolver needs tolerance >= 0 and margin > 0, got %v and %d", r.Tolerance, r.Margin)
	}
	res := &Resolution{Edge: e}
	prefix := e.String()

	// Cable lines running across the edge are anchored as lines. Their
	// stations take no part in settlement pairing.
	crossing := e.Side1.Crossing()
	onTile2 := make(map[int64]int)
	for _, l := range d2.Lines {
		if l.LineType == crossing && l.GondolaSystemID != 0 {
			onTile2[l.GondolaSystemID] += l.SettlementCount
		}
	}
	lineMember := make(map[int64]bool)
	for _, l := range d1.Lines {
		n, ok := onTile2[l.GondolaSystemID]
		if l.LineType != crossing || l.GondolaSystemID == 0 || !ok {
			continue
		}
		res.Cables++
		count := l.SettlementCount + n
		res.Anchors = append(res.Anchors, model.StitchingAnchor{
			AnchorID:        fmt.Sprintf("%s/cable/%03d", prefix, res.Cables),
			Kind:            model.AnchorCableLine,
			Tile1ID:         e.Tile1ID,
			Tile2ID:         e.Tile2ID,
			Edge:            prefix,
			CableCarLineID:  l.ID,
			GondolaSystemID: l.GondolaSystemID,
			SettlementCount: &count,
		})
		lineMember[l.GondolaSystemID] = true
	}

	near := func(d TileData, side tilegrid.Side) []model.Settlement {
		var out []model.Settlement
		for _, st := range d.Settlements {
			if st.Gondola != nil && lineMember[st.Gondola.SystemID] {
				continue
			}
			if r.Grid.NearSide(side, st.PixelX, st.PixelY, r.Margin) {
				out = append(out, st)
			}
		}
		return out
	}
	c1 := near(d1, e.Side1)
	c2 := near(d2, e.Side2)

	type candidate struct {
		a, b model.Settlement
		dist float64
	}
	var pairs []candidate
	for _, a := range c1 {
		for _, b := range c2 {
			d := r.Grid.Distance(e.Tile1, a.PixelX, a.PixelY, e.Tile2, b.PixelX, b.PixelY)
			if d <= r.Tolerance {
				pairs = append(pairs, candidate{a: a, b: b, dist: d})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].dist != pairs[j].dist {
			return pairs[i].dist < pairs[j].dist
		}
		if pairs[i].a.ID != pairs[j].a.ID {
			return pairs[i].a.ID < pairs[j].a.ID
		}
		return pairs[i].b.ID < pairs[j].b.ID
	})

	matched := make(map[int64]bool)
	for _, p := range pairs {
		if matched[p.a.ID] || matched[p.b.ID] {
			continue
		}
		matched[p.a.ID] = true
		matched[p.b.ID] = true
		res.Pairs++
		dist := p.dist
		res.Anchors = append(res.Anchors, model.StitchingAnchor{
			AnchorID:       fmt.Sprintf("%s/pair/%03d", prefix, res.Pairs),
			Kind:           model.AnchorSettlementPair,
			Tile1ID:        e.Tile1ID,
			Tile2ID:        e.Tile2ID,
			Edge:           prefix,
			Settlement1ID:  p.a.ID,
			Settlement2ID:  p.b.ID,
			DistancePixels: &dist,
		})
	}

	for _, st := range append(c1, c2...) {
		if matched[st.ID] {
			continue
		}
		res.Orphans++
		res.Anchors = append(res.Anchors, model.StitchingAnchor{
			AnchorID:      fmt.Sprintf("%s/orphan/%03d", prefix, res.Orphans),
			Kind:          model.AnchorOrphanSettlement,
			Tile1ID:       st.TileID,
			Edge:          prefix,
			Settlement1ID: st.ID,
		})
	}
	return res, nil
}
