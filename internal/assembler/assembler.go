// Package assembler turns the ordered stations of a gondola system into
// per-tile cable car lines.
package assembler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/Archerevan-01fischb/MW-website/internal/model"
	"github.com/Archerevan-01fischb/MW-website/internal/store"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of assembling one system.
type Result struct {
	SystemID           int64
	Number             int
	Lines              []model.CableCarLine
	SpansMultipleTiles bool
}

// Assembler rebuilds cable lines. Different systems may be assembled
// concurrently; the same system is serialized.
type Assembler struct {
	store *store.Store
	log   *slog.Logger
	locks keyedMutex
}

func New(s *store.Store, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Assembler{store: s, log: logger}
}

// BuildLine replaces the cable lines of one system with lines derived from
// its stations.
func (a *Assembler) BuildLine(ctx context.Context, systemID int64) (*Result, error) {
	unlock, err := a.locks.lock(ctx, systemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sys, err := a.store.GetGondolaSystem(ctx, systemID)
	if err != nil {
		return nil, err
	}
	stations, err := a.store.FindSettlementsBySystem(ctx, systemID)
	if err != nil {
		return nil, fmt.Errorf("loading stations of system %d: %w", sys.Identifier.Number, err)
	}

	drafts, spans, err := Plan(sys, stations)
	if err != nil {
		return nil, err
	}
	lines, err := a.store.ReplaceCableLines(ctx, systemID, drafts)
	if err != nil {
		return nil, err
	}

	a.log.Info("system assembled", "system", sys.Identifier.Number, "lines", len(lines), "stations", len(stations))
	if len(stations) != sys.StationCount {
		a.log.Warn("station count mismatch", "system", sys.Identifier.Number, "declared", sys.StationCount, "found", len(stations))
	}
	return &Result{SystemID: systemID, Number: sys.Identifier.Number, Lines: lines, SpansMultipleTiles: spans}, nil
}

// BuildAll assembles every system, at most workers at a time. The first
// error cancels the remaining work.
func (a *Assembler) BuildAll(ctx context.Context, workers int) ([]Result, error) {
	systems, err := a.store.ListGondolaSystems(ctx)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(systems))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, sys := range systems {
		i, sys := i, sys
		g.Go(func() error {
			res, err := a.BuildLine(gctx, sys.ID)
			if err != nil {
				return fmt.Errorf("system %d: %w", sys.Identifier.Number, err)
			}
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Plan groups stations, already ordered by gondola_sequence, into maximal
// runs on one tile. Each run becomes a line along the system's orientation
// with membership sequence 0..n-1. It reports whether the system spans more
// than one tile, which must agree with the declared tile list.
func Plan(sys *model.GondolaSystem, stations []model.Settlement) ([]store.LineDraft, bool, error) {
	const op = "build line"
	if len(stations) == 0 {
		return nil, false, model.Consistency(op, "cable_car_lines", "system %d has no stations", sys.Identifier.Number)
	}

	prev := -1
	for _, st := range stations {
		if st.Gondola == nil || st.Gondola.SystemID != sys.ID {
			return nil, false, model.Consistency(op, "settlements", "settlement %d is not a station of system %d", st.ID, sys.Identifier.Number)
		}
		seq := st.Gondola.Sequence
		if seq == prev {
			return nil, false, model.Consistency(op, "settlements", "system %d has two stations at gondola_sequence %d", sys.Identifier.Number, seq)
		}
		if seq < prev {
			return nil, false, model.Consistency(op, "settlements", "stations of system %d are not ordered by gondola_sequence", sys.Identifier.Number)
		}
		prev = seq
	}
	if first := stations[0].Gondola; first.Sequence != 0 || first.Role != model.RoleOrigin {
		return nil, false, model.Consistency(op, "settlements", "system %d does not start with an origin at sequence 0", sys.Identifier.Number)
	}

	var drafts []store.LineDraft
	tiles := make(map[string]bool)
	for start := 0; start < len(stations); {
		end := start + 1
		for end < len(stations) && stations[end].TileID == stations[start].TileID {
			end++
		}
		run := stations[start:end]
		tiles[run[0].TileID] = true

		members := make([]model.LineMembership, len(run))
		for i, st := range run {
			members[i] = model.LineMembership{SettlementID: st.ID, SequenceNumber: i}
		}
		drafts = append(drafts, store.LineDraft{
			Line: model.CableCarLine{
				TileID:          run[0].TileID,
				LineType:        sys.Orientation,
				AxisCoordinate:  axisCoordinate(sys.Orientation, run),
				SettlementCount: len(run),
				GondolaSystemID: sys.ID,
			},
			Members: members,
		})
		start = end
	}

	spans := len(tiles) > 1
	if declared := len(sys.TileList) > 1; spans != declared {
		return nil, false, model.Consistency(op, "gondola_systems",
			"system %d stations cover %d tiles but tile_list has %d", sys.Identifier.Number, len(tiles), len(sys.TileList))
	}
	return drafts, spans, nil
}

// axisCoordinate is the rounded mean of the coordinate that stays fixed
// along the line: x for a vertical line, y for a horizontal one.
func axisCoordinate(o model.Orientation, run []model.Settlement) int {
	var sum float64
	for _, st := range run {
		switch o {
		case model.OrientationVertical:
			sum += float64(st.PixelX)
		case model.OrientationHorizontal:
			sum += float64(st.PixelY)
		}
	}
	return int(math.Round(sum / float64(len(run))))
}

// keyedMutex serializes work per key while letting different keys proceed.
// A key's slot lives only while someone holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	slots map[int64]*keySlot
}

type keySlot struct {
	ch   chan struct{}
	refs int
}

func (k *keyedMutex) lock(ctx context.Context, key int64) (func(), error) {
	k.mu.Lock()
	if k.slots == nil {
		k.slots = make(map[int64]*keySlot)
	}
	slot, ok := k.slots[key]
	if !ok {
		slot = &keySlot{ch: make(chan struct{}, 1)}
		k.slots[key] = slot
	}
	slot.refs++
	k.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return func() {
			<-slot.ch
			k.release(key, slot)
		}, nil
	case <-ctx.Done():
		k.release(key, slot)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) release(key int64, slot *keySlot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(k.slots, key)
	}
}
