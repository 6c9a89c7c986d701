package assembler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Archerevan-01fischb/MW-website/internal/model"
	"github.com/Archerevan-01fischb/MW-website/internal/store"
	"github.com/Archerevan-01fischb/MW-website/internal/tilegrid"
)

func stationOf(sysID, id int64, tileID string, x, y int, role model.GondolaRole, seq int) model.Settlement {
	tile, _ := tilegrid.ParseTileID(tileID)
	return model.Settlement{
		ID: id, SystemName: "s", TileID: tileID, TileRow: tile.Row, TileCol: tile.Col,
		PixelX: x, PixelY: y, SpatialType: model.SpatialInLine, Confidence: model.ConfidenceHigh,
		Gondola: &model.GondolaMembership{SystemID: sysID, Role: role, Sequence: seq},
	}
}

func named(name string, st model.Settlement) model.Settlement {
	st.SystemName = name
	return st
}

func verticalSystem(tiles ...string) *model.GondolaSystem {
	return &model.GondolaSystem{
		ID:           7,
		Identifier:   model.SystemIdentifier{Number: 3},
		Orientation:  model.OrientationVertical,
		StationCount: 4,
		TileList:     tiles,
	}
}

func TestPlanSplitsPerTile(t *testing.T) {
	sys := verticalSystem("G8", "H8")
	stations := []model.Settlement{
		stationOf(7, 1, "G8", 100, 300, model.RoleOrigin, 0),
		stationOf(7, 2, "G8", 103, 450, model.RolePylon, 1),
		stationOf(7, 3, "H8", 101, 40, model.RolePylon, 4),
		stationOf(7, 4, "H8", 99, 200, model.RoleTerminus, 9),
	}

	drafts, spans, err := Plan(sys, stations)
	if err != nil {
		t.Fatalf("planning: %v", err)
	}
	if !spans {
		t.Error("expected system to span multiple tiles")
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(drafts))
	}

	g8 := drafts[0]
	if g8.Line.TileID != "G8" || g8.Line.SettlementCount != 2 || g8.Line.LineType != model.OrientationVertical {
		t.Errorf("unexpected G8 line %+v", g8.Line)
	}
	if g8.Line.AxisCoordinate != 102 {
		t.Errorf("expected axis coordinate 102 (mean x rounded), got %d", g8.Line.AxisCoordinate)
	}
	h8 := drafts[1]
	if h8.Members[0].SettlementID != 3 || h8.Members[0].SequenceNumber != 0 || h8.Members[1].SequenceNumber != 1 {
		t.Errorf("expected H8 members renumbered from 0, got %+v", h8.Members)
	}
	if h8.Line.GondolaSystemID != 7 {
		t.Errorf("expected parent system 7, got %d", h8.Line.GondolaSystemID)
	}
}

func TestPlanHorizontalAxisUsesY(t *testing.T) {
	sys := verticalSystem("C2")
	sys.Orientation = model.OrientationHorizontal
	drafts, spans, err := Plan(sys, []model.Settlement{
		stationOf(7, 1, "C2", 10, 250, model.RoleOrigin, 0),
		stationOf(7, 2, "C2", 400, 251, model.RoleTerminus, 1),
	})
	if err != nil {
		t.Fatalf("planning: %v", err)
	}
	if spans {
		t.Error("expected a single-tile system")
	}
	if drafts[0].Line.AxisCoordinate != 251 {
		t.Errorf("expected axis coordinate 251, got %d", drafts[0].Line.AxisCoordinate)
	}
}

func TestPlanConsistencyErrors(t *testing.T) {
	tests := []struct {
		name     string
		sys      *model.GondolaSystem
		stations []model.Settlement
	}{
		{"no stations", verticalSystem("G8"), nil},
		{"duplicate sequence", verticalSystem("G8"), []model.Settlement{
			stationOf(7, 1, "G8", 1, 1, model.RoleOrigin, 0),
			stationOf(7, 2, "G8", 1, 2, model.RolePylon, 1),
			stationOf(7, 3, "G8", 1, 3, model.RolePylon, 1),
		}},
		{"missing origin", verticalSystem("G8"), []model.Settlement{
			stationOf(7, 2, "G8", 1, 2, model.RolePylon, 1),
			stationOf(7, 3, "G8", 1, 3, model.RoleTerminus, 2),
		}},
		{"foreign station", verticalSystem("G8"), []model.Settlement{
			stationOf(7, 1, "G8", 1, 1, model.RoleOrigin, 0),
			stationOf(8, 2, "G8", 1, 2, model.RoleTerminus, 1),
		}},
		{"tile list disagrees", verticalSystem("G8", "H8"), []model.Settlement{
			stationOf(7, 1, "G8", 1, 1, model.RoleOrigin, 0),
			stationOf(7, 2, "G8", 1, 2, model.RoleTerminus, 1),
		}},
		{"spans undeclared", verticalSystem("G8"), []model.Settlement{
			stationOf(7, 1, "G8", 1, 1, model.RoleOrigin, 0),
			stationOf(7, 2, "H8", 1, 2, model.RoleTerminus, 1),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Plan(tt.sys, tt.stations)
			if !errors.Is(err, model.ErrConsistency) {
				t.Fatalf("expected ConsistencyError, got %v", err)
			}
		})
	}
}

func seed(t *testing.T) (*store.Store, int64) {
	t.Helper()
	s, err := store.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	sys := model.GondolaSystem{
		Identifier:   model.SystemIdentifier{Number: 1},
		Name:         "Gondola 1",
		Origin:       model.Endpoint{TileID: "G8", PixelX: 100, PixelY: 300},
		Terminus:     model.Endpoint{TileID: "H8", PixelX: 100, PixelY: 200},
		Orientation:  model.OrientationVertical,
		StationCount: 3,
		TileList:     []string{"G8", "H8"},
	}
	res, err := s.Load(context.Background(), store.LoadBatch{
		Systems: []model.GondolaSystem{sys},
		Settlements: []store.LoadSettlement{
			{Settlement: named("G1-ORIGIN", stationOf(0, 0, "G8", 100, 300, model.RoleOrigin, 0)), SystemNumber: 1},
			{Settlement: named("G1-PYLON-01", stationOf(0, 0, "G8", 100, 500, model.RolePylon, 1)), SystemNumber: 1},
			{Settlement: named("G1-TERMINUS", stationOf(0, 0, "H8", 100, 200, model.RoleTerminus, 2)), SystemNumber: 1},
		},
	})
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	return s, res.SystemIDs[1]
}

func TestBuildLinePersists(t *testing.T) {
	s, sysID := seed(t)
	a := New(s, nil)
	ctx := context.Background()

	res, err := a.BuildLine(ctx, sysID)
	if err != nil {
		t.Fatalf("building: %v", err)
	}
	if len(res.Lines) != 2 || !res.SpansMultipleTiles {
		t.Fatalf("expected 2 lines across tiles, got %+v", res)
	}

	// Rebuilding replaces rather than duplicates.
	if _, err := a.BuildLine(ctx, sysID); err != nil {
		t.Fatalf("rebuilding: %v", err)
	}
	lines, err := s.ListCableLinesBySystem(ctx, sysID)
	if err != nil {
		t.Fatalf("listing lines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines after rebuild, got %d", len(lines))
	}
	members, err := s.ListMemberships(ctx, lines[0].ID)
	if err != nil {
		t.Fatalf("listing memberships: %v", err)
	}
	if len(members) != 2 || members[0].SequenceNumber != 0 || members[1].SequenceNumber != 1 {
		t.Errorf("expected memberships 0..1, got %+v", members)
	}
}

func TestBuildAllConcurrent(t *testing.T) {
	s, sysID := seed(t)
	a := New(s, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.BuildLine(context.Background(), sysID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent build: %v", err)
	}

	results, err := a.BuildAll(context.Background(), 4)
	if err != nil {
		t.Fatalf("building all: %v", err)
	}
	if len(results) != 1 || results[0].Number != 1 {
		t.Errorf("expected one result for system 1, got %+v", results)
	}
	if n := len(a.locks.slots); n != 0 {
		t.Errorf("expected no lock slots left after the builds, got %d", n)
	}
}

func TestKeyedMutexReleasesSlots(t *testing.T) {
	var k keyedMutex
	unlock, err := k.lock(context.Background(), 1)
	if err != nil {
		t.Fatalf("locking: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := k.lock(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected a held key to wait until ctx is done, got %v", err)
	}
	if n := len(k.slots); n != 1 {
		t.Errorf("expected the holder's slot only, got %d", n)
	}

	unlock()
	if n := len(k.slots); n != 0 {
		t.Errorf("expected the slot removed after unlock, got %d", n)
	}

	again, err := k.lock(context.Background(), 1)
	if err != nil {
		t.Fatalf("relocking: %v", err)
	}
	again()
}

func TestBuildLineUnknownSystem(t *testing.T) {
	s, _ := seed(t)
	_, err := New(s, nil).BuildLine(context.Background(), 404)
	if !model.IsKind(err, model.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
