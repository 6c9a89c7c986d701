package detection

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Archerevan-01fischb/MW-website/internal/model"
	"github.com/Archerevan-01fischb/MW-website/internal/store"
	"github.com/Archerevan-01fischb/MW-website/internal/tilegrid"
)

var grid = tilegrid.Grid{TileWidth: 512, TileHeight: 512, WorldScale: 2}

const sampleYAML = `
gondola_systems:
  - system_number: 1
    system_name: Gondola 1
    origin: {tile_id: G8, pixel_x: 100, pixel_y: 300, brightness: 40}
    terminus: {tile_id: H8, pixel_x: 100, pixel_y: 200, brightness: 190}
    brightness_delta: 150
    orientation: vertical
    station_count: 2
settlements:
  - system_name: G1-ORIGIN
    tile_id: G8
    pixel_x: 100
    pixel_y: 300
    spatial_type: in-line
    confidence: high
    gondola_system_number: 1
    gondola_role: origin
    gondola_sequence: 0
  - system_name: G1-TERMINUS
    tile_id: H8
    pixel_x: 100
    pixel_y: 200
    spatial_type: in-line
    confidence: high
    gondola_system_number: 1
    gondola_role: terminus
    gondola_sequence: 1
  - system_name: Lonely Farm
    display_name: Farm
    aliases: [Homestead]
    tile_id: B10
    pixel_x: 200
    pixel_y: 300
    spatial_type: isolated
    confidence: low
    enemy_occupied: true
    terrain: {brightness: 80.5, r: 10, g: 200, b: 30, terrain_type: grass}
`

const sampleJSON = `{
  "gondola_systems": [],
  "settlements": [
    {"system_name": "A", "tile_id": "A1", "pixel_x": 1, "pixel_y": 2, "spatial_type": "edge", "confidence": "medium", "validated": true}
  ]
}`

func TestDecodeYAMLAndBatch(t *testing.T) {
	doc, err := Decode(strings.NewReader(sampleYAML), FormatYAML)
	if err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(doc.GondolaSystems) != 1 || len(doc.Settlements) != 3 {
		t.Fatalf("expected 1 system and 3 settlements, got %d and %d", len(doc.GondolaSystems), len(doc.Settlements))
	}

	b, err := doc.Batch(grid)
	if err != nil {
		t.Fatalf("building batch: %v", err)
	}
	farm := b.Settlements[2].Settlement
	if farm.TileRow != 1 || farm.TileCol != 9 {
		t.Errorf("expected B10 at row 1 col 9, got %d,%d", farm.TileRow, farm.TileCol)
	}
	// Shared frame (9*512+200, 1*512+300) scaled by 2.
	if farm.WorldX != 9616 || farm.WorldZ != 1624 {
		t.Errorf("expected world (9616, 1624), got (%v, %v)", farm.WorldX, farm.WorldZ)
	}
	if farm.Terrain.G == nil || *farm.Terrain.G != 200 || farm.Aliases[0] != "Homestead" {
		t.Errorf("expected terrain and aliases carried, got %+v", farm)
	}
	origin := b.Settlements[0]
	if origin.SystemNumber != 1 || origin.Settlement.Gondola == nil || origin.Settlement.Gondola.Role != model.RoleOrigin {
		t.Errorf("expected origin membership, got %+v", origin)
	}
}

func TestDecodeJSON(t *testing.T) {
	doc, err := Decode(strings.NewReader(sampleJSON), FormatJSON)
	if err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(doc.Settlements) != 1 || !doc.Settlements[0].Validated {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	if _, err := Decode(strings.NewReader(`{"settlements": [{"system_nmae": "typo"}]}`), FormatJSON); err == nil {
		t.Error("expected json decode to reject an unknown field")
	}
	if _, err := Decode(strings.NewReader("settlements:\n  - tile: A1\n"), FormatYAML); err == nil {
		t.Error("expected yaml decode to reject an unknown field")
	}
}

func TestBatchRejects(t *testing.T) {
	seq := 0
	tests := []struct {
		name string
		rec  SettlementRecord
	}{
		{"bad tile", SettlementRecord{SystemName: "x", TileID: "8G"}},
		{"outside tile", SettlementRecord{SystemName: "x", TileID: "A1", PixelX: 512}},
		{"role without system", SettlementRecord{SystemName: "x", TileID: "A1", GondolaRole: "origin", GondolaSequence: &seq}},
		{"system without sequence", SettlementRecord{SystemName: "x", TileID: "A1", GondolaSystemNumber: 1, GondolaRole: "origin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &Document{Settlements: []SettlementRecord{tt.rec}}
			if _, err := doc.Batch(grid); !errors.Is(err, model.ErrConstraintViolation) {
				t.Fatalf("expected ConstraintViolation, got %v", err)
			}
		})
	}
}

func TestFormatFor(t *testing.T) {
	for path, want := range map[string]Format{"a.json": FormatJSON, "b.YAML": FormatYAML, "c.yml": FormatYAML} {
		got, err := FormatFor(path)
		if err != nil || got != want {
			t.Errorf("%s: expected %s, got %s (%v)", path, want, got, err)
		}
	}
	if _, err := FormatFor("d.csv"); err == nil {
		t.Error("expected error for .csv")
	}
}

func TestLoaderLoadsFileAtomically(t *testing.T) {
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "data"), nil)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	l := &Loader{Store: s, Grid: grid}

	path := filepath.Join(dir, "pass.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("writing: %v", err)
	}
	doc, err := ReadFile(path)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	res, err := l.Load(ctx, doc)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if len(res.SettlementIDs) != 3 {
		t.Fatalf("expected 3 settlement ids, got %d", len(res.SettlementIDs))
	}

	// A second pass that repeats a location rolls back entirely.
	again := &Document{Settlements: []SettlementRecord{
		{SystemName: "New Mill", TileID: "C1", PixelX: 5, PixelY: 5, SpatialType: "isolated", Confidence: "high"},
		{SystemName: "Clash", TileID: "B10", PixelX: 200, PixelY: 300, SpatialType: "isolated", Confidence: "high"},
	}}
	if _, err := l.Load(ctx, again); !errors.Is(err, model.ErrConstraintViolation) {
		t.Fatalf("expected ConstraintViolation, got %v", err)
	}
	if _, err := s.FindSettlementByLocation(ctx, "C1", 5, 5); !model.IsKind(err, model.KindNotFound) {
		t.Errorf("expected New Mill rolled back, got %v", err)
	}
}
