package annotation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/jengzang/svi-coverage-go/internal/analysis"
	"github.com/jengzang/svi-coverage-go/internal/config"
	"github.com/jengzang/svi-coverage-go/internal/models"
	"github.com/jengzang/svi-coverage-go/internal/repository"
	"github.com/jengzang/svi-coverage-go/internal/spatial"
)

// RoadsLayer is the layer whose features decide a cell's road tier
const RoadsLayer = "roads"

// OSMLayerNames lists the layers read from <dir>/<name>.geojson, in join order
var OSMLayerNames = []string{RoadsLayer, "buildings", "landuse", "amenities", "natural", "shops", "tourism"}

// SemanticKeys is the allow-list of OSM tag keys kept per cell, in output order
var SemanticKeys = []string{"building", "landuse", "amenity", "natural", "shop", "tourism", "highway"}

// highwayPriority ranks highway values when picking a cell's representative road
var highwayPriority = []string{
	"motorway", "trunk", "primary", "secondary", "tertiary",
	"residential", "service", "unclassified", "pedestrian", "track", "path", "footway",
}

// Ways excluded from the drivable network
var (
	nonDrivableHighways = map[string]bool{
		"footway": true, "path": true, "pedestrian": true, "steps": true, "cycleway": true,
		"track": true, "bridleway": true, "corridor": true, "elevator": true, "escalator": true,
		"proposed": true, "construction": true, "abandoned": true, "platform": true, "raceway": true,
	}
	nonDrivableServices = map[string]bool{
		"parking": true, "parking_aisle": true, "private": true, "emergency_access": true,
	}
)

// OSMFeature is one OSM object with its string tags
type OSMFeature struct {
	Geometry orb.Geometry
	Tags     map[string]string
}

// OSMLayer is a named set of OSM features
type OSMLayer struct {
	Name     string
	Features []OSMFeature
}

// LoadOSMLayers reads every known layer file present in dir. Missing files are skipped.
func LoadOSMLayers(dir string) ([]OSMLayer, error) {
	var layers []OSMLayer
	for _, name := range OSMLayerNames {
		path := filepath.Join(dir, name+".geojson")
		features, err := spatial.ReadFeatures(path)
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("[TagJoiner] Layer %s not found at %s, skipping", name, path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load OSM layer %s: %w", name, err)
		}

		layer := OSMLayer{Name: name, Features: make([]OSMFeature, 0, len(features))}
		for _, f := range features {
			if f.Geometry == nil {
				continue
			}
			tags := make(map[string]string, len(f.Properties))
			for k, v := range f.Properties {
				if s, ok := tagValue(v); ok {
					tags[k] = s
				}
			}
			layer.Features = append(layer.Features, OSMFeature{Geometry: f.Geometry, Tags: tags})
		}
		log.Printf("[TagJoiner] Layer %s: %d features", name, len(layer.Features))
		layers = append(layers, layer)
	}
	return layers, nil
}

// tagValue renders a scalar property the way OSM stores it. Null, empty,
// object and array values are not tags.
func tagValue(v interface{}) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return "", false
	}
	return s, s != ""
}

// IsDrivable reports whether a way belongs to the drivable road network
func IsDrivable(tags map[string]string) bool {
	highway := tags["highway"]
	if highway == "" || nonDrivableHighways[highway] {
		return false
	}
	if tags["area"] == "yes" {
		return false
	}
	if tags["motor_vehicle"] == "no" || tags["motorcar"] == "no" {
		return false
	}
	return !nonDrivableServices[tags["service"]]
}

// ClassifyRoadType maps road presence onto a tier: drivable wins over non-drivable,
// which wins over no-road
func ClassifyRoadType(anyRoad, drivableRoad bool) string {
	switch {
	case drivableRoad:
		return models.RoadTypeDrivable
	case anyRoad:
		return models.RoadTypeNonDrivable
	default:
		return models.RoadTypeNoRoad
	}
}

// PickMainHighway returns the highest-priority highway value, else the first value,
// else ""
func PickMainHighway(values []string) string {
	present := make(map[string]bool, len(values))
	for _, v := range values {
		present[v] = true
	}
	for _, p := range highwayPriority {
		if present[p] {
			return p
		}
	}
	if len(values) > 0 {
		return values[0]
	}
	return ""
}

// cellEntry is a grid cell square stored in the R-tree
type cellEntry struct {
	pos   int
	bound orb.Bound
	rect  rtreego.Rect
}

func (e *cellEntry) Bounds() rtreego.Rect {
	return e.rect
}

// cellHits accumulates the features touching one cell
type cellHits struct {
	keys     []string
	values   []string
	highways []string
	anyRoad  bool
	drivable bool
}

// TagJoiner attaches OSM tags and a road tier to grid cells
type TagJoiner struct {
	HalfWidthM float64 // Half-width of each cell square
}

// NewTagJoiner creates a new tag joiner
func NewTagJoiner(halfWidthM float64) *TagJoiner {
	if halfWidthM <= 0 {
		halfWidthM = 10
	}
	return &TagJoiner{HalfWidthM: halfWidthM}
}

// JoinTags intersects every layer with the cell squares and returns one row per cell,
// in input order
func (j *TagJoiner) JoinTags(cells []models.GridCell, layers []OSMLayer) []models.GridTags {
	entries := make([]rtreego.Spatial, 0, len(cells))
	for i, c := range cells {
		b := spatial.SquareAround(c.Lat, c.Lon, j.HalfWidthM)
		entries = append(entries, &cellEntry{pos: i, bound: b, rect: boundRect(b)})
	}
	tree := rtreego.NewTree(2, 25, 50, entries...)

	hits := make([]cellHits, len(cells))
	for _, layer := range layers {
		isRoads := layer.Name == RoadsLayer
		for _, f := range layer.Features {
			for _, obj := range tree.SearchIntersect(boundRect(f.Geometry.Bound())) {
				e := obj.(*cellEntry)
				if !spatial.BoundIntersectsGeometry(e.bound, f.Geometry) {
					continue
				}
				h := &hits[e.pos]
				for _, k := range SemanticKeys {
					if v, ok := f.Tags[k]; ok {
						h.keys = append(h.keys, k)
						h.values = append(h.values, v)
						if k == "highway" {
							h.highways = append(h.highways, v)
						}
					}
				}
				if isRoads {
					h.anyRoad = true
					if IsDrivable(f.Tags) {
						h.drivable = true
					}
				}
			}
		}
	}

	out := make([]models.GridTags, len(cells))
	for i, c := range cells {
		h := hits[i]
		out[i] = models.GridTags{
			GridID:      c.GridID,
			QueryLat:    c.Lat,
			QueryLon:    c.Lon,
			GridHighway: PickMainHighway(h.highways),
			RoadType:    ClassifyRoadType(h.anyRoad, h.drivable),
			NTags:       len(h.keys),
			UniqueKeys:  countUnique(h.keys),
			TagKeys:     h.keys,
			TagValues:   h.values,
		}
	}
	return out
}

// rectPad keeps degenerate bounds (points, axis-aligned lines) searchable
const rectPad = 1e-9

func boundRect(b orb.Bound) rtreego.Rect {
	r, _ := rtreego.NewRectFromPoints(
		rtreego.Point{b.Min[0] - rectPad, b.Min[1] - rectPad},
		rtreego.Point{b.Max[0] + rectPad, b.Max[1] + rectPad},
	)
	return r
}

func countUnique(items []string) int {
	seen := make(map[string]struct{}, len(items))
	for _, s := range items {
		seen[s] = struct{}{}
	}
	return len(seen)
}

// TagJoinStep annotates the grid with OSM tags and road tiers
// Skill: 道路与用地标注 (OSM Tag Annotation)
type TagJoinStep struct {
	cfg     *config.Config
	grid    *repository.GridFileRepository
	tags    *repository.TagsFileRepository
	results *repository.ResultsRepository
}

// NewTagJoinStep creates a new tags step
func NewTagJoinStep(cfg *config.Config, db *sql.DB) (analysis.Step, error) {
	s := &TagJoinStep{
		cfg:  cfg,
		grid: repository.NewGridFileRepository(cfg.GridPath),
		tags: repository.NewTagsFileRepository(cfg.TagsPath),
	}
	if db != nil {
		s.results = repository.NewResultsRepository(db)
	}
	return s, nil
}

// GetName returns the step name
func (s *TagJoinStep) GetName() string {
	return "tags"
}

// Run joins the OSM layers onto the grid
func (s *TagJoinStep) Run(ctx context.Context) (*analysis.Progress, error) {
	cells, err := s.grid.Load()
	if err != nil {
		return nil, err
	}
	layers, err := LoadOSMLayers(s.cfg.OSMDir)
	if err != nil {
		return nil, err
	}

	tags := NewTagJoiner(s.cfg.CellHalfWidthM).JoinTags(cells, layers)

	tiers := make(map[string]int)
	tagged := 0
	for _, t := range tags {
		tiers[t.RoadType]++
		if t.NTags > 0 {
			tagged++
		}
	}
	log.Printf("[TagJoiner] no-road=%d non-drivable=%d drivable=%d, %d cells with tags",
		tiers[models.RoadTypeNoRoad], tiers[models.RoadTypeNonDrivable], tiers[models.RoadTypeDrivable], tagged)

	if err := s.tags.Save(tags); err != nil {
		return nil, err
	}
	if s.results != nil {
		if err := s.results.ReplaceTags(ctx, tags); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(layers))
	for _, l := range layers {
		names = append(names, l.Name)
	}
	sort.Strings(names)

	return &analysis.Progress{
		Processed: tagged,
		Total:     len(tags),
		Message:   fmt.Sprintf("layers=%v", names),
	}, nil
}

func init() {
	analysis.RegisterStep("tags", NewTagJoinStep)
}
