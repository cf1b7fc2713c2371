package annotation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/svi-coverage-go/internal/config"
	"github.com/jengzang/svi-coverage-go/internal/models"
	"github.com/jengzang/svi-coverage-go/internal/repository"
)

var testCells = []models.GridCell{
	{GridID: 0, Lat: 55.8600, Lon: -4.2500},
	{GridID: 1, Lat: 55.8610, Lon: -4.2500},
	{GridID: 2, Lat: 55.8620, Lon: -4.2500},
}

// eastWest is a line crossing the cell centred at lat
func eastWest(lat float64) orb.LineString {
	return orb.LineString{{-4.2510, lat}, {-4.2490, lat}}
}

func TestJoinTagsRoadTiers(t *testing.T) {
	layers := []OSMLayer{
		{Name: RoadsLayer, Features: []OSMFeature{
			{Geometry: eastWest(55.8600), Tags: map[string]string{"highway": "footway"}},
			{Geometry: eastWest(55.8610), Tags: map[string]string{"highway": "primary", "name": "Argyle St"}},
			{Geometry: eastWest(55.8610), Tags: map[string]string{"highway": "footway"}},
		}},
	}

	out := NewTagJoiner(10).JoinTags(testCells, layers)
	require.Len(t, out, 3)

	assert.Equal(t, models.RoadTypeNonDrivable, out[0].RoadType)
	assert.Equal(t, "footway", out[0].GridHighway)

	assert.Equal(t, models.RoadTypeDrivable, out[1].RoadType)
	assert.Equal(t, "primary", out[1].GridHighway)
	assert.Equal(t, []string{"highway", "highway"}, out[1].TagKeys)
	assert.Equal(t, []string{"primary", "footway"}, out[1].TagValues)
	assert.Equal(t, 2, out[1].NTags)
	assert.Equal(t, 1, out[1].UniqueKeys)

	assert.Equal(t, models.RoadTypeNoRoad, out[2].RoadType)
	assert.Equal(t, "", out[2].GridHighway)
	assert.Equal(t, 0, out[2].NTags)
	assert.Equal(t, 2, out[2].GridID)
}

func TestJoinTagsPolygonsAndPoints(t *testing.T) {
	// Building covering cell 2 entirely, shop point inside cell 0
	building := orb.Polygon{{{-4.26, 55.8615}, {-4.24, 55.8615}, {-4.24, 55.8630}, {-4.26, 55.8630}, {-4.26, 55.8615}}}
	layers := []OSMLayer{
		{Name: "buildings", Features: []OSMFeature{
			{Geometry: building, Tags: map[string]string{"building": "yes", "addr:street": "x"}},
		}},
		{Name: "shops", Features: []OSMFeature{
			{Geometry: orb.Point{-4.25001, 55.86001}, Tags: map[string]string{"shop": "bakery", "amenity": "cafe"}},
		}},
	}

	out := NewTagJoiner(10).JoinTags(testCells, layers)

	assert.Equal(t, []string{"amenity", "shop"}, out[0].TagKeys)
	assert.Equal(t, []string{"cafe", "bakery"}, out[0].TagValues)
	assert.Equal(t, models.RoadTypeNoRoad, out[0].RoadType)

	assert.Empty(t, out[1].TagKeys)
	assert.Equal(t, []string{"building"}, out[2].TagKeys)
}

func TestIsDrivable(t *testing.T) {
	assert.True(t, IsDrivable(map[string]string{"highway": "residential"}))
	assert.True(t, IsDrivable(map[string]string{"highway": "service"}))
	assert.False(t, IsDrivable(map[string]string{"highway": "footway"}))
	assert.False(t, IsDrivable(map[string]string{"highway": "cycleway"}))
	assert.False(t, IsDrivable(map[string]string{"highway": "service", "service": "parking_aisle"}))
	assert.False(t, IsDrivable(map[string]string{"highway": "primary", "motor_vehicle": "no"}))
	assert.False(t, IsDrivable(map[string]string{"highway": "residential", "area": "yes"}))
	assert.False(t, IsDrivable(map[string]string{"building": "yes"}))
}

func TestPickMainHighway(t *testing.T) {
	assert.Equal(t, "primary", PickMainHighway([]string{"footway", "primary", "residential"}))
	assert.Equal(t, "motorway", PickMainHighway([]string{"trunk", "motorway"}))
	assert.Equal(t, "footway", PickMainHighway([]string{"footway"}))
	assert.Equal(t, "bus_stop", PickMainHighway([]string{"bus_stop", "crossing"}))
	assert.Equal(t, "", PickMainHighway(nil))
}

func TestClassifyRoadType(t *testing.T) {
	assert.Equal(t, models.RoadTypeDrivable, ClassifyRoadType(true, true))
	assert.Equal(t, models.RoadTypeNonDrivable, ClassifyRoadType(true, false))
	assert.Equal(t, models.RoadTypeNoRoad, ClassifyRoadType(false, false))
}

func TestLoadOSMLayersSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	roads := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"highway":"footway","lanes":2,"oneway":null},
		 "geometry":{"type":"LineString","coordinates":[[-4.251,55.86],[-4.249,55.86]]}},
		{"type":"Feature","properties":{"highway":"primary"},"geometry":null}
	]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "roads.geojson"), []byte(roads), 0o644))

	layers, err := LoadOSMLayers(dir)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, RoadsLayer, layers[0].Name)
	require.Len(t, layers[0].Features, 1)
	assert.Equal(t, map[string]string{"highway": "footway", "lanes": "2"}, layers[0].Features[0].Tags)
}

func TestTagJoinStep(t *testing.T) {
	dir := t.TempDir()
	osmDir := filepath.Join(dir, "osm")
	require.NoError(t, os.MkdirAll(osmDir, 0o755))
	roads := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"highway":"footway"},
		 "geometry":{"type":"LineString","coordinates":[[-4.251,55.86],[-4.249,55.86]]}}
	]}`
	require.NoError(t, os.WriteFile(filepath.Join(osmDir, "roads.geojson"), []byte(roads), 0o644))

	cfg := &config.Config{
		GridPath:       filepath.Join(dir, "grid.csv"),
		TagsPath:       filepath.Join(dir, "tags.csv"),
		OSMDir:         osmDir,
		CellHalfWidthM: 10,
	}
	require.NoError(t, repository.NewGridFileRepository(cfg.GridPath).Save(testCells))

	step, err := NewTagJoinStep(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "tags", step.GetName())

	p, err := step.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.Processed)
	assert.Equal(t, 3, p.Total)

	tags, err := repository.NewTagsFileRepository(cfg.TagsPath).Load()
	require.NoError(t, err)
	require.Len(t, tags, 3)
	assert.Equal(t, models.RoadTypeNonDrivable, tags[0].RoadType)
	assert.Equal(t, "footway", tags[0].GridHighway)
	assert.Equal(t, models.RoadTypeNoRoad, tags[1].RoadType)
}

func TestLoadOSMLayersScalarTagValues(t *testing.T) {
	dir := t.TempDir()
	shops := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"shop":"bakery","osm_id":1000000000000000000000,"height":12.5,
		 "wheelchair":true,"opening":{"mo":"9-5"},"refs":[1,2],"name":""},
		 "geometry":{"type":"Point","coordinates":[-4.25,55.86]}}
	]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shops.geojson"), []byte(shops), 0o644))

	layers, err := LoadOSMLayers(dir)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, map[string]string{
		"shop":       "bakery",
		"osm_id":     "1000000000000000000000",
		"height":     "12.5",
		"wheelchair": "true",
	}, layers[0].Features[0].Tags)
}
