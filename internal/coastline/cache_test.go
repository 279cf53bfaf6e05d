package coastline

import (
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eo-tools/eoingest/internal/geom"
)

// writeLandShapefile writes a shapefile with the given polygon rings,
// one feature per ring, points in (easting, northing) order.
func writeLandShapefile(t *testing.T, rings ...[]shp.Point) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "land.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	for _, ring := range rings {
		pl := shp.NewPolyLine([][]shp.Point{ring})
		pg := shp.Polygon(*pl)
		_, err := w.Write(&pg)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return path
}

func rect(llx, lly, urx, ury float64) []shp.Point {
	return []shp.Point{
		{X: llx, Y: lly}, {X: urx, Y: lly}, {X: urx, Y: ury}, {X: llx, Y: ury}, {X: llx, Y: lly},
	}
}

// continentalLand approximates the European mainland for an AOI around
// Denmark: land everywhere south of ~54.5N between 4E and 15E, plus a
// small island far outside the AOI to exercise the envelope prefilter.
func continentalLand(t *testing.T) string {
	return writeLandShapefile(t,
		rect(4, 45, 15, 54.5),
		rect(-30, 60, -25, 65),
	)
}

func footprintBox(llx, lly, urx, ury float64) orb.Ring {
	return orb.Ring{
		{llx, lly}, {urx, lly}, {urx, ury}, {llx, ury}, {llx, lly},
	}
}

func TestBuildCache_ClipsToAOI(t *testing.T) {
	aoi := geom.NewBbox(orb.Point{8, 50}, orb.Point{12.3, 55})

	cache, err := BuildCache(continentalLand(t), aoi, nil)
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len(), "distant island must be dropped")

	for _, ring := range cache.Rings() {
		for _, pt := range ring {
			assert.True(t, aoi.Contains(pt), "vertex %v outside AOI", pt)
		}
	}
}

func TestBuildCache_MissingFile(t *testing.T) {
	aoi := geom.NewBbox(orb.Point{0, 0}, orb.Point{1, 1})

	_, err := BuildCache(filepath.Join(t.TempDir(), "nope.shp"), aoi, nil)
	assert.Error(t, err)
}

func TestBuildCache_EmptyResultAllowed(t *testing.T) {
	// open North Sea: no land in the AOI at all
	aoi := geom.NewBbox(orb.Point{2, 56}, orb.Point{3, 57})

	cache, err := BuildCache(continentalLand(t), aoi, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestCheck_FootprintOverLand(t *testing.T) {
	aoi := geom.NewBbox(orb.Point{8, 50}, orb.Point{12.3, 55})
	cache, err := BuildCache(continentalLand(t), aoi, nil)
	require.NoError(t, err)

	// inland footprint west of Bremen
	fp := footprintBox(8.4, 52.6, 8.7, 53.0)
	assert.True(t, cache.Check(fp, nil))
}

func TestCheck_FootprintOffshore(t *testing.T) {
	aoi := geom.NewBbox(orb.Point{8, 50}, orb.Point{12.3, 55})
	cache, err := BuildCache(continentalLand(t), aoi, nil)
	require.NoError(t, err)

	// North Sea, far from any cached land
	fp := footprintBox(3.4195, 56.7572, 4.4739, 56.9073)
	assert.False(t, cache.Check(fp, nil))
}

func TestCheck_FailsOpen(t *testing.T) {
	fp := footprintBox(3.4195, 56.7572, 4.4739, 56.9073)

	var nilCache *Cache
	assert.True(t, nilCache.Check(fp, nil), "nil cache accepts everything")

	empty := &Cache{}
	assert.True(t, empty.Check(fp, nil), "empty cache accepts everything")

	aoi := geom.NewBbox(orb.Point{8, 50}, orb.Point{12.3, 55})
	cache, err := BuildCache(continentalLand(t), aoi, nil)
	require.NoError(t, err)
	assert.True(t, cache.Check(nil, nil), "missing footprint accepts the coverage")
}

func TestCheck_ContainmentBothWays(t *testing.T) {
	aoi := geom.NewBbox(orb.Point{0, 0}, orb.Point{100, 100})
	path := writeLandShapefile(t, rect(40, 40, 60, 60))

	cache, err := BuildCache(path, aoi, nil)
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	assert.True(t, cache.Check(footprintBox(10, 10, 90, 90), nil), "footprint containing land")
	assert.True(t, cache.Check(footprintBox(45, 45, 55, 55), nil), "footprint inside land")
	assert.False(t, cache.Check(footprintBox(70, 70, 90, 90), nil), "disjoint footprint")
}
