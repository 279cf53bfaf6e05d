// Package coastline builds a per-AOI cache of land polygons from a
// shapefile and answers whether a coverage footprint touches land.
package coastline

import (
	"fmt"
	"log/slog"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"github.com/eo-tools/eoingest/internal/geom"
)

// Cache holds land polygons clipped to a single AOI bounding box, in
// WGS84. It is built once per scenario run and owned by the worker that
// built it; it is never shared.
type Cache struct {
	AOI   geom.Bbox
	rings []orb.Ring
}

// Len returns the number of retained land polygons.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rings)
}

// Rings exposes the retained polygons, each one a closed outer ring with
// every vertex inside or on the AOI boundary.
func (c *Cache) Rings() []orb.Ring {
	if c == nil {
		return nil
	}
	return c.rings
}

// BuildCache reads the land-polygon shapefile and returns the subset
// clipped to the AOI. An empty cache is valid (open sea) and only logged
// at warning level; the predicate then passes everything.
func BuildCache(shpPath string, aoi geom.Bbox, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read coastline shapefile %s: %w", shpPath, err)
	}
	defer reader.Close()

	// first pass: envelope prefilter, then clip each polygon part
	var clipped []orb.Ring
	for reader.Next() {
		_, shape := reader.Shape()
		polygon, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		for _, ring := range polygonRings(polygon) {
			env := ringEnvelope(ring)
			if !env.Overlaps(aoi) {
				continue
			}
			res := geom.ClipRing(aoi, orb.Polygon{ring})
			if len(res) > 0 {
				clipped = append(clipped, res)
			}
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("reading coastline shapefile %s: %w", shpPath, err)
	}

	// second pass: retain only polygons that contain, intersect or are
	// contained by the AOI box
	aoiRing := aoi.Ring()
	var kept []orb.Ring
	var nRejected, nInside, nIntersects, nContained int
	for _, ring := range clipped {
		switch {
		case geom.RingContainsRing(ring, aoiRing):
			nInside++
		case geom.RingsIntersect(ring, aoiRing):
			nIntersects++
		case geom.RingContainsRing(aoiRing, ring):
			nContained++
		default:
			nRejected++
			continue
		}
		kept = append(kept, ring.Clone())
	}

	logger.Debug("coastline cache subset",
		"rejected", nRejected,
		"inside", nInside,
		"intersects", nIntersects,
		"contained", nContained)

	if len(kept) == 0 {
		logger.Warn("coastline clipped to AOI is empty", "aoi", aoi.String())
	}

	return &Cache{AOI: aoi, rings: kept}, nil
}

// polygonRings splits a shapefile polygon into its parts, one ring each.
func polygonRings(p *shp.Polygon) []orb.Ring {
	rings := make([]orb.Ring, 0, len(p.Parts))
	for i, start := range p.Parts {
		end := int32(len(p.Points))
		if i+1 < len(p.Parts) {
			end = p.Parts[i+1]
		}
		ring := make(orb.Ring, 0, end-start)
		for _, pt := range p.Points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		if len(ring) > 0 {
			rings = append(rings, ring)
		}
	}
	return rings
}

func ringEnvelope(r orb.Ring) geom.Bbox {
	env := geom.NewBbox(r[0], r[0])
	for _, pt := range r {
		if pt[0] < env.LL[0] {
			env.LL[0] = pt[0]
		}
		if pt[0] > env.UR[0] {
			env.UR[0] = pt[0]
		}
		if pt[1] < env.LL[1] {
			env.LL[1] = pt[1]
		}
		if pt[1] > env.UR[1] {
			env.UR[1] = pt[1]
		}
	}
	return env
}
