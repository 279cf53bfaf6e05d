package coastline

import (
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/eo-tools/eoingest/internal/geom"
)

// Check reports whether the coverage footprint touches the cached
// coastline. The predicate fails open: a nil or empty cache, or a
// missing footprint, accepts the coverage, mirroring the operator
// expectation that unknown geometry does not exclude data.
func (c *Cache) Check(footprint orb.Ring, logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.Default()
	}
	if c.Len() == 0 {
		logger.Warn("no coastline cache, not checking")
		return true
	}
	if len(footprint) == 0 {
		logger.Warn("no footprint polygon in coverage description, not checking coastline")
		return true
	}

	for _, land := range c.rings {
		// intersection in either direction also covers the two
		// containment cases
		if geom.RingsIntersect(land, footprint) {
			return true
		}
	}

	logger.Debug("coastline check failed", "cacheSize", c.Len())
	return false
}
