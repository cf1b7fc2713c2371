package spatial

import (
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// SquareAround returns the axis-aligned square of the given half-width (meters)
// centred on a point
func SquareAround(lat, lon, halfWidthMeters float64) orb.Bound {
	dLat, dLon := MetersToDegrees(lat, lon, halfWidthMeters)
	return orb.Bound{
		Min: orb.Point{lon - dLon, lat - dLat},
		Max: orb.Point{lon + dLon, lat + dLat},
	}
}

// CollectPolygons flattens every polygonal member of a geometry into one MultiPolygon.
// Non-polygonal members are ignored.
func CollectPolygons(g orb.Geometry) orb.MultiPolygon {
	var out orb.MultiPolygon
	switch v := g.(type) {
	case orb.Polygon:
		if hasOuterRing(v) {
			out = append(out, v)
		}
	case orb.MultiPolygon:
		for _, p := range v {
			if hasOuterRing(p) {
				out = append(out, p)
			}
		}
	case orb.Bound:
		out = append(out, v.ToPolygon())
	case orb.Collection:
		for _, member := range v {
			out = append(out, CollectPolygons(member)...)
		}
	}
	return out
}

// BoundIntersectsGeometry reports whether a rectangle and a geometry share at least one point
func BoundIntersectsGeometry(b orb.Bound, g orb.Geometry) bool {
	return newCellShape(b).intersects(g)
}

// cellShape is a rectangle as an s2 loop, so edge crossings and point
// containment use s2's exact predicates.
type cellShape struct {
	bound orb.Bound
	loop  *s2.Loop
}

func newCellShape(b orb.Bound) cellShape {
	ring := b.ToRing()
	pts := make([]s2.Point, 4)
	for i := range pts {
		pts[i] = toS2Point(ring[i])
	}
	loop := s2.LoopFromPoints(pts)
	loop.Normalize()
	return cellShape{bound: b, loop: loop}
}

func toS2Point(p orb.Point) s2.Point {
	return s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat(), p.Lon()))
}

func (c cellShape) intersects(g orb.Geometry) bool {
	switch v := g.(type) {
	case orb.Point:
		return c.containsPoint(v)
	case orb.MultiPoint:
		for _, p := range v {
			if c.containsPoint(p) {
				return true
			}
		}
	case orb.LineString:
		return c.intersectsLine(v)
	case orb.MultiLineString:
		for _, ls := range v {
			if c.intersectsLine(ls) {
				return true
			}
		}
	case orb.Ring:
		return c.intersectsPolygon(orb.Polygon{v})
	case orb.Polygon:
		return c.intersectsPolygon(v)
	case orb.MultiPolygon:
		for _, p := range v {
			if c.intersectsPolygon(p) {
				return true
			}
		}
	case orb.Bound:
		return c.bound.Intersects(v)
	case orb.Collection:
		for _, member := range v {
			if c.intersects(member) {
				return true
			}
		}
	}
	return false
}

// containsPoint keeps the rectangle closed: edge points count as inside
func (c cellShape) containsPoint(p orb.Point) bool {
	return c.bound.Contains(p) || c.loop.ContainsPoint(toS2Point(p))
}

func (c cellShape) intersectsLine(ls orb.LineString) bool {
	switch len(ls) {
	case 0:
		return false
	case 1:
		return c.containsPoint(ls[0])
	}
	if !ls.Bound().Intersects(c.bound) {
		return false
	}
	for _, p := range ls {
		if c.containsPoint(p) {
			return true
		}
	}
	return c.crossesChain(ls, false)
}

// intersectsPolygon: an edge crosses the rectangle, a vertex lies in it,
// or the rectangle sits inside the polygon outside every hole
func (c cellShape) intersectsPolygon(p orb.Polygon) bool {
	if !hasOuterRing(p) {
		return false
	}
	if p.Bound().Intersects(c.bound) {
		for _, ring := range p {
			for _, pt := range ring {
				if c.containsPoint(pt) {
					return true
				}
			}
			if c.crossesChain(orb.LineString(ring), true) {
				return true
			}
		}
	}
	return planar.PolygonContains(p, c.bound.Center())
}

// crossesChain reports whether any segment of the chain crosses an edge of the loop
func (c cellShape) crossesChain(chain orb.LineString, closed bool) bool {
	pts := make([]s2.Point, len(chain), len(chain)+1)
	for i, p := range chain {
		pts[i] = toS2Point(p)
	}
	if closed && len(pts) > 1 && pts[0] != pts[len(pts)-1] {
		pts = append(pts, pts[0])
	}

	n := c.loop.NumVertices()
	for i := 0; i < n; i++ {
		crosser := s2.NewChainEdgeCrosser(c.loop.Vertex(i), c.loop.Vertex((i+1)%n), pts[0])
		for _, d := range pts[1:] {
			if crosser.ChainCrossingSign(d) != s2.DoNotCross {
				return true
			}
		}
	}
	return false
}

func hasOuterRing(p orb.Polygon) bool {
	return len(p) > 0 && len(p[0]) > 0
}
