// Package polyline implements Google's encoded polyline algorithm,
// used to carry route geometry compactly. The format is documented at
// https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import "math"

// precision is the standard 5-decimal-place scaling factor.
const precision = 1e5

// Coordinate is a geographic point.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Decode parses a polyline-encoded string into coordinates. Malformed
// trailing bytes yield a truncated result rather than an error; route
// geometry is advisory data.
func Decode(encoded string) []Coordinate {
	if encoded == "" {
		return nil
	}

	var coords []Coordinate
	var lat, lng, pos int

	// Each value is a varint of 5-bit chunks offset by 63, with the
	// continuation flag in bit 6 and zigzag sign encoding.
	next := func() int {
		var result, shift int
		for pos < len(encoded) {
			b := int(encoded[pos]) - 63
			pos++
			result |= (b & 0x1f) << shift
			shift += 5
			if b < 0x20 {
				break
			}
		}
		if result&1 != 0 {
			return ^(result >> 1)
		}
		return result >> 1
	}

	for pos < len(encoded) {
		lat += next()
		lng += next()
		coords = append(coords, Coordinate{
			Lat: float64(lat) / precision,
			Lng: float64(lng) / precision,
		})
	}

	return coords
}

// Encode converts coordinates to a polyline-encoded string.
func Encode(coords []Coordinate) string {
	if len(coords) == 0 {
		return ""
	}

	buf := make([]byte, 0, len(coords)*4)
	var prevLat, prevLng int

	for _, c := range coords {
		lat := int(math.Round(c.Lat * precision))
		lng := int(math.Round(c.Lng * precision))

		buf = appendValue(buf, lat-prevLat)
		buf = appendValue(buf, lng-prevLng)

		prevLat, prevLng = lat, lng
	}

	return string(buf)
}

// appendValue writes one zigzag-encoded delta as 5-bit chunks.
func appendValue(buf []byte, v int) []byte {
	if v < 0 {
		v = ^(v << 1)
	} else {
		v <<= 1
	}
	for v >= 0x20 {
		buf = append(buf, byte((v&0x1f)|0x20)+63)
		v >>= 5
	}
	return append(buf, byte(v)+63)
}

// Length returns the total haversine length of the polyline in meters.
func Length(coords []Coordinate) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		total += haversineMeters(coords[i-1], coords[i])
	}
	return total
}

// Sample resamples the polyline at roughly the given interval. Dense
// route geometry is thinned out before incident-proximity checks. The
// first and last points are always kept.
func Sample(coords []Coordinate, intervalMeters float64) []Coordinate {
	if len(coords) == 0 {
		return nil
	}
	if intervalMeters <= 0 {
		return coords
	}

	sampled := []Coordinate{coords[0]}
	carried := 0.0

	for i := 1; i < len(coords); i++ {
		a, b := coords[i-1], coords[i]
		segment := haversineMeters(a, b)

		// Emit interpolated points while the interval falls inside
		// this segment.
		for carried+segment >= intervalMeters {
			step := intervalMeters - carried
			frac := step / segment
			sampled = append(sampled, Coordinate{
				Lat: a.Lat + frac*(b.Lat-a.Lat),
				Lng: a.Lng + frac*(b.Lng-a.Lng),
			})
			segment -= step
			carried = 0
		}
		carried += segment
	}

	if last := coords[len(coords)-1]; sampled[len(sampled)-1] != last {
		sampled = append(sampled, last)
	}

	return sampled
}

const earthRadiusMeters = 6371000

func haversineMeters(a, b Coordinate) float64 {
	const rad = math.Pi / 180

	lat1 := a.Lat * rad
	lat2 := b.Lat * rad
	sinLat := math.Sin((b.Lat - a.Lat) * rad / 2)
	sinLng := math.Sin((b.Lng - a.Lng) * rad / 2)

	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
