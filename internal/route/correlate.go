package route

import (
	"math"

	"github.com/trafficsense/trafficsense/internal/traffic"
)

// ProximityThreshold is the raw coordinate-degree distance under which
// an incident counts as lying on a route (~550 m of latitude). The
// comparison is strict: an incident exactly at the threshold is not on
// the route.
const ProximityThreshold = 0.005

// AccidentsOnRoute counts the incidents lying near any of the route
// points. Each incident is counted at most once no matter how many
// points it is close to. A route with no points has no incidents on it.
func AccidentsOnRoute(points []traffic.Coordinate, incidents []traffic.Incident) int {
	if len(points) == 0 {
		return 0
	}

	count := 0
	for _, incident := range incidents {
		for _, point := range points {
			if degreeDistance(point, incident.Coordinates) < ProximityThreshold {
				count++
				break
			}
		}
	}
	return count
}

// degreeDistance is the Euclidean distance between two coordinates in
// raw degrees. Not a metric distance; longitude degrees shrink toward
// the poles, which is tolerable at city scale.
func degreeDistance(a, b traffic.Coordinate) float64 {
	dLat := a.Lat - b.Lat
	dLng := a.Lng - b.Lng
	return math.Sqrt(dLat*dLat + dLng*dLng)
}
