package tomtom

import "encoding/json"

// flowResponse is the TomTom flow-segment API response envelope.
type flowResponse struct {
	FlowSegmentData *flowSegmentData `json:"flowSegmentData"`
}

// flowSegmentData carries the speed readings for one road segment.
type flowSegmentData struct {
	FRC                string  `json:"frc"`
	CurrentSpeed       float64 `json:"currentSpeed"`
	FreeFlowSpeed      float64 `json:"freeFlowSpeed"`
	CurrentTravelTime  float64 `json:"currentTravelTime"`
	FreeFlowTravelTime float64 `json:"freeFlowTravelTime"`
	Confidence         float64 `json:"confidence"`
	RoadClosure        bool    `json:"roadClosure"`
}

// incidentResponse is the TomTom incident-details API response.
type incidentResponse struct {
	Incidents []incident `json:"incidents"`
}

// incident is one raw incident entry.
type incident struct {
	Type       string             `json:"type"`
	Geometry   incidentGeometry   `json:"geometry"`
	Properties incidentProperties `json:"properties"`
}

// incidentGeometry holds GeoJSON geometry; coordinates may be a single
// [lng, lat] pair (Point) or a list of pairs (LineString).
type incidentGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type incidentProperties struct {
	ID               string          `json:"id"`
	IconCategory     int             `json:"iconCategory"`
	MagnitudeOfDelay int             `json:"magnitudeOfDelay"`
	Events           []incidentEvent `json:"events"`
	StartTime        string          `json:"startTime"`
	EndTime          string          `json:"endTime"`
	From             string          `json:"from"`
	To               string          `json:"to"`
	Length           float64         `json:"length"`
	Delay            float64         `json:"delay"`
	RoadNumbers      []string        `json:"roadNumbers"`
}

type incidentEvent struct {
	Description string `json:"description"`
	Code        int    `json:"code"`
}

// errorResponse is TomTom's error envelope.
type errorResponse struct {
	DetailedError struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"detailedError"`
}

// firstCoordinate extracts the leading [lng, lat] pair from a GeoJSON
// coordinates value, handling both Point and LineString shapes. The
// second return is false when no usable pair is present.
func firstCoordinate(raw json.RawMessage) ([2]float64, bool) {
	var line [][]float64
	if err := json.Unmarshal(raw, &line); err == nil {
		if len(line) > 0 && len(line[0]) >= 2 {
			return [2]float64{line[0][0], line[0][1]}, true
		}
		return [2]float64{}, false
	}

	var point []float64
	if err := json.Unmarshal(raw, &point); err == nil && len(point) >= 2 {
		return [2]float64{point[0], point[1]}, true
	}

	return [2]float64{}, false
}
