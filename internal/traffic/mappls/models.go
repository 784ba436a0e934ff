package mappls

// tokenResponse is the OAuth client-credentials token grant response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// flowResponse is the traffic-flow GeoJSON feature collection.
type flowResponse struct {
	Features []flowFeature `json:"features"`
}

type flowFeature struct {
	Geometry   flowGeometry   `json:"geometry"`
	Properties flowProperties `json:"properties"`
}

type flowGeometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

type flowProperties struct {
	RoadName          string  `json:"roadName"`
	TrafficLevel      string  `json:"trafficLevel"`
	Speed             float64 `json:"speed"`
	EstimatedVehicles int     `json:"estimatedVehicles"`
}

// incidentsResponse is the traffic-incidents list response.
type incidentsResponse struct {
	Incidents []incidentEntry `json:"incidents"`
}

type incidentEntry struct {
	Location    string  `json:"location"`
	Description string  `json:"description"`
	Severity    string  `json:"severity"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timestamp   string  `json:"timestamp"`
}
