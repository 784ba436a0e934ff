package googlemaps

// directionsResponse is the Google Directions API response envelope.
type directionsResponse struct {
	Status       string           `json:"status"`
	ErrorMessage string           `json:"error_message"`
	Routes       []directionsRoute `json:"routes"`
}

type directionsRoute struct {
	Summary          string           `json:"summary"`
	Warnings         []string         `json:"warnings"`
	Legs             []directionsLeg  `json:"legs"`
	OverviewPolyline overviewPolyline `json:"overview_polyline"`
}

type overviewPolyline struct {
	Points string `json:"points"`
}

type directionsLeg struct {
	Distance          *textValue      `json:"distance"`
	Duration          *textValue      `json:"duration"`
	DurationInTraffic *textValue      `json:"duration_in_traffic"`
	StartAddress      string          `json:"start_address"`
	EndAddress        string          `json:"end_address"`
	Steps             []directionsStep `json:"steps"`
}

type directionsStep struct {
	HTMLInstructions string     `json:"html_instructions"`
	Distance         *textValue `json:"distance"`
	Duration         *textValue `json:"duration"`
	TravelMode       string     `json:"travel_mode"`
	EndLocation      latLng     `json:"end_location"`
}

type textValue struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
