package models

// ErrorResponse is the body returned for any failed request.
// A failed request carries an error and nothing else; a successful /parse
// response is the extracted JSON object itself, so there is no success
// envelope type for it.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	ActivePages int    `json:"active_pages"`
	Version     string `json:"version"`
}
