package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when a request reaches a route handler. The request
// context carries the request id.
type HTTPStart struct {
	Request *http.Request
	Route   string
}

// HTTPFinish is emitted after the route handler wrote its response.
type HTTPFinish struct {
	Request  *http.Request
	Route    string
	Status   int
	Duration time.Duration
}
