package middleware

import "net/http"

// statusRecorder captures the status code and body size of a response so
// the logging, tracing, and metrics middleware can report them. Status
// defaults to 200 because handlers that never call WriteHeader get that
// from net/http.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func recordStatus(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += int64(n)
	return n, err
}
