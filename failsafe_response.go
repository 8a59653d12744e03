package viewhost

import (
	"bytes"
	"net/http"
)

// failsafeResponse buffers one fail-safe handler attempt so that a failed attempt can
// be discarded without anything reaching the client.
type failsafeResponse struct {
	header  http.Header
	status  int
	body    bytes.Buffer
	written bool
}

func newFailsafeResponse() *failsafeResponse {
	return &failsafeResponse{header: make(http.Header)}
}

func (f *failsafeResponse) Header() http.Header {
	return f.header
}

func (f *failsafeResponse) WriteHeader(code int) {
	if f.status != 0 {
		return
	}
	f.status = code
	f.written = true
}

func (f *failsafeResponse) Write(b []byte) (int, error) {
	if f.status == 0 {
		f.WriteHeader(http.StatusOK)
	}
	return f.body.Write(b)
}

// Flush is a no-op; the attempt is only released once the handler returns.
func (f *failsafeResponse) Flush() {}

func (f *failsafeResponse) handled() bool {
	return f.written
}

func (f *failsafeResponse) commit(w http.ResponseWriter) error {
	dst := w.Header()
	for k, v := range f.header {
		dst[k] = v
	}
	w.WriteHeader(f.status)
	_, err := w.Write(f.body.Bytes())
	return err
}

// trackingResponseWriter records whether a non-fail-safe handler wrote a response.
type trackingResponseWriter struct {
	http.ResponseWriter
	written bool
}

func (t *trackingResponseWriter) WriteHeader(code int) {
	t.written = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackingResponseWriter) Write(b []byte) (int, error) {
	t.written = true
	return t.ResponseWriter.Write(b)
}

func (t *trackingResponseWriter) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		t.written = true
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (t *trackingResponseWriter) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}
