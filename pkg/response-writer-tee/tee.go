package tee

import (
	"net/http"
)

// ResponseSaver is a wrapper around http.ResponseWriter that records the status code and body size.
// If a status filter is set and the wrapped handler writes that status,
// nothing is written to the underlying http.ResponseWriter and the body is discarded.
// The caller can then write its own response.
type ResponseSaver struct {
	rw           http.ResponseWriter
	header       http.Header
	status       int
	wroteHeaders bool
	statusFilter int
	filtered     bool
	written      int64
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Header() http.Header {
	return t.header
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) WriteHeader(statusCode int) {
	if t.wroteHeaders {
		return
	}
	// remember that we wrote the headers
	t.wroteHeaders = true
	// set the status code so we can return it later
	t.status = statusCode
	// do not write to underlying rw if status code equals filter
	if t.statusFilter != 0 && statusCode == t.statusFilter {
		t.filtered = true
		return
	}
	copyHeader(t.rw.Header(), t.header)
	t.rw.WriteHeader(statusCode)
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Write(b []byte) (int, error) {
	// write headers if not already written
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
	if t.filtered {
		return len(b), nil
	}
	n, err := t.rw.Write(b)
	t.written += int64(n)
	return n, err
}

// StatusCode returns the status code of the response.
// It is zero if the wrapped handler has not written anything.
func (t *ResponseSaver) StatusCode() int {
	return t.status
}

// Filtered reports whether the response was withheld from the underlying http.ResponseWriter.
func (t *ResponseSaver) Filtered() bool {
	return t.filtered
}

// BytesWritten returns the number of body bytes passed to the underlying http.ResponseWriter.
func (t *ResponseSaver) BytesWritten() int64 {
	return t.written
}

// NewResponseSaver returns a new ResponseSaver writing through to w.
// An optional status code can be given; responses with that status are withheld from w.
func NewResponseSaver(w http.ResponseWriter, statusFilter ...int) *ResponseSaver {
	rs := &ResponseSaver{
		rw:     w,
		header: http.Header{},
	}
	if len(statusFilter) == 1 {
		rs.statusFilter = statusFilter[0]
	}
	return rs
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
