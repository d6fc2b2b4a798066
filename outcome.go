package sitemirror

import "net/http"

// Outcome is the classification of an origin fetch.
type Outcome int

const (
	// The origin answered with a 2xx status.
	OutcomeOK Outcome = iota
	// The origin answered with 404, or with the literal not-found body
	// the raw content host sends for missing files.
	OutcomeNotFound
	// The request did not complete within the timeout.
	OutcomeTimeout
	// The origin could not be reached or answered with an error status.
	OutcomeTransport
	// Anything else, e.g. a response too large to buffer.
	OutcomeUnexpected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not-found"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTransport:
		return "transport"
	default:
		return "unexpected"
	}
}

// StatusCode returns the status code sent to the client for the outcome.
func (o Outcome) StatusCode() int {
	switch o {
	case OutcomeOK:
		return http.StatusOK
	case OutcomeNotFound:
		return http.StatusNotFound
	case OutcomeTimeout:
		return http.StatusGatewayTimeout
	case OutcomeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (o Outcome) valid() bool {
	return o >= OutcomeOK && o <= OutcomeUnexpected
}

// FallbackNotFoundPage is sent when the origin has no 404 page either.
const FallbackNotFoundPage = `<!DOCTYPE html>
<html>
<head><title>404 Not Found</title></head>
<body><h1>404 Not Found</h1><p>The requested page does not exist.</p></body>
</html>
`

var errorPages = map[int]string{
	http.StatusForbidden: `<!DOCTYPE html>
<html>
<head><title>403 Forbidden</title></head>
<body><h1>403 Forbidden</h1><p>Access to this path is not allowed.</p></body>
</html>
`,
	http.StatusInternalServerError: `<!DOCTYPE html>
<html>
<head><title>500 Internal Server Error</title></head>
<body><h1>500 Internal Server Error</h1><p>Something went wrong while loading this page.</p></body>
</html>
`,
	http.StatusBadGateway: `<!DOCTYPE html>
<html>
<head><title>502 Bad Gateway</title></head>
<body><h1>502 Bad Gateway</h1><p>The site content could not be retrieved.</p></body>
</html>
`,
	http.StatusGatewayTimeout: `<!DOCTYPE html>
<html>
<head><title>504 Gateway Timeout</title></head>
<body><h1>504 Gateway Timeout</h1><p>The site content took too long to load.</p></body>
</html>
`,
}

// ErrorPage returns the HTML document sent for an error status.
func ErrorPage(statusCode int) string {
	if page, ok := errorPages[statusCode]; ok {
		return page
	}
	return errorPages[http.StatusInternalServerError]
}
