package sitemirror

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/tokarotik/sitemirror/cache"
	cachekey "github.com/tokarotik/sitemirror/pkg/cache-key"
	"github.com/tokarotik/sitemirror/pkg/mimetype"
)

const (
	DefaultOrigin      = "https://raw.githubusercontent.com/tokarotik/tokarotik.github.io/refs/heads/main"
	DefaultTimeout     = 10 * time.Second
	DefaultCacheSize   = 128
	DefaultMaxBodySize = 32 << 20

	// IndexPath is served for requests to the site root.
	IndexPath = "index.html"
	// NotFoundPath is the origin page served when content is missing.
	NotFoundPath = "/404.html"
	FaviconPath  = "favicon.ico"
)

type Config struct {
	// Storage for origin fetch results.
	// An in-memory LRU cache of DefaultCacheSize entries is used if nil.
	Cache cache.Provider
	// URL prefix under which the origin serves the site files.
	// DefaultOrigin is used if empty.
	Origin string
	// Timeout for a single origin request. DefaultTimeout is used if zero.
	Timeout time.Duration
	// Largest origin response body that is accepted. DefaultMaxBodySize is used if zero.
	MaxBodySize int64
	// Transport for origin requests. http.DefaultTransport is used if nil.
	Transport http.RoundTripper
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// Proxy serves the files of a static site hosted on a remote origin.
type Proxy struct {
	cache       cache.Provider
	keyer       cachekey.CacheKeyer
	client      *http.Client
	timeout     time.Duration
	maxBodySize int64
	group       singleflight.Group
	log         zerolog.Logger
	router      chi.Router
}

// CreateProxy initializes the proxy instance.
func CreateProxy(config Config) (*Proxy, error) {
	origin := config.Origin
	if origin == "" {
		origin = DefaultOrigin
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if (originURL.Scheme != "http" && originURL.Scheme != "https") || originURL.Host == "" {
		return nil, fmt.Errorf("origin must be an absolute http(s) URL: %s", origin)
	}

	// use global logger if not specified in config
	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}
	// create a child logger and add defaults
	logger = logger.With().
		Str("origin", origin).
		Logger()

	store := config.Cache
	if store == nil {
		if store, err = cache.NewMemCache(DefaultCacheSize); err != nil {
			return nil, err
		}
	}

	p := &Proxy{
		cache:       store,
		keyer:       cachekey.NewCacheKeyer(origin),
		timeout:     config.Timeout,
		maxBodySize: config.MaxBodySize,
		log:         logger,
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.maxBodySize <= 0 {
		p.maxBodySize = DefaultMaxBodySize
	}

	transport := config.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	p.client = &http.Client{
		Transport: transport,
		Timeout:   p.timeout,
	}

	r := chi.NewRouter()
	r.Use(p.recover)
	r.Use(middleware.GetHead)
	r.Get("/", p.handleIndex)
	r.Get("/"+FaviconPath, p.handleFavicon)
	r.Get("/*", p.handlePath)
	p.router = r

	return p, nil
}

// ServeHTTP implements the http.Handler interface.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.router.ServeHTTP(w, r)
}

// Resolve returns the remote URL for a request path.
func (p *Proxy) Resolve(path string) string {
	return p.keyer.URL(path)
}

// recover recovers from panics and sends the internal error page.
func (p *Proxy) recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				p.getLogger(r).WithLevel(zerolog.PanicLevel).Interface("error", err).Msg("Panic in proxy handler")
				p.sendError(w, r, http.StatusInternalServerError, CacheStatus{})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (p *Proxy) handleIndex(w http.ResponseWriter, r *http.Request) {
	p.serve(w, r, IndexPath)
}

// handleFavicon proxies the site icon, but answers with an empty response
// instead of an error page when it cannot be served.
func (p *Proxy) handleFavicon(w http.ResponseWriter, r *http.Request) {
	entry, cs := p.fetch(p.keyer.URL(FaviconPath))
	if Outcome(entry.Outcome) != OutcomeOK {
		w.Header().Add("Cache-Status", cs.String())
		w.WriteHeader(http.StatusNoContent)
		p.logResponse(r, http.StatusNoContent, Outcome(entry.Outcome), cs)
		return
	}
	p.send(w, r, http.StatusOK, mimetype.ForPath(FaviconPath), entry.Body, Outcome(entry.Outcome), cs)
}

func (p *Proxy) handlePath(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	// chi routes on the raw path when the request path has non-canonical escapes
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(path)
		if err != nil {
			p.getLogger(r).Debug().Err(err).Msg("Could not unescape path")
			p.sendError(w, r, http.StatusForbidden, CacheStatus{})
			return
		}
		path = unescaped
	}
	p.serve(w, r, path)
}

// serve sends the site file identified by path to the client.
// Paths that try to leave the site root are rejected.
func (p *Proxy) serve(w http.ResponseWriter, r *http.Request, path string) {
	if !allowedPath(path) {
		p.getLogger(r).Info().Str("path", path).Msg("Rejecting path")
		p.sendError(w, r, http.StatusForbidden, CacheStatus{})
		return
	}

	entry, cs := p.fetch(p.keyer.URL(path))
	outcome := Outcome(entry.Outcome)
	switch outcome {
	case OutcomeOK:
		p.send(w, r, http.StatusOK, mimetype.ForPath(path), entry.Body, outcome, cs)
	case OutcomeNotFound:
		p.sendNotFound(w, r)
	default:
		p.sendError(w, r, outcome.StatusCode(), cs)
	}
}

// sendNotFound sends the site's own 404 page, or a built-in one if the origin has none.
func (p *Proxy) sendNotFound(w http.ResponseWriter, r *http.Request) {
	entry, cs := p.fetch(p.keyer.URL(NotFoundPath))
	body := entry.Body
	if Outcome(entry.Outcome) != OutcomeOK {
		p.getLogger(r).Warn().Stringer("outcome", Outcome(entry.Outcome)).Msg("Origin has no not-found page, using fallback")
		body = []byte(FallbackNotFoundPage)
	}
	p.send(w, r, http.StatusNotFound, mimetype.HTML, body, OutcomeNotFound, cs)
}

func (p *Proxy) sendError(w http.ResponseWriter, r *http.Request, statusCode int, cs CacheStatus) {
	var outcome Outcome
	switch statusCode {
	case http.StatusGatewayTimeout:
		outcome = OutcomeTimeout
	case http.StatusBadGateway:
		outcome = OutcomeTransport
	default:
		outcome = OutcomeUnexpected
	}
	p.send(w, r, statusCode, mimetype.HTML, []byte(ErrorPage(statusCode)), outcome, cs)
}

func (p *Proxy) send(w http.ResponseWriter, r *http.Request, statusCode int, contentType string, body []byte, outcome Outcome, cs CacheStatus) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if cs.status != "" {
		w.Header().Add("Cache-Status", cs.String())
	}
	w.WriteHeader(statusCode)
	bytesWritten, err := w.Write(body)
	if err != nil {
		p.getLogger(r).Error().Err(err).Msg("Could not write response body to client")
	}
	p.logResponse(r, statusCode, outcome, cs)
	p.log.Trace().Msgf("Wrote body (%d bytes)", bytesWritten)
}

func (p *Proxy) logResponse(r *http.Request, statusCode int, outcome Outcome, cs CacheStatus) {
	isHit := 0
	if cs.IsHit() {
		isHit = 1
	}
	p.getLogger(r).Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Int("status", statusCode).
		Stringer("outcome", outcome).
		Str("cache", cs.String()).
		Int("hit", isHit).
		Msg("Sending response to client")
}

// getLogger returns the logger from the request context.
// If no logger is found, it will return the proxy logger.
func (p *Proxy) getLogger(r *http.Request) *zerolog.Logger {
	logger := hlog.FromRequest(r)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &p.log
	}
	return logger
}

// allowedPath reports whether a path may be requested from the origin.
// Absolute paths and paths with parent directory segments are not allowed.
func allowedPath(path string) bool {
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, `\`) {
		return false
	}
	for _, segment := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return false
		}
	}
	return true
}
