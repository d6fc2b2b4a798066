// Package static serves a directory over HTTP, replacing the file server's
// not-found responses with a custom page.
package static

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/tokarotik/sitemirror/pkg/mimetype"
	tee "github.com/tokarotik/sitemirror/pkg/response-writer-tee"
)

const (
	DefaultNotFoundPage = "404.html"
	// FallbackNotFound is sent when the not-found page cannot be read.
	FallbackNotFound = "<h1>404 Not Found</h1>"
)

type Config struct {
	// Directory to serve. The working directory is used if empty.
	Root string
	// File name, relative to Root, of the page sent for missing files.
	NotFoundPage string
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

type Server struct {
	root         string
	notFoundPage string
	files        http.Handler
	log          zerolog.Logger
}

func New(config Config) *Server {
	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}
	root := config.Root
	if root == "" {
		root = "."
	}
	notFoundPage := config.NotFoundPage
	if notFoundPage == "" {
		notFoundPage = DefaultNotFoundPage
	}
	return &Server{
		root:         root,
		notFoundPage: notFoundPage,
		files:        http.FileServer(http.Dir(root)),
		log:          logger.With().Str("root", root).Logger(),
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rw := tee.NewResponseSaver(w, http.StatusNotFound)
	s.files.ServeHTTP(rw, r)
	if rw.Filtered() {
		s.notFound(w, r)
	}
}

// notFound sends the configured not-found page, read from disk on every request.
func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	logger := s.getLogger(r)
	body, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(s.notFoundPage)))
	if err != nil {
		logger.Debug().Err(err).Msg("Could not read not-found page, using fallback")
		body = []byte(FallbackNotFound)
	}
	w.Header().Set("Content-Type", mimetype.HTML)
	w.WriteHeader(http.StatusNotFound)
	if _, err := w.Write(body); err != nil {
		logger.Error().Err(err).Msg("Could not write not-found page to client")
	}
}

// getLogger returns the logger from the request context.
// If no logger is found, it will return the server logger.
func (s *Server) getLogger(r *http.Request) *zerolog.Logger {
	logger := hlog.FromRequest(r)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &s.log
	}
	return logger
}
