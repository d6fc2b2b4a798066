package sitemirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/tokarotik/sitemirror/cache"
)

// body the raw content host sends, with status 404, for missing files
var missingBody = []byte("404: Not Found")

var errBodyTooLarge = errors.New("response body exceeds size limit")

type fetchResult struct {
	entry  cache.Entry
	stored bool
}

// fetch returns the result of requesting the given remote URL,
// consulting the cache first. Every outcome is stored in the cache, failures included.
// Concurrent misses for the same URL share a single origin request.
func (p *Proxy) fetch(url string) (cache.Entry, CacheStatus) {
	var cs CacheStatus
	if entry, ok := p.cached(url); ok {
		cs.Hit()
		return entry, cs
	}
	cs.Forward(CacheStatusFwdUriMiss)

	v, _, shared := p.group.Do(url, func() (interface{}, error) {
		// another request may have filled the entry while we were waiting
		if entry, ok := p.cached(url); ok {
			return fetchResult{entry: entry}, nil
		}
		entry := p.retrieve(url)
		if err := p.cache.Put(url, entry); err != nil {
			p.log.Error().Err(err).Str("url", url).Msg("Could not write to cache")
			return fetchResult{entry: entry}, nil
		}
		p.log.Trace().Str("url", url).Stringer("outcome", Outcome(entry.Outcome)).Msg("Cache write")
		return fetchResult{entry: entry, stored: true}, nil
	})
	res := v.(fetchResult)
	if res.stored {
		cs.Stored()
	}
	if shared {
		cs.Collapsed()
	}
	return res.entry, cs
}

// cached looks up a URL in the cache.
// Cache errors are logged and treated as a miss.
func (p *Proxy) cached(url string) (cache.Entry, bool) {
	entry, ok, err := p.cache.Get(url)
	if err != nil {
		p.log.Error().Err(err).Str("url", url).Msg("Could not read from cache")
		return cache.Entry{}, false
	}
	if ok && !Outcome(entry.Outcome).valid() {
		// in case we have a corrupted cache entry, we delete it and fetch again
		p.log.Warn().Str("url", url).Int("outcome", entry.Outcome).Msg("Purging invalid cache entry")
		if err := p.cache.Purge(url); err != nil {
			p.log.Error().Err(err).Str("url", url).Msg("Could not purge cache entry")
		}
		return cache.Entry{}, false
	}
	return entry, ok
}

// retrieve requests the URL from the origin and classifies the result.
// The request is detached from any client request, since the result is shared and memoized.
func (p *Proxy) retrieve(url string) cache.Entry {
	started := time.Now()
	entry, err := p.request(url)
	evt := p.log.Debug()
	if err != nil {
		evt = p.log.Warn().Err(err)
	}
	evt.
		Str("url", url).
		Int("status", entry.StatusCode).
		Stringer("outcome", Outcome(entry.Outcome)).
		Dur("duration", time.Since(started)).
		Msg("Requested content from origin")
	return entry
}

func (p *Proxy) request(url string) (cache.Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return cache.Entry{Outcome: int(OutcomeUnexpected)}, fmt.Errorf("create origin request: %w", err)
	}
	res, err := p.client.Do(req)
	if err != nil {
		return cache.Entry{Outcome: int(classifyError(err))}, err
	}
	defer res.Body.Close()

	entry := cache.Entry{StatusCode: res.StatusCode}
	body, err := io.ReadAll(io.LimitReader(res.Body, p.maxBodySize+1))
	if err != nil {
		entry.Outcome = int(classifyError(err))
		return entry, fmt.Errorf("read origin response: %w", err)
	}
	if int64(len(body)) > p.maxBodySize {
		entry.Outcome = int(OutcomeUnexpected)
		return entry, fmt.Errorf("%w: more than %d bytes", errBodyTooLarge, p.maxBodySize)
	}
	entry.Body = body

	switch {
	case res.StatusCode == http.StatusNotFound || bytes.Equal(bytes.TrimSpace(body), missingBody):
		entry.Outcome = int(OutcomeNotFound)
	case res.StatusCode >= 200 && res.StatusCode < 300:
		entry.Outcome = int(OutcomeOK)
	default:
		entry.Outcome = int(OutcomeTransport)
		return entry, fmt.Errorf("origin responded with status %d", res.StatusCode)
	}
	return entry, nil
}

func classifyError(err error) Outcome {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return OutcomeTimeout
	}
	return OutcomeTransport
}
