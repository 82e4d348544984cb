package httpapi

import (
	"io"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pkgforge/pkgforge/internal/apperr"
)

// upstreamProxy forwards /api/search, /api/lookup, and /api/bag to Apple's
// public iTunes/bag endpoints, normalising both outcomes (transport error
// or non-2xx) to the BadGateway taxonomy so a flaky upstream never leaks
// its own error shape to the client. Concurrent requests for the same
// query string or guid are collapsed via singleflight, since a burst of
// identical lookups from several clients shouldn't become a burst against
// the upstream.
type upstreamProxy struct {
	client *http.Client
	group  singleflight.Group
}

func newUpstreamProxy() *upstreamProxy {
	return &upstreamProxy{client: &http.Client{Timeout: bagTimeout}}
}

const (
	searchURL = "https://itunes.apple.com/search"
	lookupURL = "https://itunes.apple.com/lookup"
	bagURL    = "https://init.itunes.apple.com/bag.xml"

	bagTimeout         = 10 * time.Second
	bagMaxResponseSize = 1 << 20 // 1 MiB
	bagUserAgent       = "Configurator/2.17 (Macintosh; OS X 14.0; 23A344)"
)

var guidPattern = regexp.MustCompile(`^[A-Fa-f0-9]{1,40}$`)

// upstreamResult is what a collapsed singleflight call returns: enough to
// replay the response without re-running the request.
type upstreamResult struct {
	contentType string
	body        []byte
}

func (p *upstreamProxy) handleSearch(w http.ResponseWriter, r *http.Request) {
	p.forwardJSON(w, r, searchURL, "search:")
}

func (p *upstreamProxy) handleLookup(w http.ResponseWriter, r *http.Request) {
	p.forwardJSON(w, r, lookupURL, "lookup:")
}

// forwardJSON re-issues the incoming query string against target and
// returns upstream's 2xx body, tagged as JSON. The body is read into memory
// and cut off at bagMaxResponseSize bytes.
func (p *upstreamProxy) forwardJSON(w http.ResponseWriter, r *http.Request, target, keyPrefix string) {
	key := keyPrefix + r.URL.RawQuery
	res, err, _ := p.group.Do(key, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target+"?"+r.URL.RawQuery, nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, apperr.New(apperr.BadGateway, "upstream request failed")
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, bagMaxResponseSize))
		if err != nil {
			return nil, err
		}
		return upstreamResult{contentType: "application/json", body: body}, nil
	})
	if err != nil {
		if appErr, ok := err.(*apperr.Error); ok {
			writeError(w, appErr)
			return
		}
		writeError(w, apperr.Wrap(apperr.BadGateway, "upstream request failed", err))
		return
	}

	result := res.(upstreamResult)
	w.Header().Set("Content-Type", result.contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.body)
}

func (p *upstreamProxy) handleBag(w http.ResponseWriter, r *http.Request) {
	guid := r.URL.Query().Get("guid")
	if guid == "" {
		writeError(w, apperr.New(apperr.Validation, "guid is required"))
		return
	}
	if !guidPattern.MatchString(guid) {
		writeError(w, apperr.New(apperr.Validation, "guid is invalid"))
		return
	}

	res, err, _ := p.group.Do("bag:"+guid, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, bagURL+"?guid="+guid, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", bagUserAgent)
		req.Header.Set("Accept", "application/xml")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, apperr.New(apperr.BadGateway, "bag request failed")
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, bagMaxResponseSize+1))
		if err != nil {
			return nil, err
		}
		if len(body) > bagMaxResponseSize {
			return nil, apperr.New(apperr.BadGateway, "bag response too large")
		}
		return upstreamResult{contentType: "text/xml", body: body}, nil
	})
	if err != nil {
		if appErr, ok := err.(*apperr.Error); ok {
			writeError(w, appErr)
			return
		}
		writeError(w, apperr.Wrap(apperr.BadGateway, "bag request failed", err))
		return
	}

	result := res.(upstreamResult)
	w.Header().Set("Content-Type", result.contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.body)
}
