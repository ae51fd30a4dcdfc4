// Package sources holds the clients for the upstream drug-data providers:
// openFDA drug labels, DailyMed structured product labels, and PubMed
// research counts. Every fetch is cache-first through the shared response
// cache; a provider with no record for a drug yields (nil, nil), never an
// error, so callers can degrade per source.
package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds every upstream request.
const DefaultTimeout = 10 * time.Second

const (
	defaultFDAURL      = "https://api.fda.gov/drug/label.json"
	defaultDailyMedURL = "https://dailymed.nlm.nih.gov/dailymed/services/v2"
	defaultPubMedURL   = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
)

// Cache is the response cache the clients read through. Satisfied by
// *apicache.Service; nil disables caching.
type Cache interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Put(ctx context.Context, key string, data json.RawMessage) error
}

type Client struct {
	http   *http.Client
	cache  Cache
	logger zerolog.Logger

	fdaURL      string
	dailymedURL string
	pubmedURL   string
}

func NewClient(cache Cache, logger zerolog.Logger) *Client {
	return &Client{
		http:        &http.Client{Timeout: DefaultTimeout},
		cache:       cache,
		logger:      logger.With().Str("component", "sources").Logger(),
		fdaURL:      defaultFDAURL,
		dailymedURL: defaultDailyMedURL,
		pubmedURL:   defaultPubMedURL,
	}
}

// SetBaseURLs overrides provider endpoints. Empty strings keep the current
// value.
func (c *Client) SetBaseURLs(fda, dailymed, pubmed string) {
	if fda != "" {
		c.fdaURL = fda
	}
	if dailymed != "" {
		c.dailymedURL = dailymed
	}
	if pubmed != "" {
		c.pubmedURL = pubmed
	}
}

// SetHTTPClient swaps the underlying HTTP client, mainly for tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	if hc != nil {
		c.http = hc
	}
}

// cacheGet loads the parsed result cached under key into out. A miss, a
// cache error, or a stale shape all read as a miss.
func (c *Client) cacheGet(ctx context.Context, key string, out interface{}) bool {
	if c.cache == nil {
		return false
	}
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return false
	}
	if data == nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cached payload unreadable")
		return false
	}
	return true
}

// cachePut stores the parsed result under key, best effort.
func (c *Client) cachePut(ctx context.Context, key string, v interface{}) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Put(ctx, key, data); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// getJSON performs a GET and decodes a 200 response into out. Any other
// status reports found=false; the providers answer 404 for unknown drugs.
func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

func firstOrNil(list []string) *string {
	if len(list) == 0 {
		return nil
	}
	return &list[0]
}
