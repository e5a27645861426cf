// Package graphdb queries the infrastructure graph store over the SPARQL
// protocol.
package graphdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"intentmesh/internal/config"
	"intentmesh/internal/domain"
)

const resultsMediaType = "application/sparql-results+json"

// Client looks up the domain of a data center by its identifier.
type Client struct {
	Endpoint        string
	Graph           string
	IDPredicate     string
	DomainPredicate string
	HTTPClient      *http.Client
	Timeout         time.Duration
}

// New creates a client from the graphdb config section.
func New(cfg config.GraphDBConfig) *Client {
	return &Client{
		Endpoint:        cfg.Endpoint,
		Graph:           cfg.Graph,
		IDPredicate:     cfg.IDPredicate,
		DomainPredicate: cfg.DomainPredicate,
		Timeout:         cfg.Timeout,
	}
}

type results struct {
	Results struct {
		Bindings []map[string]struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

// Query returns the domain values bound to identifier. An empty result is not
// an error. Transport failures, timeouts and non-2xx answers are reported as
// domain.ErrUnavailable.
func (c *Client) Query(ctx context.Context, identifier string) ([]string, error) {
	q := url.Values{}
	q.Set("query", c.selectQuery(identifier))
	endpoint := c.Endpoint
	if strings.Contains(endpoint, "?") {
		endpoint += "&" + q.Encode()
	} else {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build graph query: %w", err)
	}
	req.Header.Set("Accept", resultsMediaType)

	res, err := c.httpClient().Do(req)
	if err != nil {
		return nil, domain.Unavailable("graph store unreachable", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, domain.Unavailable("graph store error",
			fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body))))
	}
	var out results
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, domain.Unavailable("graph store returned malformed results", err)
	}
	var values []string
	for _, b := range out.Results.Bindings {
		if v, ok := b["domain"]; ok && strings.TrimSpace(v.Value) != "" {
			values = append(values, strings.TrimSpace(v.Value))
		}
	}
	return values, nil
}

func (c *Client) selectQuery(identifier string) string {
	pattern := fmt.Sprintf("?dc <%s> %s ; <%s> ?domain .",
		c.IDPredicate, literal(identifier), c.DomainPredicate)
	if c.Graph != "" {
		pattern = fmt.Sprintf("GRAPH <%s> { %s }", c.Graph, pattern)
	}
	return fmt.Sprintf("SELECT ?domain WHERE { %s } LIMIT 1", pattern)
}

// literal quotes s as a SPARQL string literal.
func literal(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)
	return `"` + r.Replace(s) + `"`
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
