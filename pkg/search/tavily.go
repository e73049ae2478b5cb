// Package search wraps the Tavily web-search API.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTavilyBaseURL = "https://api.tavily.com"

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Response carries search hits and Tavily's optional synthesized answer.
type Response struct {
	Results []Result `json:"results"`
	Answer  string   `json:"answer"`
}

// Options tune a search request. Zero values fall back to basic depth and
// three results.
type Options struct {
	Topic         string
	SearchDepth   string
	MaxResults    int
	IncludeAnswer bool
}

// Provider performs a web search for a query.
type Provider interface {
	Search(ctx context.Context, query string, opts Options) (Response, error)
}

// Client calls the Tavily REST API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client with the provided API key.
func NewClient(apiKey string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("tavily api key required")
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultTavilyBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Search runs the query and returns results plus an optional answer.
func (c *Client) Search(ctx context.Context, query string, opts Options) (Response, error) {
	if opts.Topic == "" {
		opts.Topic = "general"
	}
	if opts.SearchDepth == "" {
		opts.SearchDepth = "basic"
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 3
	}
	reqBody := searchRequest{
		Query:         query,
		Topic:         opts.Topic,
		SearchDepth:   opts.SearchDepth,
		MaxResults:    opts.MaxResults,
		IncludeAnswer: opts.IncludeAnswer,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("tavily api error: %s", resp.Status)
	}
	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, err
	}
	return out, nil
}

type searchRequest struct {
	Query         string `json:"query"`
	Topic         string `json:"topic"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}
