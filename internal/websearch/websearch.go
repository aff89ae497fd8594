package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"smart-health/internal/llm"
)

const (
	duckDuckGoURL = "https://html.duckduckgo.com/html/"

	defaultMaxResults = 5
	cacheSize         = 256
	cacheTTL          = 30 * time.Minute
	userAgent         = "Mozilla/5.0 (compatible; smart-health/1.0)"
)

// ErrEmptyQuery is returned when a search is requested without terms.
var ErrEmptyQuery = errors.New("search query is empty")

// Result is a single search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Client searches DuckDuckGo's HTML endpoint. It satisfies llm.Tool so agents
// can look things up while generating.
type Client struct {
	baseURL    string
	maxResults int
	httpClient *http.Client
	cache      *expirable.LRU[string, []Result]
}

var _ llm.Tool = (*Client)(nil)

// NewClient creates a search client with a short-lived result cache.
func NewClient() *Client {
	return newClient(duckDuckGoURL)
}

func newClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		maxResults: defaultMaxResults,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      expirable.NewLRU[string, []Result](cacheSize, nil, cacheTTL),
	}
}

// Search returns up to maxResults hits for the query.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	key := strings.ToLower(query)
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	results := make([]Result, 0, c.maxResults)
	doc.Find(".result").EachWithBreak(func(i int, s *goquery.Selection) bool {
		link := s.Find(".result__a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return true
		}
		results = append(results, Result{
			Title:   title,
			URL:     resolveURL(href),
			Snippet: strings.TrimSpace(s.Find(".result__snippet").Text()),
		})
		return len(results) < c.maxResults
	})

	c.cache.Add(key, results)
	return results, nil
}

// resolveURL unwraps DuckDuckGo's redirect links ("/l/?uddg=<target>").
func resolveURL(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

// Name implements llm.Tool.
func (c *Client) Name() string { return "web_search" }

// Description implements llm.Tool.
func (c *Client) Description() string {
	return "Search the web with DuckDuckGo for up-to-date nutrition, food and exercise information."
}

// Parameters implements llm.Tool.
func (c *Client) Parameters() []llm.ToolParam {
	return []llm.ToolParam{{Name: "query", Description: "The search terms.", Required: true}}
}

// Call implements llm.Tool by rendering the hits as a numbered text list.
func (c *Client) Call(ctx context.Context, args map[string]string) (string, error) {
	results, err := c.Search(ctx, args["query"])
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results found.", nil
	}
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Snippet)
		}
	}
	return sb.String(), nil
}
