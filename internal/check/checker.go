// Package check performs the external indexing check: given a URL, decide
// whether a search engine has it indexed. The production implementation
// fetches a Google "site:" query through the scrape.do proxy and classifies
// the returned HTML. The heuristic itself is intentionally coarse; the core
// only consumes the three-valued outcome.
package check

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Status is the three-valued outcome of an indexing check.
type Status string

// Check outcomes.
const (
	StatusIndexed    Status = "INDEXED"
	StatusNotIndexed Status = "NOT_INDEXED"
	StatusError      Status = "ERROR"
)

// Result is the collaborator's response for one URL. Errors are reported
// in-band via StatusError; the core performs no retries on them.
type Result struct {
	URL          string
	Status       Status
	ErrorMessage string
	CheckedAt    time.Time
}

// Checker is the external indexing-check collaborator.
type Checker interface {
	Check(ctx context.Context, target string) Result
}

// maxResponseBytes caps how much of the search-result HTML is read for
// classification. Result pages are well under this.
const maxResponseBytes = 4 << 20

// noResultsPatterns are markers Google emits when a query matches nothing.
var noResultsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)did not match any documents`),
	regexp.MustCompile(`(?i)No results found`),
	regexp.MustCompile(`(?i)did not match any`),
	regexp.MustCompile(`(?i)Your search.*did not match`),
}

// GoogleChecker checks indexing by running a site-scoped Google search
// through scrape.do. Outbound calls share one token-bucket limiter so the
// whole worker pool stays under the provider's rate cap.
type GoogleChecker struct {
	// HTTPClient must carry a bounded timeout; a timeout surfaces as an
	// ERROR outcome, not a retry.
	HTTPClient *http.Client
	// Endpoint is the scrape.do base URL.
	Endpoint string
	// APIKey is the scrape.do token.
	APIKey string
	// Limiter throttles outbound calls (shared across workers). Optional.
	Limiter *rate.Limiter
}

// NewGoogleChecker builds a checker with a timeout-bounded HTTP client and a
// shared outbound limiter of rps tokens/second with the given burst.
func NewGoogleChecker(endpoint, apiKey string, timeout time.Duration, rps float64, burst int) *GoogleChecker {
	return &GoogleChecker{
		HTTPClient: &http.Client{Timeout: timeout},
		Endpoint:   endpoint,
		APIKey:     apiKey,
		Limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Check runs the indexing check for target. It never returns an error;
// failures of any kind (bad URL, limiter cancellation, transport, non-2xx)
// come back as StatusError with a message.
func (g *GoogleChecker) Check(ctx context.Context, target string) Result {
	checkedAt := time.Now().UTC()

	query, err := buildSearchQuery(target)
	if err != nil {
		return Result{URL: target, Status: StatusError, ErrorMessage: err.Error(), CheckedAt: checkedAt}
	}

	if g.Limiter != nil {
		if err := g.Limiter.Wait(ctx); err != nil {
			return Result{URL: target, Status: StatusError, ErrorMessage: err.Error(), CheckedAt: checkedAt}
		}
	}

	searchURL := "https://www.google.com/search?q=" + url.QueryEscape(query)
	reqURL := fmt.Sprintf("%s?token=%s&url=%s",
		strings.TrimRight(g.Endpoint, "/"), url.QueryEscape(g.APIKey), url.QueryEscape(searchURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Result{URL: target, Status: StatusError, ErrorMessage: err.Error(), CheckedAt: checkedAt}
	}

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return Result{URL: target, Status: StatusError, ErrorMessage: err.Error(), CheckedAt: checkedAt}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{URL: target, Status: StatusError, ErrorMessage: err.Error(), CheckedAt: checkedAt}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{
			URL:          target,
			Status:       StatusError,
			ErrorMessage: fmt.Sprintf("scrape request failed with status %d", resp.StatusCode),
			CheckedAt:    checkedAt,
		}
	}

	status := Classify(string(body), target)
	return Result{URL: target, Status: status, CheckedAt: checkedAt}
}

// buildSearchQuery turns a target URL into a site-scoped Google query, e.g.
// "site:example.com inurl:/blog/post?id=1".
func buildSearchQuery(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid target url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid target url: %q has no host", target)
	}
	path := u.Path
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return fmt.Sprintf("site:%s inurl:%s", u.Hostname(), path), nil
}

// Classify decides INDEXED vs NOT_INDEXED from the search-result HTML.
// Order matters: explicit no-results markers win, then an exact URL match,
// then host+path both appearing anywhere in the page.
func Classify(html, target string) Status {
	for _, p := range noResultsPatterns {
		if p.MatchString(html) {
			return StatusNotIndexed
		}
	}

	if pattern, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(target)); err == nil {
		if pattern.MatchString(html) {
			return StatusIndexed
		}
	}

	if u, err := url.Parse(target); err == nil && u.Hostname() != "" {
		if strings.Contains(html, u.Hostname()) && u.Path != "" && strings.Contains(html, u.Path) {
			return StatusIndexed
		}
	}

	return StatusNotIndexed
}
