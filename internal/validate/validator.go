// Package validate checks a post corpus before a study session: structural
// problems are caught offline, page reachability optionally against the live
// sites.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tmoreaux/detectlab/internal/eval"
	"github.com/tmoreaux/detectlab/internal/posts"
	"github.com/tmoreaux/detectlab/internal/util"
)

// Severity grades a corpus issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one problem found in the corpus.
type Issue struct {
	Post     string   `json:"post"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Validator runs corpus checks.
type Validator struct {
	httpClient *http.Client
	robots     *util.RobotsChecker
	maxWorkers int
}

// NewValidator creates a validator. The HTTP client is only exercised by
// CheckURLs.
func NewValidator(timeout time.Duration, maxWorkers int, httpProxy, httpsProxy, noProxy string) *Validator {
	if maxWorkers <= 0 {
		maxWorkers = 5
	}

	return &Validator{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(httpProxy, httpsProxy, noProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		robots:     util.NewRobotsChecker("detectlab", timeout),
		maxWorkers: maxWorkers,
	}
}

// Check runs the offline structural checks over the whole corpus.
func (v *Validator) Check(corpus *posts.Corpus) []Issue {
	var issues []Issue
	seen := make(map[string]bool)

	for i, p := range corpus.Posts {
		name := p.URLMatch
		if name == "" {
			name = fmt.Sprintf("post #%d", i+1)
		}

		if p.URLMatch == "" {
			issues = append(issues, Issue{
				Post:     name,
				Severity: SeverityError,
				Message:  "urlMatch is empty, the post can never be matched to a page",
			})
		} else if seen[p.URLMatch] {
			issues = append(issues, Issue{
				Post:     name,
				Severity: SeverityError,
				Message:  "duplicate urlMatch, only the first entry will be used",
			})
		}
		seen[p.URLMatch] = true

		if p.AIText != "" && p.ContentSnippet == "" {
			issues = append(issues, Issue{
				Post:     name,
				Severity: SeverityError,
				Message:  "aiText is set but contentSnippet is empty, the swap target cannot be located",
			})
		}
		if p.AIText != "" && p.Selector == "" {
			issues = append(issues, Issue{
				Post:     name,
				Severity: SeverityWarning,
				Message:  "aiText is set but selector is empty, matching will scan the whole page",
			})
		}

		issues = append(issues, v.checkStoredResponse(name, "storedLLMResponseAI", p.StoredResponseAI)...)
		issues = append(issues, v.checkStoredResponse(name, "storedLLMResponseHuman", p.StoredResponseHuman)...)
		issues = append(issues, v.checkStoredResponse(name, "storedLLMResponse", p.StoredResponse)...)

		if p.StoredResponseAI != nil && p.StoredResponseHuman == nil {
			issues = append(issues, Issue{
				Post:     name,
				Severity: SeverityWarning,
				Message:  "storedLLMResponseAI without storedLLMResponseHuman, human-variant trials fall back to the live model",
			})
		}
	}

	return issues
}

// checkStoredResponse verifies a canned payload parses as an evaluation.
func (v *Validator) checkStoredResponse(post, field string, payload map[string]any) []Issue {
	if payload == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return []Issue{{
			Post:     post,
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s cannot be encoded: %v", field, err),
		}}
	}

	ev, err := eval.Parse(raw)
	if err != nil {
		return []Issue{{
			Post:     post,
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s does not parse as an evaluation: %v", field, err),
		}}
	}

	if ev.Probability < 0 || ev.Probability > 1 {
		return []Issue{{
			Post:     post,
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s probability %g is outside [0,1]", field, ev.Probability),
		}}
	}

	return nil
}

// CheckURLs probes every absolute post URL with a HEAD request, honoring
// robots.txt. Relative or fragment-only urlMatch values are skipped.
func (v *Validator) CheckURLs(ctx context.Context, corpus *posts.Corpus) []Issue {
	type probe struct {
		index int
		url   string
	}

	var probes []probe
	for i, p := range corpus.Posts {
		if parsed, err := url.Parse(p.URLMatch); err == nil && parsed.Scheme != "" && parsed.Host != "" {
			probes = append(probes, probe{index: i, url: p.URLMatch})
		}
	}
	if len(probes) == 0 {
		return nil
	}

	results := make([][]Issue, len(probes))
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, v.maxWorkers)

	for i, pr := range probes {
		wg.Add(1)
		go func(slot int, pr probe) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()
			results[slot] = v.probeURL(ctx, pr.url)
		}(i, pr)
	}
	wg.Wait()

	var issues []Issue
	for _, r := range results {
		issues = append(issues, r...)
	}
	return issues
}

func (v *Validator) probeURL(ctx context.Context, pageURL string) []Issue {
	if allowed, err := v.robots.Allowed(ctx, pageURL); err == nil && !allowed {
		return []Issue{{
			Post:     pageURL,
			Severity: SeverityWarning,
			Message:  "robots.txt disallows fetching this page",
		}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, pageURL, nil)
	if err != nil {
		return []Issue{{Post: pageURL, Severity: SeverityError, Message: fmt.Sprintf("create request: %v", err)}}
	}
	req.Header.Set("User-Agent", "detectlab")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return []Issue{{Post: pageURL, Severity: SeverityError, Message: fmt.Sprintf("request failed: %v", err)}}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return []Issue{{
			Post:     pageURL,
			Severity: SeverityError,
			Message:  fmt.Sprintf("page returned status %d", resp.StatusCode),
		}}
	}

	if resp.Request.URL.String() != pageURL && !strings.HasPrefix(resp.Request.URL.String(), pageURL) {
		return []Issue{{
			Post:     pageURL,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("page redirects to %s, urlMatch may no longer apply", resp.Request.URL),
		}}
	}

	return nil
}
