package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultBaseURL serves raw repository contents.
const DefaultBaseURL = "https://raw.githubusercontent.com"

// Upstream locates workflow files of a GitHub repository at a given ref.
type Upstream struct {
	BaseURL    string
	Repository string
}

// WorkflowURL returns the raw URL of .github/workflows/<file> at tag.
func (u Upstream) WorkflowURL(tag, file string) string {
	base := strings.TrimRight(u.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return fmt.Sprintf("%s/%s/%s/.github/workflows/%s", base, u.Repository, tag, file)
}

// Target is one named resource to retrieve.
type Target struct {
	Name string
	URL  string
}

// Result is the outcome for one Target. Exactly one of Response and Err is
// set.
type Result struct {
	Target   Target
	Response *Response
	Err      error
}

// OK reports whether the target was retrieved successfully.
func (r Result) OK() bool {
	return r.Err == nil && r.Response != nil && r.Response.Status() == StatusOK
}

// FetchAll retrieves every target concurrently and returns the results in
// target order. Failures are recorded per target; the only error returned
// is cancellation of ctx.
func FetchAll(ctx context.Context, f Fetcher, targets []Target) ([]Result, error) {
	results := make([]Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		g.Go(func() error {
			resp, err := f.Fetch(gctx, target.URL)
			if resp == nil && err == nil {
				err = errors.Errorf("fetch: GET %s: no response", target.URL)
			}
			results[i] = Result{Target: target, Response: resp, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
