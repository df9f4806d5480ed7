// Package issueref parses references to GitHub issues as typed on the command
// line or posted to the API.
package issueref

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Ref identifies one issue
type Ref struct {
	// Host is empty for the short forms
	Host   string
	Owner  string
	Repo   string
	Number int
}

var (
	// owner/repo#123
	shortPattern = regexp.MustCompile(`^([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)#(\d+)$`)
	// /owner/repo/issues/123 with optional trailing parts such as #issuecomment-1
	pathPattern = regexp.MustCompile(`^/([^/]+)/([^/]+)/issues/(\d+)`)
)

// Parse accepts "owner/repo#123" or an issue URL such as
// https://github.com/owner/repo/issues/123
func Parse(ref string) (*Ref, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty issue reference")
	}

	if m := shortPattern.FindStringSubmatch(ref); m != nil {
		n, err := number(m[3])
		if err != nil {
			return nil, err
		}
		return &Ref{Owner: m[1], Repo: m[2], Number: n}, nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid issue URL: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("unrecognized issue reference %q: use owner/repo#N or an issue URL", ref)
	}

	m := pathPattern.FindStringSubmatch(u.Path)
	if m == nil {
		if strings.Contains(u.Path, "/pull/") {
			return nil, fmt.Errorf("%q is a pull request, not an issue", ref)
		}
		return nil, fmt.Errorf("invalid issue URL path: %s", u.Path)
	}
	n, err := number(m[3])
	if err != nil {
		return nil, err
	}
	return &Ref{Host: strings.ToLower(u.Host), Owner: m[1], Repo: m[2], Number: n}, nil
}

func number(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid issue number: %s", s)
	}
	return n, nil
}

// FullName returns owner/repo
func (r *Ref) FullName() string {
	return r.Owner + "/" + r.Repo
}

// String returns owner/repo#N
func (r *Ref) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}
