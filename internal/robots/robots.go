// Package robots loads a robots.txt document once at startup and applies
// the spec's exact prefix-match semantics, deliberately narrower than the
// wildcard-aware matching github.com/temoto/robotstxt itself provides.
package robots

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
)

// Matcher answers whether a normalized request path is disallowed under
// User-agent: * per the rules extracted at load time.
type Matcher struct {
	disallow []string
}

// Empty returns a Matcher with no rules loaded (disallows nothing), used
// when no robots.txt URL is configured or the fetch fails — robots
// loading is a Configuration-kind failure, not one the request path
// should ever see.
func Empty() *Matcher {
	return &Matcher{}
}

// Load fetches and parses the document at url, extracting every Disallow
// rule under "User-agent: *". Rule "/" is ignored, since it would
// disallow every path and the spec specifically carves that out.
func Load(url string) (*Matcher, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return Parse(body)
}

// Parse extracts Disallow rules from raw robots.txt bytes. The
// temoto/robotstxt library is used only to tokenize the document into
// group/rule structure; the spec's exact prefix matcher is then applied
// by hand against the extracted Disallow strings, since the library's own
// TestAgent implements fuller wildcard/longest-match semantics this spec
// does not want.
func Parse(body []byte) (*Matcher, error) {
	doc, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, err
	}

	group := doc.FindGroup("*")
	if group == nil {
		return &Matcher{}, nil
	}

	var rules []string
	for _, rule := range group.Rules {
		if rule.Allow {
			continue
		}
		path := rule.Path
		if path == "/" {
			continue
		}
		if path == "" {
			continue
		}
		rules = append(rules, path)
	}
	return &Matcher{disallow: rules}, nil
}

// Disallowed reports whether normalizedPath (always leading with "/") is
// disallowed: some rule is a prefix of it.
func (m *Matcher) Disallowed(normalizedPath string) bool {
	for _, rule := range m.disallow {
		if strings.HasPrefix(normalizedPath, rule) {
			return true
		}
	}
	return false
}
