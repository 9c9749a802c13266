package markov

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"math/rand"
	"strings"
)

// RenderAsset produces a fake static asset matching one of the link
// extensions the HTML page itself links to ({js, css, json, csv}), seeded
// the same way as the HTML page so a crawler that follows a generated
// link keeps wasting time on a plausible secondary fetch instead of
// hitting a 404. This supplements the donor system's separate archive
// generator, reusing the chain walk and seeding this package already has
// rather than a dedicated format.
func (g *Generator) RenderAsset(ctx context.Context, normalizedPath, ext string) string {
	seed := g.Seed(normalizedPath)
	rng := rand.New(rand.NewSource(seedInt64(seed)))

	words, err := g.walk(ctx, rng)
	if err != nil || len(words) == 0 {
		return "/* service temporarily unavailable */"
	}
	tokens := wordTokens(words)

	switch ext {
	case "js":
		return renderJS(tokens)
	case "css":
		return renderCSS(tokens)
	case "json":
		return renderJSON(tokens)
	default:
		return renderCSV(tokens)
	}
}

func wordTokens(words []walkWord) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w.id != SentinelID && w.text != "" {
			out = append(out, w.text)
		}
	}
	return out
}

func renderJS(tokens []string) string {
	var b strings.Builder
	b.WriteString("// generated\n")
	for i := 0; i+1 < len(tokens) && i < 40; i += 2 {
		fmt.Fprintf(&b, "var %s = %q;\n", sanitizeIdent(tokens[i]), tokens[i+1])
	}
	return b.String()
}

func renderCSS(tokens []string) string {
	var b strings.Builder
	for i := 0; i+1 < len(tokens) && i < 40; i += 2 {
		fmt.Fprintf(&b, ".%s { content: %q; }\n", sanitizeIdent(tokens[i]), tokens[i+1])
	}
	return b.String()
}

func renderJSON(tokens []string) string {
	payload, err := json.Marshal(map[string]any{"data": tokens})
	if err != nil {
		return "{}"
	}
	return string(payload)
}

func renderCSV(tokens []string) string {
	var b strings.Builder
	for i, t := range tokens {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(html.EscapeString(t))
	}
	return b.String()
}

func sanitizeIdent(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "v"
	}
	return b.String()
}
