package markov

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"html"
	"math/rand"
	"strings"
)

// maxCandidates is K in the spec: at most this many transition rows are
// considered per step, already ordered by descending frequency.
const maxCandidates = 20

// linkExtensions maps each fake-link prefix family to its extension, the
// same {page, js, data, styles} vocabulary the fake-asset route reuses.
var linkPrefixes = []struct {
	prefix string
	ext    string
}{
	{"page", "html"},
	{"js", "js"},
	{"data", "json"},
	{"styles", "css"},
}

// Source is the read side of the relational store the generator needs;
// satisfied by *Store and by test fakes.
type Source interface {
	Transitions(ctx context.Context, p1, p2 int64) ([]Transition, error)
	Word(ctx context.Context, id int64) (string, error)
}

// Generator renders deterministic fake HTML pages from a relational
// Markov chain. It holds no per-request state; Render constructs its own
// PRNG for every call so concurrent requests never share randomness.
type Generator struct {
	src        Source
	systemSeed string
}

func NewGenerator(src Source, systemSeed string) *Generator {
	return &Generator{src: src, systemSeed: systemSeed}
}

// Seed derives the deterministic per-request seed string S =
// sha256(system_seed || normalized_path).
func (g *Generator) Seed(normalizedPath string) string {
	sum := sha256.Sum256([]byte(g.systemSeed + normalizedPath))
	return fmt.Sprintf("%x", sum)
}

// seedInt64 turns the hex seed string into an int64 for math/rand, using
// its first 8 bytes. Collisions across distinct seeds are immaterial here:
// determinism per seed is all that matters, not seed-space uniqueness.
func seedInt64(seed string) int64 {
	sum := sha256.Sum256([]byte(seed))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// SeedRand returns a fresh per-request PRNG seeded identically to the one
// Render uses internally, for callers (the tarpit streamer) that need
// the same deterministic seed for a second purpose, such as jittering
// the delay between streamed lines.
func (g *Generator) SeedRand(normalizedPath string) *rand.Rand {
	return rand.New(rand.NewSource(seedInt64(g.Seed(normalizedPath))))
}

// fallbackHTML is served when the relational store is unreachable. The
// generator must never propagate a store error to the caller.
const fallbackHTML = `<!doctype html><html><head><title>Service Unavailable</title></head><body><p>service temporarily unavailable</p></body></html>`

// Render produces a full HTML document for the given normalized path. On
// any store error it returns the static fallback page and a nil error —
// per spec, the generator never raises to its caller.
func (g *Generator) Render(ctx context.Context, normalizedPath string) string {
	seed := g.Seed(normalizedPath)
	rng := rand.New(rand.NewSource(seedInt64(seed)))

	words, err := g.walk(ctx, rng)
	if err != nil || len(words) == 0 {
		return fallbackHTML
	}

	title := titleFromWords(words)
	body := paragraphsHTML(words)
	links := g.links(rng)

	var b strings.Builder
	b.WriteString("<!doctype html><html><head><title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title></head><body>")
	b.WriteString(body)
	b.WriteString("<ul class=\"links\">")
	for _, l := range links {
		b.WriteString(`<li><a href="`)
		b.WriteString(html.EscapeString(l))
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(l))
		b.WriteString("</a></li>")
	}
	// Hidden trap link: never linked to by a real page, so only an
	// automated crawler that scrapes every href will ever fetch it.
	b.WriteString(`<li style="display:none"><a href="/tarpit/` + trapSuffix(rng) + `">more</a></li>`)
	b.WriteString("</ul></body></html>")
	return b.String()
}

// paragraph boundary sentinel: word-id 1 both starts and ends a chain walk.
type walkWord struct {
	id   int64
	text string
}

// walk performs the chain walk described in spec §4.3 step 2-3: emit
// tokens by walking a second-order Markov chain until a soft word cap is
// reached, closing paragraphs at sentinel transitions.
func (g *Generator) walk(ctx context.Context, rng *rand.Rand) ([]walkWord, error) {
	sentences := 3 + rng.Intn(4) // 3-6 "sentences" worth of soft cap
	cap := sentences * (15 + rng.Intn(16))

	var out []walkWord
	p1, p2 := int64(SentinelID), int64(SentinelID)
	for len(out) < cap {
		cands, err := g.src.Transitions(ctx, p1, p2)
		if err != nil {
			return nil, err
		}
		if len(cands) == 0 {
			break
		}
		if len(cands) > maxCandidates {
			cands = cands[:maxCandidates]
		}
		next := weightedPick(rng, cands)
		if next == SentinelID {
			out = append(out, walkWord{id: SentinelID})
			p1, p2 = SentinelID, SentinelID
			continue
		}
		word, err := g.src.Word(ctx, next)
		if err != nil {
			return nil, err
		}
		out = append(out, walkWord{id: next, text: word})
		p1, p2 = p2, next
	}
	return out, nil
}

// weightedPick chooses one candidate weighted by its frequency, using rng
// as the only source of randomness. Ties in frequency were already broken
// by the caller's ordering/truncation; here we just weight-sample.
func weightedPick(rng *rand.Rand, cands []Transition) int64 {
	var total int64
	for _, c := range cands {
		total += c.Freq
	}
	if total <= 0 {
		return cands[0].NextID
	}
	r := rng.Int63n(total)
	var cum int64
	for _, c := range cands {
		cum += c.Freq
		if r < cum {
			return c.NextID
		}
	}
	return cands[len(cands)-1].NextID
}

func paragraphsHTML(words []walkWord) string {
	var b strings.Builder
	var para []string
	flush := func() {
		if len(para) == 0 {
			return
		}
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(strings.Join(para, " ")))
		b.WriteString("</p>")
		para = para[:0]
	}
	for _, w := range words {
		if w.id == SentinelID {
			flush()
			continue
		}
		if w.text != "" {
			para = append(para, w.text)
		}
	}
	flush()
	return b.String()
}

func titleFromWords(words []walkWord) string {
	var parts []string
	for _, w := range words {
		if w.id != SentinelID && w.text != "" {
			parts = append(parts, w.text)
			if len(parts) == 6 {
				break
			}
		}
	}
	if len(parts) == 0 {
		return "Untitled"
	}
	return strings.Title(strings.Join(parts, " "))
}

// links generates 5-10 plausible-looking internal links per spec §4.3
// step 4: a random prefix among {page, js, data, styles}, a matching
// extension, and 0-depth intermediate directory segments.
func (g *Generator) links(rng *rand.Rand) []string {
	n := 5 + rng.Intn(6)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.randomPath(rng, 3))
	}
	return out
}

func (g *Generator) randomPath(rng *rand.Rand, depth int) string {
	p := linkPrefixes[rng.Intn(len(linkPrefixes))]
	segments := []string{p.prefix}
	nSeg := rng.Intn(depth + 1)
	for i := 0; i < nSeg; i++ {
		segments = append(segments, randomToken(rng))
	}
	segments = append(segments, randomToken(rng))
	return "/" + strings.Join(segments, "/") + "." + p.ext
}

func trapSuffix(rng *rand.Rand) string {
	return randomToken(rng)
}

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomToken(rng *rand.Rand) string {
	n := 4 + rng.Intn(8)
	b := make([]byte, n)
	for i := range b {
		b[i] = tokenAlphabet[rng.Intn(len(tokenAlphabet))]
	}
	return string(b)
}
