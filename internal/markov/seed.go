package markov

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// LoadCorpus tokenizes plain text from r and upserts the resulting
// (p1, p2) -> next transitions into the store, using the same
// freq += 1 semantics the live store expects. This supplements the
// out-of-scope offline ingestion tool so the repository is self-contained
// for local development and the end-to-end test scenarios.
func (s *Store) LoadCorpus(ctx context.Context, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	p1, p2 := int64(SentinelID), int64(SentinelID)
	count := 0
	for scanner.Scan() {
		for _, tok := range tokenize(scanner.Text()) {
			id, err := s.WordID(ctx, tok)
			if err != nil {
				return count, err
			}
			if err := s.Upsert(ctx, p1, p2, id); err != nil {
				return count, err
			}
			p1, p2 = p2, id
			count++
		}
		// A blank line or end of sentence resets to the sentinel state,
		// matching the sentinel-delimited paragraph structure the
		// generator walks.
		if err := s.Upsert(ctx, p1, p2, SentinelID); err != nil {
			return count, err
		}
		p1, p2 = SentinelID, SentinelID
	}
	return count, scanner.Err()
}

func tokenize(line string) []string {
	fields := strings.Fields(line)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.Trim(f, ".,!?;:\"'()[]{}"))
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
