package markov

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deterministicRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// fakeSource is an in-memory Source double, letting the generator tests
// run without a Postgres instance.
type fakeSource struct {
	words       map[int64]string
	transitions map[[2]int64][]Transition
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		words: map[int64]string{
			1: "",
			2: "the",
			3: "quick",
			4: "fox",
			5: "jumps",
		},
		transitions: map[[2]int64][]Transition{
			{1, 1}: {{NextID: 2, Freq: 5}},
			{1, 2}: {{NextID: 3, Freq: 3}},
			{2, 3}: {{NextID: 4, Freq: 2}},
			{3, 4}: {{NextID: 5, Freq: 1}, {NextID: 1, Freq: 1}},
			{4, 5}: {{NextID: 1, Freq: 1}},
		},
	}
}

func (f *fakeSource) Transitions(_ context.Context, p1, p2 int64) ([]Transition, error) {
	return f.transitions[[2]int64{p1, p2}], nil
}

func (f *fakeSource) Word(_ context.Context, id int64) (string, error) {
	return f.words[id], nil
}

func TestRenderDeterministic(t *testing.T) {
	g := NewGenerator(newFakeSource(), "unit")

	out1 := g.Render(context.Background(), "/foo")
	out2 := g.Render(context.Background(), "/foo")
	assert.Equal(t, out1, out2, "same seed must render byte-identical output")

	out3 := g.Render(context.Background(), "/bar")
	assert.NotEqual(t, out1, out3, "different path must render different output")
}

func TestRenderFallbackOnEmptyStore(t *testing.T) {
	g := NewGenerator(&fakeSource{words: map[int64]string{}, transitions: map[[2]int64][]Transition{}}, "unit")
	out := g.Render(context.Background(), "/anything")
	assert.Contains(t, out, "service temporarily unavailable")
}

func TestSeedDeterministic(t *testing.T) {
	g := NewGenerator(newFakeSource(), "unit")
	require.Equal(t, g.Seed("/foo"), g.Seed("/foo"))
	require.NotEqual(t, g.Seed("/foo"), g.Seed("/bar"))
}

func TestWeightedPickStaysWithinCandidates(t *testing.T) {
	cands := []Transition{{NextID: 10, Freq: 1}, {NextID: 20, Freq: 1}}
	g := NewGenerator(newFakeSource(), "unit")
	seen := map[int64]bool{}
	for i := 0; i < 50; i++ {
		rng := deterministicRNG(int64(i))
		next := weightedPick(rng, cands)
		seen[next] = true
	}
	for id := range seen {
		assert.Contains(t, []int64{10, 20}, id)
	}
}
