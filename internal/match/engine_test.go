package match

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/veilchat/backend/internal/queue"
)

func newTestWaitlist(t *testing.T) *queue.Store {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return queue.NewStore(client, nil)
}

func TestFindMatch_MutualSpecific(t *testing.T) {
	store := newTestWaitlist(t)
	engine := NewEngine(store)
	ctx := context.Background()

	// A female wanting males waits; a male wanting females arrives.
	if err := store.Enqueue(ctx, "her", queue.GenderFemale, queue.PrefMale); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if err := store.Enqueue(ctx, "him", queue.GenderMale, queue.PrefFemale); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	pairing, err := engine.FindMatch(ctx, "him", queue.GenderMale, queue.PrefFemale)
	if err != nil {
		t.Fatalf("FindMatch() error: %v", err)
	}
	if pairing == nil {
		t.Fatal("expected a pairing")
	}
	if pairing.Requester != "him" || pairing.Partner != "her" {
		t.Errorf("expected him<->her, got %+v", pairing)
	}

	// Both entries must be consumed.
	for _, tc := range []struct {
		id string
		g  queue.Gender
		p  queue.Preference
	}{
		{"her", queue.GenderFemale, queue.PrefMale},
		{"him", queue.GenderMale, queue.PrefFemale},
	} {
		queued, _ := store.IsQueued(ctx, tc.id, tc.g, tc.p)
		if queued {
			t.Errorf("expected %s removed from queue after match", tc.id)
		}
	}
}

func TestFindMatch_AnyMatchesAny(t *testing.T) {
	store := newTestWaitlist(t)
	engine := NewEngine(store)
	ctx := context.Background()

	if err := store.Enqueue(ctx, "first", queue.GenderOther, queue.PrefAny); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if err := store.Enqueue(ctx, "second", queue.GenderMale, queue.PrefAny); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	pairing, err := engine.FindMatch(ctx, "second", queue.GenderMale, queue.PrefAny)
	if err != nil {
		t.Fatalf("FindMatch() error: %v", err)
	}
	if pairing == nil {
		t.Fatal("expected a pairing")
	}
	if pairing.Partner != "first" {
		t.Errorf("expected partner=first, got %q", pairing.Partner)
	}
}

func TestFindMatch_SpecificBeforeAny(t *testing.T) {
	store := newTestWaitlist(t)
	engine := NewEngine(store)
	ctx := context.Background()

	// Two compatible females: one wants males specifically, one takes
	// anyone. The specific-preference queue is scanned first.
	if err := store.Enqueue(ctx, "anyone", queue.GenderFemale, queue.PrefAny); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if err := store.Enqueue(ctx, "specific", queue.GenderFemale, queue.PrefMale); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if err := store.Enqueue(ctx, "him", queue.GenderMale, queue.PrefFemale); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	pairing, err := engine.FindMatch(ctx, "him", queue.GenderMale, queue.PrefFemale)
	if err != nil {
		t.Fatalf("FindMatch() error: %v", err)
	}
	if pairing == nil {
		t.Fatal("expected a pairing")
	}
	if pairing.Partner != "specific" {
		t.Errorf("expected the specific-preference candidate, got %q", pairing.Partner)
	}
}

func TestFindMatch_NoCandidates(t *testing.T) {
	store := newTestWaitlist(t)
	engine := NewEngine(store)
	ctx := context.Background()

	if err := store.Enqueue(ctx, "him", queue.GenderMale, queue.PrefFemale); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	pairing, err := engine.FindMatch(ctx, "him", queue.GenderMale, queue.PrefFemale)
	if err != nil {
		t.Fatalf("FindMatch() error: %v", err)
	}
	if pairing != nil {
		t.Fatalf("expected no pairing, got %+v", pairing)
	}

	// The requester's own entry stays queued.
	queued, _ := store.IsQueued(ctx, "him", queue.GenderMale, queue.PrefFemale)
	if !queued {
		t.Error("expected requester to remain queued without a match")
	}
}

func TestFindMatch_SkipsSelf(t *testing.T) {
	store := newTestWaitlist(t)
	engine := NewEngine(store)
	ctx := context.Background()

	// A male wanting males appears in his own target queue.
	if err := store.Enqueue(ctx, "him", queue.GenderMale, queue.PrefMale); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	pairing, err := engine.FindMatch(ctx, "him", queue.GenderMale, queue.PrefMale)
	if err != nil {
		t.Fatalf("FindMatch() error: %v", err)
	}
	if pairing != nil {
		t.Fatalf("expected no self-match, got %+v", pairing)
	}
	queued, _ := store.IsQueued(ctx, "him", queue.GenderMale, queue.PrefMale)
	if !queued {
		t.Error("expected entry untouched after self-scan")
	}
}

// racingWaitlist simulates a concurrent search that consumes the
// requester's entry between the candidate claim and the self claim.
type racingWaitlist struct {
	mu      sync.Mutex
	entries map[string]float64 // "<gender>:<pref>:<identity>" -> score
	loser   string             // identity whose self-claim must fail
}

func rwKey(g queue.Gender, p queue.Preference, identity string) string {
	return string(g) + ":" + string(p) + ":" + identity
}

func (w *racingWaitlist) PeekCandidates(_ context.Context, g queue.Gender, p queue.Preference, _ int64) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prefix := string(g) + ":" + string(p) + ":"
	var out []string
	for k := range w.entries {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k[len(prefix):])
		}
	}
	return out, nil
}

func (w *racingWaitlist) TryClaim(_ context.Context, identity string, g queue.Gender, p queue.Preference) (float64, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if identity == w.loser {
		return 0, false, nil
	}
	key := rwKey(g, p, identity)
	score, ok := w.entries[key]
	if !ok {
		return 0, false, nil
	}
	delete(w.entries, key)
	return score, true, nil
}

func (w *racingWaitlist) Restore(_ context.Context, identity string, g queue.Gender, p queue.Preference, score float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries[rwKey(g, p, identity)] = score
	return nil
}

func TestFindMatch_SelfClaimRace(t *testing.T) {
	w := &racingWaitlist{
		entries: map[string]float64{
			rwKey(queue.GenderFemale, queue.PrefMale, "her"): 42,
		},
		loser: "him",
	}
	engine := NewEngine(w)

	pairing, err := engine.FindMatch(context.Background(), "him", queue.GenderMale, queue.PrefFemale)
	if err != nil {
		t.Fatalf("FindMatch() error: %v", err)
	}
	if pairing != nil {
		t.Fatalf("expected no pairing when the self-claim loses, got %+v", pairing)
	}

	// The candidate must be restored at her original score.
	score, ok := w.entries[rwKey(queue.GenderFemale, queue.PrefMale, "her")]
	if !ok {
		t.Fatal("expected candidate restored after losing the race")
	}
	if score != 42 {
		t.Errorf("expected restored score 42, got %f", score)
	}
}

func TestFindMatch_ConcurrentSearchesNeverDoubleClaim(t *testing.T) {
	store := newTestWaitlist(t)
	engine := NewEngine(store)
	ctx := context.Background()

	// One waiting female, two racing males. Exactly one wins.
	if err := store.Enqueue(ctx, "her", queue.GenderFemale, queue.PrefAny); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if err := store.Enqueue(ctx, "m1", queue.GenderMale, queue.PrefFemale); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if err := store.Enqueue(ctx, "m2", queue.GenderMale, queue.PrefFemale); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	results := make(chan *Pairing, 2)
	var wg sync.WaitGroup
	for _, requester := range []string{"m1", "m2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			p, err := engine.FindMatch(ctx, id, queue.GenderMale, queue.PrefFemale)
			if err != nil {
				t.Errorf("FindMatch(%s) error: %v", id, err)
				return
			}
			results <- p
		}(requester)
	}
	wg.Wait()
	close(results)

	var winners int
	for p := range results {
		if p != nil {
			winners++
			if p.Partner != "her" {
				t.Errorf("unexpected partner %q", p.Partner)
			}
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winning search, got %d", winners)
	}
}
