package engine

import (
	"container/heap"
	"math/rand/v2"
	"testing"
	"time"
)

// =============================================================================
// Simulation Harness
// =============================================================================

// simClient sends requests at a fixed rate with a fixed cost per request.
// Its key is either static or freshly random per request, the latter
// standing in for a pool of many distinct low-volume sources.
type simClient struct {
	staticKey uint64
	randKeys  *rand.Rand
	rps       int
	cost      uint32
	accepted  int
}

func newStaticClient(key uint64, rps int, cost uint32) *simClient {
	return &simClient{staticKey: key, rps: rps, cost: cost}
}

func newRandomClient(seed uint64, rps int, cost uint32) *simClient {
	return &simClient{randKeys: rand.New(rand.NewPCG(seed, seed)), rps: rps, cost: cost}
}

func (c *simClient) key() uint64 {
	if c.randKeys != nil {
		return c.randKeys.Uint64()
	}
	return c.staticKey
}

type simEvent struct {
	at     time.Time
	client *simClient
}

type simQueue []simEvent

func (q simQueue) Len() int { return len(q) }

func (q simQueue) Less(i, j int) bool { return q[i].at.Before(q[j].at) }

func (q simQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *simQueue) Push(x any) { *q = append(*q, x.(simEvent)) }
func (q *simQueue) Pop() any {
	old := *q
	n := len(old)
	event := old[n-1]
	*q = old[:n-1]
	return event
}

// simulate runs clients against the limiter for the given number of
// simulated seconds, interleaving their requests in timestamp order.
func simulate(l *FairLimiter[uint64], start time.Time, seconds int, clients ...*simClient) {
	deadline := start.Add(time.Duration(seconds) * time.Second)
	queue := make(simQueue, 0, len(clients))
	for _, c := range clients {
		queue = append(queue, simEvent{at: start, client: c})
	}
	heap.Init(&queue)
	for {
		event := heap.Pop(&queue).(simEvent)
		if !event.at.Before(deadline) {
			return
		}
		c := event.client
		if l.Check(c.key(), c.cost, event.at) {
			c.accepted++
		}
		heap.Push(&queue, simEvent{at: event.at.Add(time.Second / time.Duration(c.rps)), client: c})
	}
}

func newSimLimiter(t *testing.T, trackedPerTick, untrackedPerTick uint32, now time.Time) *FairLimiter[uint64] {
	t.Helper()
	l, err := NewFairLimiter[uint64](time.Second, trackedPerTick, untrackedPerTick, 100, newTestPrng(1), now)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func assertBetween(t *testing.T, name string, got, low, high int) {
	t.Helper()
	if got < low || got > high {
		t.Errorf("%s: %d not in [%d, %d]", name, got, low, high)
	}
}

// =============================================================================
// Tests - Steady-State Single Client
// =============================================================================

func TestSimulationSingleClientUnderThreshold(t *testing.T) {
	// Below 75% of the doubled tracked budget, acceptance is total and
	// deterministic: no randomness is consumed on the admission path.
	for _, rps := range []int{25, 50, 75} {
		now := time.Unix(1_700_000_000, 0)
		l := newSimLimiter(t, 100, 25, now)
		client := newStaticClient(0, rps, 1)
		simulate(l, now, 100, client)
		if client.accepted != rps*100 {
			t.Errorf("rps=%d: expected exactly %d accepted, got %d", rps, rps*100, client.accepted)
		}
	}
}

func TestSimulationSingleClientOverload(t *testing.T) {
	for _, tc := range []struct {
		rps       int
		low, high int
	}{
		{76, 7300, 7900},
		{80, 7600, 8300},
		{85, 8100, 8800},
		{90, 8400, 9100},
		{95, 8700, 9400},
		{100, 8900, 9600},
		{150, 9500, 10400},
		{500, 9600, 10400},
	} {
		now := time.Unix(1_700_000_000, 0)
		l := newSimLimiter(t, 100, 25, now)
		client := newStaticClient(0, tc.rps, 1)
		simulate(l, now, 100, client)
		assertBetween(t, "accepted", client.accepted, tc.low, tc.high)
	}
}

// =============================================================================
// Tests - Overload Fairness Across Clients
// =============================================================================

func TestSimulationFourClientsNoOverload(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newSimLimiter(t, 100, 25, now)
	c0 := newStaticClient(0, 50, 1)
	c1 := newStaticClient(1, 25, 1)
	c2 := newStaticClient(2, 5, 1)
	c3 := newStaticClient(3, 1, 1)
	simulate(l, now, 100, c0, c1, c2, c3)

	// Aggregate load stays within budget: everyone gets full throughput.
	if c0.accepted != 5000 || c1.accepted != 2500 || c2.accepted != 500 || c3.accepted != 100 {
		t.Errorf("expected full acceptance (5000/2500/500/100), got %d/%d/%d/%d",
			c0.accepted, c1.accepted, c2.accepted, c3.accepted)
	}
}

func TestSimulationFourClientsOverloadFairness(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newSimLimiter(t, 100, 25, now)
	c0 := newStaticClient(0, 200, 1)
	c1 := newStaticClient(1, 200, 1)
	c2 := newStaticClient(2, 200, 1)
	c3 := newStaticClient(3, 17, 1)
	simulate(l, now, 100, c0, c1, c2, c3)

	// The three heavy clients converge to similar fair shares.
	for _, got := range []int{c0.accepted, c1.accepted, c2.accepted} {
		assertBetween(t, "heavy client", got, 2000, 4000)
	}
	// The light client never exceeds its fair share, so it keeps its full
	// offered load.
	assertBetween(t, "light client", c3.accepted, 1680, 1700)

	total := c0.accepted + c1.accepted + c2.accepted + c3.accepted
	assertBetween(t, "total accepted", total, 8500, 11_500)
}

func TestSimulationMixedRatesOverload(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newSimLimiter(t, 100, 25, now)
	c0 := newStaticClient(0, 100, 1)
	c1 := newStaticClient(1, 50, 1)
	c2 := newStaticClient(2, 10, 1)
	c3 := newStaticClient(3, 1, 1)
	simulate(l, now, 100, c0, c1, c2, c3)

	assertBetween(t, "client 0", c0.accepted, 4000, 6500)
	assertBetween(t, "client 1", c1.accepted, 2500, 5000)
	// These two stay below every per-key budget the allocator can produce.
	if c2.accepted != 1000 {
		t.Errorf("client 2: expected exactly 1000, got %d", c2.accepted)
	}
	if c3.accepted != 100 {
		t.Errorf("client 3: expected exactly 100, got %d", c3.accepted)
	}
	total := c0.accepted + c1.accepted + c2.accepted + c3.accepted
	assertBetween(t, "total accepted", total, 8500, 11_000)
}

// =============================================================================
// Tests - Tracked Client vs Long Tail
// =============================================================================

func TestSimulationClientAndLongTailUnderBudget(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newSimLimiter(t, 100, 25, now)
	client := newStaticClient(0, 25, 1)
	longtail := newRandomClient(2, 25, 1)
	simulate(l, now, 1000, client, longtail)

	// Under budget nobody is rejected, however the load is keyed.
	if client.accepted != 25_000 {
		t.Errorf("client: expected exactly 25000, got %d", client.accepted)
	}
	if longtail.accepted != 25_000 {
		t.Errorf("longtail: expected exactly 25000, got %d", longtail.accepted)
	}
}

func TestSimulationClientAndLongTailContention(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newSimLimiter(t, 100, 25, now)
	client := newStaticClient(0, 75, 1)
	longtail := newRandomClient(2, 50, 1)
	simulate(l, now, 1000, client, longtail)

	// Both sides shed some load; neither is starved.
	assertBetween(t, "client", client.accepted, 35_000, 65_000)
	assertBetween(t, "longtail", longtail.accepted, 35_000, 65_000)
	assertBetween(t, "total", client.accepted+longtail.accepted, 80_000, 115_000)
}

func TestSimulationClientAndLongTailOverload(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newSimLimiter(t, 100, 25, now)
	client := newStaticClient(0, 100, 1)
	longtail := newRandomClient(2, 100, 1)
	simulate(l, now, 1000, client, longtail)

	// Key-hopping traffic churns through the tracked table, but the static
	// client keeps a meaningful share instead of being starved out.
	assertBetween(t, "client", client.accepted, 20_000, 50_000)
	assertBetween(t, "longtail", longtail.accepted, 80_000, 100_000)
	assertBetween(t, "total", client.accepted+longtail.accepted, 110_000, 145_000)
}
