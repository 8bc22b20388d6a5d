package defense

import (
	"sort"

	"github.com/skyshield/skyshield/sim"
)

// Solution is one memoized interception-point computation for a
// (threat, battery) pair. Feasible=false is a valid, cacheable answer:
// the battery cannot reach the threat this cycle.
type Solution struct {
	Point    sim.Vec3
	Time     float64
	Feasible bool
}

// SolutionKey identifies a cached solution.
type SolutionKey struct {
	ThreatID  int
	BatteryID int
}

type cacheEntry struct {
	sol      Solution
	storedAt float64
}

// SolutionCache memoizes interception solutions with a short TTL so the
// bisection solver is not re-run every tick for every pair. Entries past
// the hard cap are evicted oldest-first in batches.
type SolutionCache struct {
	ttl     float64
	cap     int
	evictN  int
	entries map[SolutionKey]cacheEntry

	hits   uint64
	misses uint64
}

func NewSolutionCache(ttl float64, capacity, evictN int) *SolutionCache {
	return &SolutionCache{
		ttl:     ttl,
		cap:     capacity,
		evictN:  evictN,
		entries: make(map[SolutionKey]cacheEntry),
	}
}

// Get returns the cached solution when present and fresher than the TTL.
func (c *SolutionCache) Get(key SolutionKey, now float64) (Solution, bool) {
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return Solution{}, false
	}
	if now-entry.storedAt > c.ttl {
		delete(c.entries, key)
		c.misses++
		return Solution{}, false
	}
	c.hits++
	return entry.sol, true
}

// Put stores a solution and evicts the oldest batch when over capacity.
func (c *SolutionCache) Put(key SolutionKey, sol Solution, now float64) {
	c.entries[key] = cacheEntry{sol: sol, storedAt: now}
	if len(c.entries) > c.cap {
		c.evictOldest()
	}
}

func (c *SolutionCache) evictOldest() {
	type aged struct {
		key      SolutionKey
		storedAt float64
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, storedAt: e.storedAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].storedAt < all[j].storedAt
	})

	n := c.evictN
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
}

// Invalidate drops every entry for a threat (threat destroyed).
func (c *SolutionCache) Invalidate(threatID int) {
	for k := range c.entries {
		if k.ThreatID == threatID {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of cached entries.
func (c *SolutionCache) Len() int {
	return len(c.entries)
}

// Stats returns cumulative hit/miss counts.
func (c *SolutionCache) Stats() (hits, misses uint64) {
	return c.hits, c.misses
}

// SolveIntercept finds the time at which an interceptor launched now
// from the battery meets the threat's gravity-propagated trajectory,
// via bisection on [directDistance/speed, threat time-to-impact].
//
// Early rejects: threat outside battery range, or the threat impacts
// before an interceptor could possibly arrive (minTime > maxTime).
func SolveIntercept(t *sim.Threat, b *sim.Battery, tolerance float64) Solution {
	dist := sim.Distance(b.Pos, t.Pos)
	if dist > b.MaxRange {
		return Solution{Feasible: false}
	}

	minTime := dist / b.InterceptorSpeed
	maxTime := t.TimeToImpact()
	if minTime > maxTime {
		return Solution{Feasible: false}
	}

	// flightGap(tau) > 0 means the interceptor needs more than tau
	// seconds to reach the threat's position at tau.
	flightGap := func(tau float64) float64 {
		future := sim.PropagateBallistic(t.Pos, t.Vel, tau)
		return sim.Distance(b.Pos, future)/b.InterceptorSpeed - tau
	}

	// No root in the bracket: even at the last possible moment the
	// interceptor cannot arrive in time.
	if flightGap(maxTime) > 0 {
		return Solution{Feasible: false}
	}

	lo, hi := minTime, maxTime
	for hi-lo > tolerance {
		mid := (lo + hi) / 2
		if flightGap(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}

	point := sim.PropagateBallistic(t.Pos, t.Vel, hi)
	if point.Y <= 0 || sim.Distance(b.Pos, point) > b.MaxRange {
		return Solution{Feasible: false}
	}

	return Solution{Point: point, Time: hi, Feasible: true}
}
