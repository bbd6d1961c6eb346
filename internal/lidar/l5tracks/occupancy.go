package l5tracks

import (
	"bytes"
	"fmt"
	"iter"
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/autodrive/internal/lidar/l4perception"
	"github.com/banshee-data/autodrive/internal/monitoring"
	"github.com/banshee-data/autodrive/internal/timeutil"
)

// FuseAction describes what a fusion did to the grid.
type FuseAction string

const (
	FuseCreated    FuseAction = monitoring.FusionCreated
	FuseUpdated    FuseAction = monitoring.FusionUpdated
	FuseSuperseded FuseAction = monitoring.FusionSuperseded
	FuseSkipped    FuseAction = monitoring.FusionSkipped
)

// FuseResult reports the outcome of fusing one blob.
type FuseResult struct {
	ID     uuid.UUID // Occupant now holding the arc (uuid.Nil when skipped)
	Action FuseAction
	Bins   []int // Bins written, in arc order
}

// AngularOccupancy is a fixed-resolution angular index around the vehicle.
// It owns every Occupant; bins hold plain ids that resolve through the
// occupant table. All methods are safe for concurrent use.
type AngularOccupancy struct {
	cfg   OccupancyConfig
	clock timeutil.Clock

	mu        sync.RWMutex
	strategy  WeighingStrategy
	bins      []uuid.UUID
	table     map[uuid.UUID]*Occupant
	binCounts map[uuid.UUID]int
}

// NewAngularOccupancy creates an empty grid. A nil strategy selects the
// default heuristic and a nil clock the real clock.
func NewAngularOccupancy(cfg OccupancyConfig, strategy WeighingStrategy, clock timeutil.Clock) (*AngularOccupancy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid occupancy config: %w", err)
	}
	if strategy == nil {
		strategy = DefaultHeuristicWeigher()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &AngularOccupancy{
		cfg:       cfg,
		clock:     clock,
		strategy:  strategy,
		bins:      make([]uuid.UUID, cfg.Discretization),
		table:     make(map[uuid.UUID]*Occupant),
		binCounts: make(map[uuid.UUID]int),
	}, nil
}

// Config returns the grid configuration.
func (g *AngularOccupancy) Config() OccupancyConfig {
	return g.cfg
}

// BinCount returns the number of angular bins.
func (g *AngularOccupancy) BinCount() int {
	return len(g.bins)
}

// BinOf returns the bin nearest to angle (radians, any range).
func (g *AngularOccupancy) BinOf(angle float64) int {
	n := len(g.bins)
	i := int(math.Round(angle / (2 * math.Pi) * float64(n)))
	return mod(i, n)
}

// AngleOf returns the angle of bin i mapped to [0, 2π).
func (g *AngularOccupancy) AngleOf(i int) float64 {
	n := len(g.bins)
	return float64(mod(i, n)) * 2 * math.Pi / float64(n)
}

// ArcOf returns the contiguous bins spanned by a blob, running from the
// first point's bin to the last point's bin along the shorter direction,
// and the bin nearest the arc's mid bearing.
func (g *AngularOccupancy) ArcOf(blob l4perception.Blob) (arc []int, mid int) {
	start := l4perception.Bearing(blob.First())
	end := l4perception.Bearing(blob.Last())
	midAngle := start + wrapAngle(end-start)/2

	n := len(g.bins)
	from, to := g.BinOf(start), g.BinOf(end)
	span := mod(to-from, n)
	if span > n/2 {
		from, span = to, n-span
	}
	arc = make([]int, 0, span+1)
	for k := 0; k <= span; k++ {
		arc = append(arc, mod(from+k, n))
	}
	return arc, g.BinOf(midAngle)
}

// Fuse folds one blob into the grid. A blob whose middle point is
// degenerate is skipped and ErrDegenerateGeometry returned.
//
// The bins within SearchRange of the mid bearing are searched, nearest
// first, for an existing occupant. Without a match a new occupant is
// created. A match that is more than SupersedeDistance farther than the
// blob is replaced by a new occupant; otherwise it is updated in place.
// Either way the occupant's previous bins are cleared and the blob's arc
// written.
func (g *AngularOccupancy) Fuse(blob l4perception.Blob) (FuseResult, error) {
	if len(blob) == 0 {
		monitoring.FusionTotal.WithLabelValues(monitoring.FusionSkipped).Inc()
		return FuseResult{Action: FuseSkipped}, ErrDegenerateGeometry
	}

	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	candidate, err := NewOccupant(blob.Middle(), now, g.cfg.Occupant, g.strategy)
	if err != nil {
		monitoring.FusionTotal.WithLabelValues(monitoring.FusionSkipped).Inc()
		return FuseResult{Action: FuseSkipped}, err
	}

	arc, mid := g.ArcOf(blob)
	res := FuseResult{Bins: arc}

	matchID, found := g.searchLocked(mid)
	switch {
	case !found:
		g.table[candidate.ID] = candidate
		res.ID, res.Action = candidate.ID, FuseCreated
		tracef("created %s at %.2fm bearing %.3f bins %d..%d", candidate.ID, candidate.Distance, candidate.CenterAngle, arc[0], arc[len(arc)-1])

	case g.supersedes(g.table[matchID], candidate):
		existing := g.table[matchID]
		diagf("superseding %s (%.2fm) with %s (%.2fm)", matchID, existing.Distance, candidate.ID, candidate.Distance)
		g.removeLocked(matchID)
		g.table[candidate.ID] = candidate
		res.ID, res.Action = candidate.ID, FuseSuperseded

	default:
		existing := g.table[matchID]
		existing.UpdateWith(candidate, now)
		candidate.Kill()
		g.clearBinsLocked(matchID)
		res.ID, res.Action = matchID, FuseUpdated
		tracef("updated %s at %.2fm weight %.2f", matchID, existing.Distance, existing.Weight)
	}

	g.writeArcLocked(res.ID, arc)
	monitoring.FusionTotal.WithLabelValues(string(res.Action)).Inc()
	monitoring.Occupants.Set(float64(len(g.table)))
	return res, nil
}

// FuseAll fuses blobs in order. Degenerate blobs are skipped and reported
// with FuseSkipped.
func (g *AngularOccupancy) FuseAll(blobs []l4perception.Blob) []FuseResult {
	results := make([]FuseResult, 0, len(blobs))
	for i, b := range blobs {
		res, err := g.Fuse(b)
		if err != nil {
			opsf("skipping blob %d of %d: %v", i, len(blobs), err)
		}
		results = append(results, res)
	}
	return results
}

// Expire purges every occupant whose survival probability is at or below
// ExpirationProbability, clears bins that reference ids missing from the
// table and drops occupants left without bins. It returns the number of
// occupants purged.
func (g *AngularOccupancy) Expire() int {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	purged := 0
	for id, o := range g.table {
		if o.SurvivalProbability(now) <= g.cfg.ExpirationProbability || g.binCounts[id] == 0 {
			g.removeLocked(id)
			purged++
		}
	}

	stale := 0
	for i, id := range g.bins {
		if id == uuid.Nil {
			continue
		}
		if _, ok := g.table[id]; !ok {
			g.bins[i] = uuid.Nil
			stale++
		}
	}
	if stale > 0 {
		opsf("cleared %d stale bin references", stale)
	}
	if purged > 0 {
		diagf("expired %d occupants, %d remain", purged, len(g.table))
		monitoring.ExpiredTotal.Add(float64(purged))
	}
	monitoring.Occupants.Set(float64(len(g.table)))
	return purged
}

// Occupants returns a lazy view of the occupant table as value copies,
// ordered by id. Each range re-reads the table, so the sequence is
// restartable and reflects fusions made between iterations.
func (g *AngularOccupancy) Occupants() iter.Seq2[uuid.UUID, Occupant] {
	return func(yield func(uuid.UUID, Occupant) bool) {
		g.mu.RLock()
		ids := slices.SortedFunc(maps.Keys(g.table), func(a, b uuid.UUID) int {
			return bytes.Compare(a[:], b[:])
		})
		g.mu.RUnlock()

		for _, id := range ids {
			o, ok := g.Get(id)
			if !ok {
				continue
			}
			if !yield(id, o) {
				return
			}
		}
	}
}

// Bin returns a copy of the occupant referenced by bin i (taken modulo the
// bin count). A bin holding a purged id reads as empty.
func (g *AngularOccupancy) Bin(i int) (Occupant, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id := g.bins[mod(i, len(g.bins))]
	if id == uuid.Nil {
		return Occupant{}, false
	}
	o, ok := g.table[id]
	if !ok {
		return Occupant{}, false
	}
	return *o, true
}

// BinID returns the raw id stored in bin i.
func (g *AngularOccupancy) BinID(i int) uuid.UUID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.bins[mod(i, len(g.bins))]
}

// Get returns a copy of the occupant with the given id.
func (g *AngularOccupancy) Get(id uuid.UUID) (Occupant, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	o, ok := g.table[id]
	if !ok {
		return Occupant{}, false
	}
	return *o, true
}

// Len returns the number of occupants in the table.
func (g *AngularOccupancy) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.table)
}

// Arc returns the bins currently referencing id, in index order.
func (g *AngularOccupancy) Arc(id uuid.UUID) []int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var arc []int
	for i, b := range g.bins {
		if b == id {
			arc = append(arc, i)
		}
	}
	return arc
}

// SetWeight overrides an occupant's weight, bypassing the weighing
// strategy. It reports whether the occupant exists.
func (g *AngularOccupancy) SetWeight(id uuid.UUID, w float64) bool {
	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.table[id]
	if !ok {
		return false
	}
	o.SetWeight(w, now)
	return true
}

// Classify sets an occupant's classification. It reports whether the
// occupant exists.
func (g *AngularOccupancy) Classify(id uuid.UUID, c ObjectClass) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.table[id]
	if !ok {
		return false
	}
	o.Class = c
	return true
}

// SetStrategy swaps the weighing strategy shared by all occupants. Weights
// are recomputed on the next fusion match.
func (g *AngularOccupancy) SetStrategy(s WeighingStrategy) {
	if s == nil {
		s = DefaultHeuristicWeigher()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.strategy = s
	for _, o := range g.table {
		o.strategy = s
	}
}

// Reset kills every occupant and clears all bins.
func (g *AngularOccupancy) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, o := range g.table {
		o.Kill()
		delete(g.table, id)
	}
	clear(g.bins)
	clear(g.binCounts)
	monitoring.Occupants.Set(0)
}

func (g *AngularOccupancy) supersedes(existing, candidate *Occupant) bool {
	return math.Abs(existing.Distance-candidate.Distance) > g.cfg.SupersedeDistance &&
		candidate.Distance < existing.Distance
}

// searchLocked returns the first occupied bin within SearchRange of mid,
// checking mid first and then alternating outward. Stale ids are cleared.
func (g *AngularOccupancy) searchLocked(mid int) (uuid.UUID, bool) {
	n := len(g.bins)
	for k := 0; k <= g.cfg.SearchRange; k++ {
		for _, i := range []int{mod(mid+k, n), mod(mid-k, n)} {
			id := g.bins[i]
			if id == uuid.Nil {
				continue
			}
			if _, ok := g.table[id]; !ok {
				opsf("bin %d references purged occupant %s", i, id)
				g.bins[i] = uuid.Nil
				continue
			}
			return id, true
		}
	}
	return uuid.Nil, false
}

// writeArcLocked assigns arc to id. Bins taken from another occupant are
// deducted from it, and an occupant left with no bins is dropped.
func (g *AngularOccupancy) writeArcLocked(id uuid.UUID, arc []int) {
	for _, i := range arc {
		prev := g.bins[i]
		if prev == id {
			continue
		}
		if prev != uuid.Nil {
			g.binCounts[prev]--
			if g.binCounts[prev] <= 0 {
				diagf("occupant %s lost its last bin to %s", prev, id)
				g.bins[i] = uuid.Nil
				g.removeLocked(prev)
			}
		}
		g.bins[i] = id
		g.binCounts[id]++
	}
}

func (g *AngularOccupancy) clearBinsLocked(id uuid.UUID) {
	for i, b := range g.bins {
		if b == id {
			g.bins[i] = uuid.Nil
		}
	}
	delete(g.binCounts, id)
}

func (g *AngularOccupancy) removeLocked(id uuid.UUID) {
	if o, ok := g.table[id]; ok {
		o.Kill()
		delete(g.table, id)
	}
	g.clearBinsLocked(id)
}

func mod(i, n int) int {
	return ((i % n) + n) % n
}

// wrapAngle maps a to (-π, π].
func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
