// Package ranking selects extreme estimates for downstream review.
//
// Ordering: mean DESC for TopN and mean ASC for BottomN. Ties are always
// broken by area id ascending so selections are deterministic.
package ranking

import (
	"errors"
	"sort"

	"github.com/okian/arearisk/internal/domain/model"
)

// Sentinel kinds for ranking errors.
var (
	ErrNotFound     = errors.New("area not found")
	ErrInvalidLimit = errors.New("invalid ranking limit")
)

// Entry is a ranked estimate. Rank is dense: equal means share a rank.
type Entry struct {
	Rank     int
	Estimate model.PosteriorEstimate
}

// Reporter holds an immutable, pre-sorted copy of a run's estimates.
type Reporter struct {
	desc []Entry // ranked highest mean first
	pos  map[string]int
}

// New copies and sorts estimates once.
func New(estimates []model.PosteriorEstimate) *Reporter {
	entries := make([]Entry, len(estimates))
	for i, e := range estimates {
		entries[i] = Entry{Estimate: e}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return less(entries[i].Estimate, entries[j].Estimate)
	})
	assignRanksWithTies(entries)

	pos := make(map[string]int, len(entries))
	for i, e := range entries {
		pos[e.Estimate.AreaID] = i
	}
	return &Reporter{desc: entries, pos: pos}
}

// less reports whether a ranks before b in the descending order.
func less(a, b model.PosteriorEstimate) bool {
	if a.Mean != b.Mean {
		return a.Mean > b.Mean
	}
	return a.AreaID < b.AreaID
}

// TopN returns the k areas with the highest mean.
func (r *Reporter) TopN(k int) ([]Entry, error) {
	if k < 1 {
		return nil, ErrInvalidLimit
	}
	k = min(k, len(r.desc))
	out := make([]Entry, k)
	copy(out, r.desc[:k])
	return out, nil
}

// BottomN returns the k areas with the lowest mean, lowest first. Ties keep
// area id ascending, so this is not simply TopN reversed.
func (r *Reporter) BottomN(k int) ([]Entry, error) {
	if k < 1 {
		return nil, ErrInvalidLimit
	}
	asc := make([]Entry, len(r.desc))
	copy(asc, r.desc)
	sort.SliceStable(asc, func(i, j int) bool {
		a, b := asc[i].Estimate, asc[j].Estimate
		if a.Mean != b.Mean {
			return a.Mean < b.Mean
		}
		return a.AreaID < b.AreaID
	})
	return asc[:min(k, len(asc))], nil
}

// Rank returns the ranked entry for an area.
func (r *Reporter) Rank(areaID string) (Entry, error) {
	i, ok := r.pos[areaID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return r.desc[i], nil
}

// Count returns the number of ranked areas.
func (r *Reporter) Count() int {
	return len(r.desc)
}

// assignRanksWithTies gives equal means the same rank; the next distinct
// mean gets the next consecutive rank.
func assignRanksWithTies(entries []Entry) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Estimate.Mean != entries[i-1].Estimate.Mean {
			rank++
		}
		entries[i].Rank = rank
	}
}
