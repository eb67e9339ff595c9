package optimize

import (
	"sort"

	"mcsim/internal/domain"
)

// leaderboard keeps the best n candidates in rank order.
type leaderboard struct {
	n   int
	top []domain.Candidate
}

func newLeaderboard(n int) *leaderboard {
	return &leaderboard{n: n, top: make([]domain.Candidate, 0, n+1)}
}

func (b *leaderboard) offer(c domain.Candidate) {
	i := sort.Search(len(b.top), func(i int) bool { return better(c, b.top[i]) })
	if i >= b.n {
		return
	}
	b.top = append(b.top, domain.Candidate{})
	copy(b.top[i+1:], b.top[i:])
	b.top[i] = c
	if len(b.top) > b.n {
		b.top = b.top[:b.n]
	}
}

func (b *leaderboard) best() *domain.Candidate {
	if len(b.top) == 0 {
		return nil
	}
	c := b.top[0]
	return &c
}

func (b *leaderboard) snapshot() []domain.Candidate {
	out := make([]domain.Candidate, len(b.top))
	copy(out, b.top)
	return out
}

// better orders candidates by score, then trade count, then the smaller
// parameter set, so the ranking is independent of completion order.
func better(a, b domain.Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Trades != b.Trades {
		return a.Trades > b.Trades
	}
	pa, pb := a.Params, b.Params
	switch {
	case pa.Fast != pb.Fast:
		return pa.Fast < pb.Fast
	case pa.Slow != pb.Slow:
		return pa.Slow < pb.Slow
	default:
		return pa.Period < pb.Period
	}
}
