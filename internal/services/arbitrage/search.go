// Package arbitrage finds closed conversion chains across the mirrored pair
// graph and scores them against live order-book liquidity.
package arbitrage

import (
	"sort"
	"strconv"
	"strings"

	"github.com/vadiminshakov/looper/internal/entity"
)

// partial is a simple path through the pair graph under construction. The
// path may grow from either endpoint, so coins[0] and coins[len-1] are both
// extension frontiers. pairs[i] connects coins[i] and coins[i+1].
type partial struct {
	pairs    []*entity.TradePair
	coins    []*entity.Coin
	indices  map[int]struct{}
	startIdx int
}

func (p *partial) start() *entity.Coin { return p.coins[0] }
func (p *partial) end() *entity.Coin   { return p.coins[len(p.coins)-1] }

func (p *partial) visited(c *entity.Coin) bool {
	for _, known := range p.coins {
		if known == c {
			return true
		}
	}
	return false
}

// FindLoops enumerates simple loops of up to maxLen pairs. The search is
// level-synchronous: level k holds paths of k+1 pairs, so loops surface in
// increasing length order and shorter loops win when overlapping ones exist.
// Each loop is derived from the partial path seeded by its smallest pair
// index, which prunes re-deriving the same rotation from every edge; a final
// canonical-signature dedup removes the direction twin.
func FindLoops(pairs []*entity.TradePair, maxLen int) []entity.Loop {
	if maxLen < 2 || len(pairs) < 2 {
		return nil
	}

	var loops []entity.Loop
	found := make(map[string]struct{})

	level := make([]*partial, 0, len(pairs))
	for i, p := range pairs {
		level = append(level, &partial{
			pairs:    []*entity.TradePair{p},
			coins:    []*entity.Coin{p.Base, p.Quote},
			indices:  map[int]struct{}{i: {}},
			startIdx: i,
		})
	}

	for length := 2; length <= maxLen && len(level) > 0; length++ {
		var next []*partial

		for _, path := range level {
			for j := path.startIdx + 1; j < len(pairs); j++ {
				if _, used := path.indices[j]; used {
					continue
				}
				candidate := pairs[j]

				if closes(path, candidate) {
					loop := closeLoop(path, candidate)
					sig := signature(path.indices, j)
					if _, dup := found[sig]; !dup {
						found[sig] = struct{}{}
						loops = append(loops, loop)
					}
					continue
				}

				if grown := extend(path, candidate, j); grown != nil {
					next = append(next, grown...)
				}
			}
		}

		level = next
	}

	return loops
}

// closes reports whether the pair connects the path's two frontiers,
// regardless of which endpoint is which. A one-pair path can only be closed
// by a second, distinct pair over the same coins, which exists only across
// exchanges; the used-index check upstream rules out the pair itself.
func closes(path *partial, p *entity.TradePair) bool {
	return (p.Base == path.end() && p.Quote == path.start()) ||
		(p.Quote == path.end() && p.Base == path.start())
}

func closeLoop(path *partial, closing *entity.TradePair) entity.Loop {
	loop := entity.Loop{
		Pairs:      make([]*entity.TradePair, 0, len(path.pairs)+1),
		Coins:      make([]*entity.Coin, len(path.coins)),
		StartIndex: path.startIdx,
	}
	loop.Pairs = append(loop.Pairs, path.pairs...)
	loop.Pairs = append(loop.Pairs, closing)
	copy(loop.Coins, path.coins)
	return loop
}

// extend grows the path by one pair: at the back when the pair touches the
// end coin, at the front when it touches the start coin. Both directions are
// kept so loops that must grow from the start coin are not missed.
func extend(path *partial, p *entity.TradePair, idx int) []*partial {
	var grown []*partial

	if next := p.Other(path.end()); next != nil && !path.visited(next) {
		g := clonePath(path, 1)
		g.pairs = append(g.pairs, p)
		g.coins = append(g.coins, next)
		g.indices[idx] = struct{}{}
		grown = append(grown, g)
	}

	if prev := p.Other(path.start()); prev != nil && !path.visited(prev) {
		g := clonePath(path, 1)
		g.pairs = append([]*entity.TradePair{p}, g.pairs...)
		g.coins = append([]*entity.Coin{prev}, g.coins...)
		g.indices[idx] = struct{}{}
		grown = append(grown, g)
	}

	return grown
}

func clonePath(path *partial, extra int) *partial {
	g := &partial{
		pairs:    make([]*entity.TradePair, len(path.pairs), len(path.pairs)+extra),
		coins:    make([]*entity.Coin, len(path.coins), len(path.coins)+extra),
		indices:  make(map[int]struct{}, len(path.indices)+extra),
		startIdx: path.startIdx,
	}
	copy(g.pairs, path.pairs)
	copy(g.coins, path.coins)
	for i := range path.indices {
		g.indices[i] = struct{}{}
	}
	return g
}

// signature is the canonical identity of a loop: its sorted pair indices.
// Rotations and the reverse direction share it.
func signature(indices map[int]struct{}, closing int) string {
	all := make([]int, 0, len(indices)+1)
	for i := range indices {
		all = append(all, i)
	}
	all = append(all, closing)
	sort.Ints(all)

	var b strings.Builder
	for i, idx := range all {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(idx))
	}
	return b.String()
}
