package entity

// Loop is a closed chain of pairs returning to its starting coin. Coins[i]
// and Coins[i+1] are the endpoints of Pairs[i]; the last pair leads back to
// Coins[0]. StartIndex is the ledger index of the first pair used, kept to
// prune duplicate rotations during search. Loops are ephemeral: produced,
// scored and discarded each search pass.
type Loop struct {
	Pairs      []*TradePair
	Coins      []*Coin
	StartIndex int
}

// Len is the number of conversions in the loop.
func (l Loop) Len() int {
	return len(l.Pairs)
}

func (l Loop) String() string {
	if len(l.Coins) == 0 {
		return "empty loop"
	}
	s := l.Coins[0].String()
	for i := 1; i < len(l.Coins); i++ {
		s += " -> " + l.Coins[i].String()
	}
	return s + " -> " + l.Coins[0].String()
}
