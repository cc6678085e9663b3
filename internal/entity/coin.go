package entity

// Coin is a currency known to one exchange. Identity is (symbol, exchange)
// and is immutable once the coin is created. The pair list is a non-owning
// back-reference maintained by the ledger when pairs are registered.
type Coin struct {
	Symbol   string
	Exchange string

	pairs []*TradePair
}

func NewCoin(symbol, exchange string) *Coin {
	return &Coin{Symbol: symbol, Exchange: exchange}
}

func (c *Coin) Currency() Currency {
	return Currency{Symbol: c.Symbol, Exchange: c.Exchange}
}

// AddPair registers a pair this coin participates in. Adding the same pair
// twice is a no-op.
func (c *Coin) AddPair(p *TradePair) {
	for _, known := range c.pairs {
		if known == p {
			return
		}
	}
	c.pairs = append(c.pairs, p)
}

// Pairs returns the pairs this coin participates in.
func (c *Coin) Pairs() []*TradePair {
	return c.pairs
}

func (c *Coin) String() string {
	return c.Currency().String()
}
