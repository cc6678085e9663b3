// Package bybit adapts the Bybit V5 spot API to the exchange.Adapter
// capability.
package bybit

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/looper/internal/entity"
	"github.com/vadiminshakov/looper/internal/exchange"
)

const Name = "bybit"

type Adapter struct {
	client *bybit.Client
}

func New(apiKey, apiSecret string) *Adapter {
	client := bybit.NewClient().WithAuth(apiKey, apiSecret)
	return &Adapter{client: client}
}

func (a *Adapter) Name() string {
	return Name
}

func (a *Adapter) Pairs(ctx context.Context) ([]exchange.PairInfo, error) {
	res, err := a.client.V5().Market().GetInstrumentsInfo(bybit.V5GetInstrumentsInfoParam{
		Category: bybit.CategoryV5Spot,
	})
	if err != nil {
		return nil, classify(err, "fetch instruments")
	}

	pairs := make([]exchange.PairInfo, 0, len(res.Result.Spot.List))
	for _, item := range res.Result.Spot.List {
		if string(item.Status) != "Trading" {
			continue
		}
		p := exchange.PairInfo{
			Symbol: string(item.Symbol),
			Base:   string(item.BaseCoin),
			Quote:  string(item.QuoteCoin),
		}
		p.MinAmount, _ = decimal.NewFromString(item.LotSizeFilter.MinOrderQty)
		pairs = append(pairs, p)
	}
	return pairs, nil
}

func (a *Adapter) Depth(ctx context.Context, symbol string, limit int) (*exchange.Depth, error) {
	sym := bybit.SymbolV5(symbol)
	res, err := a.client.V5().Market().GetOrderbook(bybit.V5GetOrderbookParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   sym,
		Limit:    &limit,
	})
	if err != nil {
		return nil, classify(err, "fetch orderbook for "+symbol)
	}

	depth := &exchange.Depth{
		Bids: make([]entity.Offer, 0, len(res.Result.Bids)),
		Asks: make([]entity.Offer, 0, len(res.Result.Asks)),
	}
	for _, b := range res.Result.Bids {
		offer, err := parseOffer(b.Price, b.Quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "bid of %s", symbol)
		}
		depth.Bids = append(depth.Bids, offer)
	}
	for _, ask := range res.Result.Asks {
		offer, err := parseOffer(ask.Price, ask.Quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "ask of %s", symbol)
		}
		depth.Asks = append(depth.Asks, offer)
	}
	return depth, nil
}

func (a *Adapter) Balances(ctx context.Context) ([]exchange.AccountBalance, error) {
	res, err := a.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
	if err != nil {
		return nil, classify(err, "fetch wallet balance")
	}
	if len(res.Result.List) == 0 {
		return nil, nil
	}

	var balances []exchange.AccountBalance
	for _, coin := range res.Result.List[0].Coin {
		total, err := decimal.NewFromString(coin.WalletBalance)
		if err != nil {
			return nil, errors.Wrapf(err, "parse balance of %s", coin.Coin)
		}
		locked := decimal.Zero
		if coin.Locked != "" {
			locked, err = decimal.NewFromString(coin.Locked)
			if err != nil {
				return nil, errors.Wrapf(err, "parse locked balance of %s", coin.Coin)
			}
		}
		if total.IsZero() {
			continue
		}
		balances = append(balances, exchange.AccountBalance{
			Coin:  string(coin.Coin),
			Total: total,
			Held:  locked,
		})
	}
	return balances, nil
}

func (a *Adapter) OpenOrders(ctx context.Context) ([]exchange.OrderData, error) {
	res, err := a.client.V5().Order().GetOpenOrders(bybit.V5GetOpenOrdersParam{
		Category: bybit.CategoryV5Spot,
	})
	if err != nil {
		return nil, classify(err, "fetch open orders")
	}

	orders := make([]exchange.OrderData, 0, len(res.Result.List))
	for _, o := range res.Result.List {
		price, err := decimal.NewFromString(o.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "parse price of order %s", o.OrderID)
		}
		amount, err := decimal.NewFromString(o.Qty)
		if err != nil {
			return nil, errors.Wrapf(err, "parse quantity of order %s", o.OrderID)
		}
		remaining, err := decimal.NewFromString(o.LeavesQty)
		if err != nil {
			return nil, errors.Wrapf(err, "parse leaves quantity of order %s", o.OrderID)
		}

		orders = append(orders, exchange.OrderData{
			ID:        o.OrderID,
			Symbol:    string(o.Symbol),
			Side:      sideFromBybit(o.Side),
			Price:     price,
			Amount:    amount,
			Remaining: remaining,
			CreatedAt: msTime(o.CreatedTime),
			UpdatedAt: msTime(o.UpdatedTime),
		})
	}
	return orders, nil
}

func (a *Adapter) TradeHistory(ctx context.Context, symbol string, begin, end time.Time) ([]exchange.Fill, error) {
	sym := bybit.SymbolV5(symbol)
	startMs := int(begin.UnixMilli())
	endMs := int(end.UnixMilli())
	res, err := a.client.V5().Execution().GetExecutionList(bybit.V5GetExecutionParam{
		Category:  bybit.CategoryV5Spot,
		Symbol:    &sym,
		StartTime: &startMs,
		EndTime:   &endMs,
	})
	if err != nil {
		return nil, classify(err, "fetch executions for "+symbol)
	}

	fills := make([]exchange.Fill, 0, len(res.Result.List))
	for _, e := range res.Result.List {
		price, err := decimal.NewFromString(e.ExecPrice)
		if err != nil {
			return nil, errors.Wrapf(err, "parse price of execution %s", e.ExecID)
		}
		amount, err := decimal.NewFromString(e.ExecQty)
		if err != nil {
			return nil, errors.Wrapf(err, "parse quantity of execution %s", e.ExecID)
		}
		fee := decimal.Zero
		if e.ExecFee != "" {
			fee, err = decimal.NewFromString(e.ExecFee)
			if err != nil {
				return nil, errors.Wrapf(err, "parse fee of execution %s", e.ExecID)
			}
		}

		fills = append(fills, exchange.Fill{
			TradeID:    e.ExecID,
			OrderID:    e.OrderID,
			Symbol:     string(e.Symbol),
			Side:       sideFromBybit(e.Side),
			Price:      price,
			Amount:     amount,
			Commission: fee,
			Time:       msTime(e.ExecTime),
		})
	}
	return fills, nil
}

func (a *Adapter) Transfers(ctx context.Context, begin, end time.Time) ([]exchange.TransferData, error) {
	startMs := begin.UnixMilli()
	endMs := end.UnixMilli()

	deposits, err := a.client.V5().Asset().GetDepositRecords(bybit.V5GetDepositRecordsParam{
		StartTime: &startMs,
		EndTime:   &endMs,
	})
	if err != nil {
		return nil, classify(err, "fetch deposits")
	}
	withdrawals, err := a.client.V5().Asset().GetWithdrawalRecords(bybit.V5GetWithdrawalRecordsParam{
		StartTime: &startMs,
		EndTime:   &endMs,
	})
	if err != nil {
		return nil, classify(err, "fetch withdrawals")
	}

	var transfers []exchange.TransferData
	for _, d := range deposits.Result.Rows {
		amount, err := decimal.NewFromString(d.Amount)
		if err != nil {
			return nil, errors.Wrapf(err, "parse deposit amount of %s", d.TxID)
		}
		transfers = append(transfers, exchange.TransferData{
			ID:        "dep-" + d.TxID,
			Direction: entity.TransferDeposit,
			Coin:      string(d.Coin),
			Amount:    amount,
			Time:      msTime(d.SuccessAt),
			Status:    depositStatus(int(d.Status)),
		})
	}
	for _, w := range withdrawals.Result.Rows {
		amount, err := decimal.NewFromString(w.Amount)
		if err != nil {
			return nil, errors.Wrapf(err, "parse withdrawal amount of %s", w.WithdrawID)
		}
		transfers = append(transfers, exchange.TransferData{
			ID:        "wd-" + w.WithdrawID,
			Direction: entity.TransferWithdrawal,
			Coin:      string(w.Coin),
			Amount:    amount,
			Time:      msTime(w.CreatedTime),
			Status:    withdrawStatus(string(w.Status)),
		})
	}
	return transfers, nil
}

func (a *Adapter) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	side := bybit.SideBuy
	if req.Side == entity.SideSell {
		side = bybit.SideSell
	}
	price := req.Price.String()

	res, err := a.client.V5().Order().CreateOrder(bybit.V5CreateOrderParam{
		Category:    bybit.CategoryV5Spot,
		Symbol:      bybit.SymbolV5(req.Symbol),
		Side:        side,
		OrderType:   bybit.OrderTypeLimit,
		Qty:         req.Amount.String(),
		Price:       &price,
		OrderLinkID: &req.ClientOrderID,
	})
	if err != nil {
		return nil, classify(err, "submit order for "+req.Symbol)
	}

	// bybit reports fills only through the execution history, so the result
	// carries no immediate fills.
	return &exchange.OrderResult{
		OrderID:   res.Result.OrderID,
		Remaining: req.Amount,
	}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_, err := a.client.V5().Order().CancelOrder(bybit.V5CancelOrderParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   bybit.SymbolV5(symbol),
		OrderID:  &orderID,
	})
	if err != nil {
		return classify(err, "cancel order "+orderID)
	}
	return nil
}

func parseOffer(price, volume string) (entity.Offer, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return entity.Offer{}, errors.Wrap(err, "parse price")
	}
	v, err := decimal.NewFromString(volume)
	if err != nil {
		return entity.Offer{}, errors.Wrap(err, "parse volume")
	}
	return entity.Offer{Price: p, Volume: v}, nil
}

func sideFromBybit(s bybit.Side) entity.Side {
	if s == bybit.SideBuy {
		return entity.SideBuy
	}
	return entity.SideSell
}

func msTime(ms string) time.Time {
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n)
}

func depositStatus(status int) entity.TransferStatus {
	switch status {
	case 0, 1, 2:
		return entity.TransferStatusPending
	case 3:
		return entity.TransferStatusComplete
	case 4:
		return entity.TransferStatusCancelled
	default:
		return entity.TransferStatusUnknown
	}
}

func withdrawStatus(status string) entity.TransferStatus {
	switch strings.ToLower(status) {
	case "securitycheck", "pending", "blockchainconfirmed":
		return entity.TransferStatusPending
	case "success":
		return entity.TransferStatusComplete
	case "cancelbyuser", "reject", "fail":
		return entity.TransferStatusCancelled
	default:
		return entity.TransferStatusUnknown
	}
}

// classify wraps venue errors with the failure-class sentinels the sync loop
// understands. The bybit SDK surfaces ret codes in the error text, so the
// auth codes are matched there.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "10003") || strings.Contains(msg, "10004") || strings.Contains(msg, "33004"):
		// invalid, expired or unauthorized API key
		return errors.Wrapf(exchange.ErrAccessDenied, "bybit: %s: %v", op, err)
	case strings.Contains(msg, "10006") || strings.Contains(msg, "10018"):
		// rate limit
		return errors.Wrapf(exchange.ErrTransient, "bybit: %s: %v", op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Wrapf(exchange.ErrTransient, "bybit: %s: %v", op, err)
	}
	return errors.Wrapf(err, "bybit: %s", op)
}
