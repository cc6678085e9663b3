// Package binance adapts the Binance spot API to the exchange.Adapter
// capability.
package binance

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/looper/internal/entity"
	"github.com/vadiminshakov/looper/internal/exchange"
)

const Name = "binance"

type Adapter struct {
	client *binance.Client
}

func New(apiKey, apiSecret string) *Adapter {
	return &Adapter{client: binance.NewClient(apiKey, apiSecret)}
}

func (a *Adapter) Name() string {
	return Name
}

func (a *Adapter) Pairs(ctx context.Context) ([]exchange.PairInfo, error) {
	info, err := a.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, classify(err, "fetch exchange info")
	}

	pairs := make([]exchange.PairInfo, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		p := exchange.PairInfo{
			Symbol: s.Symbol,
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
		}
		if f := s.LotSizeFilter(); f != nil {
			p.MinAmount, _ = decimal.NewFromString(f.MinQuantity)
		}
		if f := s.PriceFilter(); f != nil {
			p.MinPrice, _ = decimal.NewFromString(f.MinPrice)
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

func (a *Adapter) Depth(ctx context.Context, symbol string, limit int) (*exchange.Depth, error) {
	res, err := a.client.NewDepthService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		return nil, classify(err, "fetch depth for "+symbol)
	}

	depth := &exchange.Depth{
		Bids: make([]entity.Offer, 0, len(res.Bids)),
		Asks: make([]entity.Offer, 0, len(res.Asks)),
	}
	for _, b := range res.Bids {
		offer, err := parseOffer(b.Price, b.Quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "bid of %s", symbol)
		}
		depth.Bids = append(depth.Bids, offer)
	}
	for _, ask := range res.Asks {
		offer, err := parseOffer(ask.Price, ask.Quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "ask of %s", symbol)
		}
		depth.Asks = append(depth.Asks, offer)
	}
	return depth, nil
}

func (a *Adapter) Balances(ctx context.Context) ([]exchange.AccountBalance, error) {
	account, err := a.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, classify(err, "fetch account")
	}

	balances := make([]exchange.AccountBalance, 0, len(account.Balances))
	for _, b := range account.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return nil, errors.Wrapf(err, "parse free balance of %s", b.Asset)
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			return nil, errors.Wrapf(err, "parse locked balance of %s", b.Asset)
		}
		if free.IsZero() && locked.IsZero() {
			continue
		}
		balances = append(balances, exchange.AccountBalance{
			Coin:  b.Asset,
			Total: free.Add(locked),
			Held:  locked,
		})
	}
	return balances, nil
}

func (a *Adapter) OpenOrders(ctx context.Context) ([]exchange.OrderData, error) {
	raw, err := a.client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, classify(err, "fetch open orders")
	}

	orders := make([]exchange.OrderData, 0, len(raw))
	for _, o := range raw {
		price, err := decimal.NewFromString(o.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "parse price of order %d", o.OrderID)
		}
		amount, err := decimal.NewFromString(o.OrigQuantity)
		if err != nil {
			return nil, errors.Wrapf(err, "parse quantity of order %d", o.OrderID)
		}
		executed, err := decimal.NewFromString(o.ExecutedQuantity)
		if err != nil {
			return nil, errors.Wrapf(err, "parse executed quantity of order %d", o.OrderID)
		}

		orders = append(orders, exchange.OrderData{
			ID:        strconv.FormatInt(o.OrderID, 10),
			Symbol:    o.Symbol,
			Side:      sideFromBinance(o.Side),
			Price:     price,
			Amount:    amount,
			Remaining: amount.Sub(executed),
			CreatedAt: time.UnixMilli(o.Time),
			UpdatedAt: time.UnixMilli(o.UpdateTime),
		})
	}
	return orders, nil
}

func (a *Adapter) TradeHistory(ctx context.Context, symbol string, begin, end time.Time) ([]exchange.Fill, error) {
	raw, err := a.client.NewListTradesService().
		Symbol(symbol).
		StartTime(begin.UnixMilli()).
		EndTime(end.UnixMilli()).
		Do(ctx)
	if err != nil {
		return nil, classify(err, "fetch trades for "+symbol)
	}

	fills := make([]exchange.Fill, 0, len(raw))
	for _, t := range raw {
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "parse price of trade %d", t.ID)
		}
		amount, err := decimal.NewFromString(t.Quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "parse quantity of trade %d", t.ID)
		}
		commission, err := decimal.NewFromString(t.Commission)
		if err != nil {
			return nil, errors.Wrapf(err, "parse commission of trade %d", t.ID)
		}

		side := entity.SideSell
		if t.IsBuyer {
			side = entity.SideBuy
		}
		fills = append(fills, exchange.Fill{
			TradeID:    strconv.FormatInt(t.ID, 10),
			OrderID:    strconv.FormatInt(t.OrderID, 10),
			Symbol:     t.Symbol,
			Side:       side,
			Price:      price,
			Amount:     amount,
			Commission: commission,
			Time:       time.UnixMilli(t.Time),
		})
	}
	return fills, nil
}

func (a *Adapter) Transfers(ctx context.Context, begin, end time.Time) ([]exchange.TransferData, error) {
	deposits, err := a.client.NewListDepositsService().
		StartTime(begin.UnixMilli()).
		EndTime(end.UnixMilli()).
		Do(ctx)
	if err != nil {
		return nil, classify(err, "fetch deposits")
	}
	withdrawals, err := a.client.NewListWithdrawsService().
		StartTime(begin.UnixMilli()).
		EndTime(end.UnixMilli()).
		Do(ctx)
	if err != nil {
		return nil, classify(err, "fetch withdrawals")
	}

	transfers := make([]exchange.TransferData, 0, len(deposits)+len(withdrawals))
	for _, d := range deposits {
		amount, err := decimal.NewFromString(d.Amount)
		if err != nil {
			return nil, errors.Wrapf(err, "parse deposit amount of %s", d.TxID)
		}
		transfers = append(transfers, exchange.TransferData{
			ID:        "dep-" + d.TxID,
			Direction: entity.TransferDeposit,
			Coin:      d.Coin,
			Amount:    amount,
			Time:      time.UnixMilli(d.InsertTime),
			Status:    depositStatus(d.Status),
		})
	}
	for _, w := range withdrawals {
		amount, err := decimal.NewFromString(w.Amount)
		if err != nil {
			return nil, errors.Wrapf(err, "parse withdrawal amount of %s", w.ID)
		}
		applied, _ := time.Parse("2006-01-02 15:04:05", w.ApplyTime)
		transfers = append(transfers, exchange.TransferData{
			ID:        "wd-" + w.ID,
			Direction: entity.TransferWithdrawal,
			Coin:      w.Coin,
			Amount:    amount,
			Time:      applied,
			Status:    withdrawStatus(w.Status),
		})
	}
	return transfers, nil
}

func (a *Adapter) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	side := binance.SideTypeBuy
	if req.Side == entity.SideSell {
		side = binance.SideTypeSell
	}

	res, err := a.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(req.Amount.String()).
		Price(req.Price.String()).
		NewClientOrderID(req.ClientOrderID).
		Do(ctx)
	if err != nil {
		return nil, classify(err, "submit order for "+req.Symbol)
	}

	executed, err := decimal.NewFromString(res.ExecutedQuantity)
	if err != nil {
		return nil, errors.Wrap(err, "parse executed quantity")
	}

	result := &exchange.OrderResult{
		OrderID:   strconv.FormatInt(res.OrderID, 10),
		Remaining: req.Amount.Sub(executed),
	}
	for i, f := range res.Fills {
		price, err := decimal.NewFromString(f.Price)
		if err != nil {
			return nil, errors.Wrap(err, "parse fill price")
		}
		amount, err := decimal.NewFromString(f.Quantity)
		if err != nil {
			return nil, errors.Wrap(err, "parse fill quantity")
		}
		commission, err := decimal.NewFromString(f.Commission)
		if err != nil {
			return nil, errors.Wrap(err, "parse fill commission")
		}
		result.Fills = append(result.Fills, exchange.Fill{
			TradeID:    strconv.FormatInt(res.OrderID, 10) + "-" + strconv.Itoa(i),
			OrderID:    result.OrderID,
			Symbol:     req.Symbol,
			Side:       req.Side,
			Price:      price,
			Amount:     amount,
			Commission: commission,
			Time:       time.UnixMilli(res.TransactTime),
		})
	}
	return result, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid binance order id %q", orderID)
	}
	if _, err := a.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx); err != nil {
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

func sideFromBinance(s binance.SideType) entity.Side {
	if s == binance.SideTypeBuy {
		return entity.SideBuy
	}
	return entity.SideSell
}

func depositStatus(status int) entity.TransferStatus {
	switch status {
	case 0:
		return entity.TransferStatusPending
	case 1, 6:
		return entity.TransferStatusComplete
	default:
		return entity.TransferStatusUnknown
	}
}

func withdrawStatus(status int) entity.TransferStatus {
	switch status {
	case 0, 2, 4:
		return entity.TransferStatusPending
	case 1, 3:
		return entity.TransferStatusCancelled
	case 6:
		return entity.TransferStatusComplete
	default:
		return entity.TransferStatusUnknown
	}
}

// classify wraps venue errors with the failure-class sentinels the sync loop
// understands.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -2014, -2015: // bad or expired API key
			return errors.Wrapf(exchange.ErrAccessDenied, "binance: %s: %s", op, apiErr.Message)
		case -1003, -1015: // request weight or order rate exceeded
			return errors.Wrapf(exchange.ErrTransient, "binance: %s: %s", op, apiErr.Message)
		}
		return errors.Wrapf(err, "binance: %s", op)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Wrapf(exchange.ErrTransient, "binance: %s: %v", op, err)
	}
	return errors.Wrapf(err, "binance: %s", op)
}
