package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"perp-engine/internal/config"
	"perp-engine/pkg/types"
)

// Client is the venue's REST order client. It implements execution.Venue.
// Every mutating call is rate-limited, circuit-broken, and signed; when
// DryRun is set it short-circuits into the deterministic paper-trading
// simulation instead of making an HTTP call.
type Client struct {
	http          *resty.Client
	auth          *Auth
	rl            *RateLimiter
	orderBreaker  *gobreaker.CircuitBreaker[types.Order]
	cancelBreaker *gobreaker.CircuitBreaker[struct{}]
	logger        *slog.Logger

	dryRun             bool
	paperIOCFillRate   float64
	paperLimitFillRate float64

	paperMu     sync.Mutex
	paperOrders map[string]types.Order
	paperNextID int64
}

// NewClient builds a REST order client from configuration.
func NewClient(cfg config.Config, auth *Auth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.Venue.RESTBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:               httpClient,
		auth:               auth,
		rl:                 NewRateLimiter(cfg.Venue.RateLimitPerSec, cfg.Venue.RateLimitBurst),
		orderBreaker:       newOrderBreaker(cfg.Venue.BreakerMaxFails, cfg.Venue.BreakerCooldown),
		cancelBreaker:      newCancelBreaker(cfg.Venue.BreakerMaxFails, cfg.Venue.BreakerCooldown),
		logger:             logger,
		dryRun:             cfg.DryRun,
		paperIOCFillRate:   orDefault(cfg.Venue.PaperIOCFillRate, 0.95),
		paperLimitFillRate: orDefault(cfg.Venue.PaperLimitFillRate, 0.70),
		paperOrders:        make(map[string]types.Order),
	}
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// PlaceOrder submits order to the venue, or simulates it deterministically
// in paper-trading mode.
func (c *Client) PlaceOrder(ctx context.Context, order types.Order) (types.Order, error) {
	if c.dryRun {
		return c.simulatePlace(order), nil
	}

	if err := c.rl.Order.Wait(ctx); err != nil {
		return types.Order{}, fmt.Errorf("rate limit wait: %w", err)
	}

	nonce := time.Now().UnixNano()
	sideStr := order.Side.String()
	priceStr := order.Price.String()
	sizeStr := order.Size.String()

	sig, err := c.auth.SignOrderAction(order.Symbol, sideStr, sizeStr, priceStr, nonce)
	if err != nil {
		return types.Order{}, fmt.Errorf("sign order: %w", err)
	}

	req := orderRequest{
		Symbol:    order.Symbol,
		Side:      sideStr,
		Type:      order.Type.String(),
		Price:     priceStr,
		Size:      sizeStr,
		PostOnly:  order.PostOnly,
		Nonce:     nonce,
		Signature: sig,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return types.Order{}, fmt.Errorf("marshal order: %w", err)
	}
	headers := c.auth.HMACHeaders(http.MethodPost, "/orders", string(body))

	return c.orderBreaker.Execute(func() (types.Order, error) {
		var resp orderResponseDTO
		r, err := c.http.R().
			SetContext(ctx).
			SetHeaders(headers).
			SetBody(req).
			SetResult(&resp).
			Post("/orders")
		if err != nil {
			return types.Order{}, fmt.Errorf("place order: %w", err)
		}
		if r.StatusCode() != http.StatusOK {
			return types.Order{}, fmt.Errorf("place order: status %d: %s", r.StatusCode(), r.String())
		}
		return parseOrderResponse(order, resp), nil
	})
}

// parseOrderResponse maps the venue's nested status shape onto the
// submitted order, producing a terminal Status the executors can branch
// on directly.
func parseOrderResponse(submitted types.Order, resp orderResponseDTO) types.Order {
	out := submitted
	out.ID = resp.ID

	if len(resp.Data.Statuses) == 0 {
		out.Status = types.PENDING
		return out
	}

	entry := resp.Data.Statuses[0]
	switch {
	case entry.Error != nil:
		out.Status = types.REJECTED
		out.Error = *entry.Error
	case entry.Filled != nil:
		out.Status = types.FILLED
		filledSize, _ := decimal.NewFromString(entry.Filled.Size)
		out.FilledSize = filledSize
		price := submitted.Price
		out.AvgFillPrice = &price
	case entry.Resting != nil:
		out.Status = types.PENDING
		out.ID = entry.Resting.OID
	default:
		out.Status = types.PENDING
	}
	return out
}

// QueryOrder polls the venue for an order's current state.
func (c *Client) QueryOrder(ctx context.Context, orderID string) (types.Order, error) {
	if c.dryRun {
		c.paperMu.Lock()
		defer c.paperMu.Unlock()
		order, ok := c.paperOrders[orderID]
		if !ok {
			return types.Order{}, fmt.Errorf("unknown paper order: %s", orderID)
		}
		return order, nil
	}

	if err := c.rl.Book.Wait(ctx); err != nil {
		return types.Order{}, fmt.Errorf("rate limit wait: %w", err)
	}

	return c.orderBreaker.Execute(func() (types.Order, error) {
		var resp orderStatusDTO
		r, err := c.http.R().
			SetContext(ctx).
			SetResult(&resp).
			Get("/orders/" + orderID)
		if err != nil {
			return types.Order{}, fmt.Errorf("query order: %w", err)
		}
		if r.StatusCode() != http.StatusOK {
			return types.Order{}, fmt.Errorf("query order: status %d: %s", r.StatusCode(), r.String())
		}
		return parseOrderStatus(resp), nil
	})
}

func parseOrderStatus(resp orderStatusDTO) types.Order {
	out := types.Order{ID: resp.ID}
	switch resp.Status {
	case "filled":
		out.Status = types.FILLED
	case "partial_filled":
		out.Status = types.PARTIAL_FILLED
	case "cancelled":
		out.Status = types.CANCELLED
	case "rejected":
		out.Status = types.REJECTED
	default:
		out.Status = types.PENDING
	}
	if resp.FilledSize != "" {
		size, _ := decimal.NewFromString(resp.FilledSize)
		out.FilledSize = size
	}
	if resp.AvgFillPrice != nil {
		price, _ := decimal.NewFromString(*resp.AvgFillPrice)
		out.AvgFillPrice = &price
	}
	return out
}

// CancelOrder cancels a resting order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if c.dryRun {
		c.paperMu.Lock()
		defer c.paperMu.Unlock()
		if order, ok := c.paperOrders[orderID]; ok {
			order.Status = types.CANCELLED
			c.paperOrders[orderID] = order
		}
		return nil
	}

	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	headers := c.auth.HMACHeaders(http.MethodDelete, "/orders/"+orderID, "")

	_, err := c.cancelBreaker.Execute(func() (struct{}, error) {
		r, err := c.http.R().
			SetContext(ctx).
			SetHeaders(headers).
			Delete("/orders/" + orderID)
		if err != nil {
			return struct{}{}, fmt.Errorf("cancel order: %w", err)
		}
		if r.StatusCode() != http.StatusOK {
			return struct{}{}, fmt.Errorf("cancel order: status %d: %s", r.StatusCode(), r.String())
		}
		return struct{}{}, nil
	})
	return err
}

// simulatePlace draws a deterministic fill decision keyed on order type
// (IOC ~95% fill, LIMIT ~70% fill) per the venue's paper-trading contract,
// and remembers the result for subsequent QueryOrder/CancelOrder calls.
func (c *Client) simulatePlace(order types.Order) types.Order {
	fillRate := c.paperIOCFillRate
	if order.Type == types.LIMIT {
		fillRate = c.paperLimitFillRate
	}

	out := order
	out.ID = c.nextPaperID()

	// The n-th paper order fills when ceil(n*fillRate) advances, so the
	// outcome depends only on the order sequence and the fill share over
	// any run of orders tracks fillRate.
	seq, _ := strconv.ParseInt(strings.TrimPrefix(out.ID, "paper-"), 10, 64)
	if math.Ceil(float64(seq)*fillRate) > math.Ceil(float64(seq-1)*fillRate) {
		out.Status = types.FILLED
		out.FilledSize = order.Size
		price := order.Price
		out.AvgFillPrice = &price
	} else if order.Type == types.IOC {
		out.Status = types.CANCELLED
	} else {
		out.Status = types.PENDING
	}

	c.logger.Info("paper trading order simulated",
		"order_id", out.ID, "symbol", order.Symbol, "type", order.Type.String(), "status", out.Status.String())

	c.paperMu.Lock()
	c.paperOrders[out.ID] = out
	c.paperMu.Unlock()

	return out
}

func (c *Client) nextPaperID() string {
	c.paperMu.Lock()
	defer c.paperMu.Unlock()
	c.paperNextID++
	return "paper-" + strconv.FormatInt(c.paperNextID, 10)
}
