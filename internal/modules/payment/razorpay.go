package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"

	"agrirent/internal/config"
)

// RazorpayGate opens Razorpay orders and reads their status back. The
// reference travels as the order receipt.
type RazorpayGate struct {
	client      *razorpay.Client
	keyID       string
	currency    string
	checkoutURL string
	timeout     time.Duration
}

func NewRazorpayGate(cfg config.PaymentConfig) *RazorpayGate {
	return &RazorpayGate{
		client:      razorpay.NewClient(cfg.KeyID, cfg.KeySecret),
		keyID:       cfg.KeyID,
		currency:    cfg.Currency,
		checkoutURL: cfg.CheckoutURL,
		timeout:     cfg.Timeout,
	}
}

func (g *RazorpayGate) Initialize(ctx context.Context, amount int64, reference string) (Initialization, error) {
	order, err := g.call(ctx, func() (map[string]interface{}, error) {
		return g.client.Order.Create(map[string]interface{}{
			"amount":          amount,
			"currency":        g.currency,
			"receipt":         reference,
			"payment_capture": 1,
		}, nil)
	})
	if err != nil {
		return Initialization{}, err
	}

	orderID, _ := order["id"].(string)
	if orderID == "" {
		return Initialization{}, fmt.Errorf("%w: order response without id", ErrGatewayUnavailable)
	}

	q := url.Values{}
	q.Set("key", g.keyID)
	q.Set("order_id", orderID)
	return Initialization{
		RedirectURL:     g.checkoutURL + "?" + q.Encode(),
		ProviderOrderID: orderID,
	}, nil
}

func (g *RazorpayGate) Verify(ctx context.Context, reference string) (Verification, error) {
	res, err := g.call(ctx, func() (map[string]interface{}, error) {
		return g.client.Order.All(map[string]interface{}{"receipt": reference}, nil)
	})
	if err != nil {
		return Verification{}, err
	}

	items, _ := res["items"].([]interface{})
	for _, item := range items {
		order, ok := item.(map[string]interface{})
		if !ok || order["status"] != "paid" {
			continue
		}
		return Verification{Paid: true, Amount: toInt64(order["amount_paid"])}, nil
	}
	return Verification{Pending: true}, nil
}

// VerifySignature checks the X-Razorpay-Signature of a webhook body.
func VerifySignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return utils.VerifyWebhookSignature(string(body), signature, secret)
}

// call runs a blocking SDK request under the gate's deadline. The SDK takes no
// context, so an abandoned request finishes in the background.
func (g *RazorpayGate) call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		res map[string]interface{}
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := fn()
		done <- result{res, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, r.err)
		}
		return r.res, nil
	}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	}
	return 0
}
