package payment

import "agrirent/internal/domain"

type CheckoutResponse struct {
	Payment     *domain.Payment `json:"payment"`
	RedirectURL string          `json:"redirect_url"`
}

// webhookEvent is the subset of a Razorpay webhook body we act on.
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Amount           int64  `json:"amount"`
				Status           string `json:"status"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity struct {
				ID         string `json:"id"`
				Receipt    string `json:"receipt"`
				AmountPaid int64  `json:"amount_paid"`
				Status     string `json:"status"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}
