package models

type CreateCheckoutRequest struct {
	ProductID string `json:"productId"`
	Email     string `json:"email"`
}

type CreateCheckoutResponse struct {
	Success     bool   `json:"success"`
	CheckoutURL string `json:"checkoutUrl"`
	CheckoutID  string `json:"checkoutId"`
}
