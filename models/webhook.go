package models

// WebhookEvent is the Lemon Squeezy webhook envelope. Only the fields this
// service reads are modeled; the full payload is snapshotted raw on the order.
type WebhookEvent struct {
	Meta struct {
		EventName  string         `json:"event_name"`
		CustomData map[string]any `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Identifier string `json:"identifier"`
			UserEmail  string `json:"user_email"`
			Status     string `json:"status"`
			Total      int64  `json:"total"`
		} `json:"attributes"`
	} `json:"data"`
}

// PayloadProductID returns the catalog product id attached as custom data at
// checkout creation time, or "" when absent.
func (e *WebhookEvent) PayloadProductID() string {
	if e.Meta.CustomData == nil {
		return ""
	}
	if v, ok := e.Meta.CustomData["payloadProductId"].(string); ok {
		return v
	}
	return ""
}
