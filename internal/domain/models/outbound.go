package models

// OutboundMessageRequest is a notification pushed to an operator.
type OutboundMessageRequest struct {
	To         string `json:"to"`
	Message    string `json:"message" binding:"required"`
	PreviewURL bool   `json:"preview_url"`
}
