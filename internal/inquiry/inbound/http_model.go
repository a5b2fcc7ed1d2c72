package inbound

type SendEmailRequest struct {
	Name    string `json:"name" example:"Jane Doe"`
	Email   string `json:"email" example:"jane@example.com"`
	Phone   string `json:"phone,omitempty" example:"+1 555 0100"`
	Service string `json:"service,omitempty" example:"SEO"`
	Message string `json:"message" example:"I would like a quote."`
}

type SendEmailResponse struct {
	Success   bool   `json:"success" example:"true"`
	Message   string `json:"message" example:"Email sent successfully"`
	MessageID string `json:"messageId" example:"<0190f0e1-7d1c-7c4a-9b0a-1d2e3f405162@example.com>"`
	ID        string `json:"id" example:"<0190f0e1-7d1c-7c4a-9b0a-1d2e3f405162@example.com>"`
}
