package inbound

import (
	"github.com/shandysiswandi/contactrelay/internal/inquiry/usecase"
	"github.com/shandysiswandi/contactrelay/internal/pkg/router"
)

type HTTPEndpoint struct {
	uc uc
}

// SendEmail relays a contact-form inquiry to the site mailbox.
// @Summary Send inquiry
// @Description Validates the inquiry and relays it as an email. The call waits for the relay.
// @Tags Inquiry
// @Accept json
// @Produce json
// @Param request body SendEmailRequest true "Inquiry payload"
// @Success 200 {object} SendEmailResponse "Email sent"
// @Failure 400 {object} router.errorResponse "Missing required fields or invalid body"
// @Failure 500 {object} router.errorResponse "Relay failure"
// @Router /api/send-email [post]
func (h *HTTPEndpoint) SendEmail(r *router.Request) (any, error) {
	var req SendEmailRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	out, err := h.uc.SendInquiry(r.Context(), usecase.SendInquiryInput{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Service: req.Service,
		Message: req.Message,
	})
	if err != nil {
		return nil, err
	}

	return SendEmailResponse{
		Success:   true,
		Message:   out.Message,
		MessageID: out.MessageID,
		ID:        out.MessageID,
	}, nil
}
