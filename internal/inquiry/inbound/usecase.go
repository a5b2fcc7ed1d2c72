package inbound

import (
	"context"

	"github.com/shandysiswandi/contactrelay/internal/inquiry/usecase"
)

type uc interface {
	SendInquiry(ctx context.Context, in usecase.SendInquiryInput) (*usecase.SendInquiryOutput, error)
}
