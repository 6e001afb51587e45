package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/levy/internal/auth/domain"
	"github.com/smallbiznis/levy/internal/authorization"
)

var ErrReceiptUnavailable = errors.New("receipt_unavailable")

// Receipt is a rendered PDF ready to be streamed to the caller.
type Receipt struct {
	FileName string
	Content  []byte
}

type Service interface {
	Render(ctx context.Context, principal authdomain.Principal, scope authorization.Scope, paymentID snowflake.ID) (*Receipt, error)
}
