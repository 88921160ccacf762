package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/aman-zulfiqar/solana-amm-client/internal/amm"
	"github.com/aman-zulfiqar/solana-amm-client/internal/flags"
	"github.com/aman-zulfiqar/solana-amm-client/internal/ledger"
	"github.com/aman-zulfiqar/solana-amm-client/internal/rpc"
	"github.com/aman-zulfiqar/solana-amm-client/internal/swapengine"
	"github.com/labstack/echo/v4"
)

// JSONErrorHandler returns an HTTP error handler that always answers with
// an ErrorResponse body.
func JSONErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, ErrorResponse{
				Error: http.StatusText(he.Code),
				Code:  he.Code,
			})
			return
		}

		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		})
	}
}

// statusFor maps a backend error to an HTTP status and a client-facing message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, swapengine.ErrInvalidIntent):
		return http.StatusBadRequest, "invalid swap request"
	case errors.Is(err, swapengine.ErrSwapRejected):
		return http.StatusBadRequest, "transaction not signed by holder"
	case errors.Is(err, amm.ErrPoolNotFound):
		return http.StatusNotFound, "no pool for token pair"
	case errors.Is(err, flags.ErrNotFound):
		return http.StatusNotFound, "flag not found"
	case errors.Is(err, swapengine.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient token balance"
	case errors.Is(err, swapengine.ErrInsufficientFeeReserve):
		return http.StatusUnprocessableEntity, "insufficient balance for fees"
	case errors.Is(err, amm.ErrPricingOverflow):
		return http.StatusUnprocessableEntity, "pricing overflow"
	case errors.Is(err, flags.ErrInvalidKey):
		return http.StatusBadRequest, "invalid flag key"
	case errors.Is(err, swapengine.ErrSubmissionFailed):
		return http.StatusUnprocessableEntity, "swap failed"
	case errors.Is(err, swapengine.ErrTradingHalted):
		return http.StatusLocked, "trading is halted"
	case errors.Is(err, swapengine.ErrConfirmationUnknown):
		return http.StatusAccepted, "swap submitted, confirmation unknown"
	case errors.Is(err, swapengine.ErrNotConfigured):
		return http.StatusNotImplemented, "feature not configured"
	case errors.Is(err, ledger.ErrGatewayUnavailable), errors.Is(err, rpc.ErrUnavailable):
		return http.StatusServiceUnavailable, "ledger unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
