package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"X402Chat/internal/domain/models"
	"X402Chat/internal/domain/service"
	"X402Chat/internal/service/metrics"
	"X402Chat/internal/service/solana"
	"X402Chat/internal/usecase"
	xhttp "X402Chat/pkg/http"
	xlogger "X402Chat/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RateStatus exposes the caller's remaining quota for response headers.
type RateStatus interface {
	Status(ctx context.Context, wallet string) (remaining int64, reset time.Time, err error)
	Limit() int64
}

// UsageCounter counts paid messages recorded for a wallet.
type UsageCounter interface {
	CountByWallet(ctx context.Context, wallet string, since time.Time) (int64, error)
}

type ChatOption func(*ChatEchoHandler)

// WithUsageCounter enables GET /api/x402-chatbot/usage.
func WithUsageCounter(uc UsageCounter) ChatOption {
	return func(h *ChatEchoHandler) {
		h.usage = uc
	}
}

// WithRateHeaders adds X-RateLimit-* headers to paid replies and 429s.
func WithRateHeaders(rs RateStatus) ChatOption {
	return func(h *ChatEchoHandler) {
		h.rate = rs
	}
}

// ChatEchoHandler serves the payment-gated chat endpoint and the unsigned
// transaction helper.
type ChatEchoHandler struct {
	logger   *xlogger.Logger
	gw       *usecase.ChatGateway
	payments service.PaymentVerifier
	rate     RateStatus
	usage    UsageCounter
	now      func() time.Time
}

func NewChatEchoHandler(logger *xlogger.Logger, gw *usecase.ChatGateway, payments service.PaymentVerifier, opts ...ChatOption) *ChatEchoHandler {
	metrics.Register()
	h := &ChatEchoHandler{logger: logger, gw: gw, payments: payments, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *ChatEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/x402-chatbot")
	g.POST("", h.Chat)
	g.POST("/transaction", h.Transaction)
	if h.usage != nil {
		g.GET("/usage", h.Usage)
	}
}

func (h *ChatEchoHandler) Chat(c echo.Context) error {
	start := time.Now()
	status := http.StatusOK
	defer func() { observe("chat", status, start) }()

	req := &models.ChatRequestBody{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		status = http.StatusBadRequest
		return xhttp.ValidationErrorResponse(c, verr)
	}

	ctx := c.Request().Context()
	out, err := h.gw.Handle(ctx, req.ToChatRequest())
	if err != nil {
		appErr := h.toAppError(err)
		status = appErr.Status
		if status == http.StatusTooManyRequests {
			h.setRateHeaders(c, req.WalletAddress)
		}
		return xhttp.AppErrorResponse(c, appErr)
	}

	if out.Balance != nil {
		return xhttp.SuccessResponse(c, models.BalanceResponseBody{
			Balance:         out.Balance.Balance,
			SufficientFunds: out.Balance.SufficientFunds,
			RequiredAmount:  out.Balance.RequiredAmount,
		})
	}

	h.setRateHeaders(c, req.WalletAddress)
	cost, _ := out.Reply.Terms.Amount.Float64()
	return xhttp.SuccessResponse(c, models.ChatResponseBody{
		Message:         out.Reply.Message,
		PaymentVerified: true,
		Cost:            cost,
		Currency:        out.Reply.Terms.Currency,
	})
}

// toAppError maps the gateway's failure kinds onto HTTP statuses and bodies.
func (h *ChatEchoHandler) toAppError(err error) *xhttp.AppError {
	var ge *models.GatewayError
	if !errors.As(err, &ge) {
		h.logger.Error("chat gateway failure", xlogger.Error(err))
		return xhttp.InternalError(xhttp.InternalErrorMessage).WithError(err)
	}

	switch ge.Kind {
	case models.KindInvalidInput:
		return xhttp.BadRequestError(ge.Message)
	case models.KindMissingWallet:
		return xhttp.UnauthorizedError(ge.Message)
	case models.KindPaymentRequired:
		return paymentError(ge, models.MsgPaymentPrompt)
	case models.KindPaymentInvalid:
		return paymentError(ge, models.MsgPaymentRetry)
	case models.KindRateLimited:
		return xhttp.TooManyRequestsError(ge.Message)
	default:
		h.logger.Error("chat gateway internal error", xlogger.String("message", ge.Message), xlogger.Error(ge.Err))
		msg := ge.Message
		if msg == "" {
			msg = xhttp.InternalErrorMessage
		}
		return xhttp.InternalError(msg).WithError(ge)
	}
}

func paymentError(ge *models.GatewayError, prompt string) *xhttp.AppError {
	e := xhttp.PaymentRequiredError(ge.Message).
		WithParam("paymentRequired", true).
		WithParam("message", prompt)
	if ge.Terms != nil {
		amount, _ := ge.Terms.Amount.Float64()
		e.WithParam("amount", amount).
			WithParam("currency", ge.Terms.Currency).
			WithParam("recipient", ge.Terms.Recipient)
	}
	if ge.Details != "" {
		e.WithParam("details", ge.Details)
	}
	return e
}

func (h *ChatEchoHandler) setRateHeaders(c echo.Context, wallet string) {
	if h.rate == nil || wallet == "" {
		return
	}
	remaining, reset, err := h.rate.Status(c.Request().Context(), wallet)
	if err != nil {
		h.logger.Debug("rate status unavailable", xlogger.Error(err))
		return
	}
	hdr := c.Response().Header()
	hdr.Set("X-RateLimit-Limit", strconv.FormatInt(h.rate.Limit(), 10))
	hdr.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	hdr.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
}

// Transaction returns an unsigned transfer of the per-message price for the wallet to sign.
func (h *ChatEchoHandler) Transaction(c echo.Context) error {
	start := time.Now()
	status := http.StatusOK
	defer func() { observe("transaction", status, start) }()

	req := &models.TransactionRequestBody{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		status = http.StatusBadRequest
		return xhttp.ValidationErrorResponse(c, verr)
	}
	if _, err := solana.ParsePublicKey(req.WalletAddress); err != nil {
		status = http.StatusBadRequest
		return xhttp.ErrorResponse(c, status, models.MsgWalletInvalid)
	}

	terms := h.payments.Terms()
	memo := req.Memo
	if memo == "" {
		memo = terms.Memo
	}

	tx, err := h.payments.BuildTransferTransaction(c.Request().Context(), req.WalletAddress, terms.Amount, memo)
	switch {
	case errors.Is(err, models.ErrAccountMissing):
		status = http.StatusBadRequest
		return xhttp.ErrorResponse(c, status, "No "+terms.Currency+" token account found for this wallet")
	case err != nil:
		status = http.StatusInternalServerError
		h.logger.Error("build payment transaction failed",
			xlogger.String("wallet", req.WalletAddress),
			xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, tx)
}

// Usage reports how many paid messages a wallet sent in the last N hours.
func (h *ChatEchoHandler) Usage(c echo.Context) error {
	start := time.Now()
	status := http.StatusOK
	defer func() { observe("usage", status, start) }()

	q := &models.UsageQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, q); verr != nil {
		status = http.StatusBadRequest
		return xhttp.ValidationErrorResponse(c, verr)
	}
	if _, err := solana.ParsePublicKey(q.WalletAddress); err != nil {
		status = http.StatusBadRequest
		return xhttp.ErrorResponse(c, status, models.MsgWalletInvalid)
	}

	ctx := c.Request().Context()
	since := h.now().UTC().Add(-time.Duration(q.Hours) * time.Hour)
	n, err := h.usage.CountByWallet(ctx, q.WalletAddress, since)
	if err != nil {
		status = http.StatusInternalServerError
		h.logger.Error("usage count failed", xlogger.String("wallet", q.WalletAddress), xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}

	body := models.UsageResponseBody{
		WalletAddress: q.WalletAddress,
		PaidMessages:  n,
		Since:         since,
	}
	if h.rate != nil {
		body.RateLimit = h.rate.Limit()
		if remaining, _, err := h.rate.Status(ctx, q.WalletAddress); err == nil {
			body.RateRemaining = remaining
		}
	}
	return xhttp.SuccessResponse(c, body)
}

func observe(endpoint string, status int, start time.Time) {
	metrics.ChatLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	metrics.ChatOutcomes.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}
