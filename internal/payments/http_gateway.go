package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/tijarahq/tijara-backend/pkg/config"
	"github.com/tijarahq/tijara-backend/pkg/db/models"
	"github.com/tijarahq/tijara-backend/pkg/enums"
	pkgerrors "github.com/tijarahq/tijara-backend/pkg/errors"
)

// HTTPGateway talks to the external charge API over HTTPS. Every call has a
// bounded timeout; a timeout on CreateCharge is a normal failure, never an
// implicit charge failure — the charge may have succeeded gateway-side and
// only a webhook may settle it.
type HTTPGateway struct {
	cfg    config.GatewayConfig
	client *http.Client
}

// NewHTTPGateway builds the gateway-backed adapter.
func NewHTTPGateway(cfg config.GatewayConfig) (*HTTPGateway, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base url required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gateway api key required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (g *HTTPGateway) Method() enums.PaymentMethod {
	return enums.PaymentMethodGateway
}

type createChargeRequest struct {
	OrderID    string `json:"order_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	SuccessURL string `json:"success_url,omitempty"`
	FailureURL string `json:"failure_url,omitempty"`
}

type createChargeResponse struct {
	ChargeID    string `json:"charge_id"`
	RedirectURL string `json:"redirect_url"`
}

type chargeStatusResponse struct {
	ChargeID string `json:"charge_id"`
	Status   string `json:"status"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	OrderID  string `json:"order_id"`
}

// CreateCharge opens a charge for the order's total and returns the hosted
// payment session. Failures leave the order untouched; the buyer retries
// initiation.
func (g *HTTPGateway) CreateCharge(ctx context.Context, order *models.Order) (*ChargeSession, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}

	amount := decimal.NewFromInt(int64(order.TotalCents)).Div(decimal.NewFromInt(100))
	payload := createChargeRequest{
		OrderID:    order.ID.String(),
		Amount:     amount.StringFixed(2),
		Currency:   order.Currency,
		SuccessURL: g.cfg.SuccessURL,
		FailureURL: g.cfg.FailureURL,
	}

	var resp createChargeResponse
	if err := g.post(ctx, "/v1/charges", payload, &resp); err != nil {
		return nil, err
	}
	if resp.ChargeID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "gateway returned no charge id")
	}
	return &ChargeSession{ChargeID: resp.ChargeID, RedirectURL: resp.RedirectURL}, nil
}

// VerifyCharge fetches the charge's current state, retrying transient
// gateway failures with exponential backoff.
func (g *HTTPGateway) VerifyCharge(ctx context.Context, externalID string) (*ChargeResult, error) {
	if externalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge id required")
	}

	retries := g.cfg.VerifyRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := retry.WithMaxRetries(uint64(retries), retry.NewExponential(200*time.Millisecond))

	var resp chargeStatusResponse
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := g.get(ctx, "/v1/charges/"+externalID, &resp)
		if err == nil {
			return nil
		}
		appErr := pkgerrors.As(err)
		if appErr != nil {
			switch appErr.Code() {
			case pkgerrors.CodeGatewayUnavailable, pkgerrors.CodeGatewayTimeout:
				return retry.RetryableError(err)
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return g.mapChargeResult(resp)
}

func (g *HTTPGateway) mapChargeResult(resp chargeStatusResponse) (*ChargeResult, error) {
	cents, err := amountToCents(resp.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse gateway amount")
	}

	result := &ChargeResult{
		TransactionID: resp.ChargeID,
		Status:        enums.NormalizeChargeStatus(resp.Status),
		AmountCents:   cents,
		Currency:      resp.Currency,
	}
	if resp.OrderID != "" {
		orderID, err := uuid.Parse(resp.OrderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse gateway order reference")
		}
		result.OrderID = orderID
	}
	return result, nil
}

// amountToCents converts the gateway's decimal string amount to integer
// cents without float drift.
func amountToCents(amount string) (int, error) {
	if amount == "" {
		return 0, nil
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, err
	}
	return int(parsed.Mul(decimal.NewFromInt(100)).IntPart()), nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode gateway request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")
	return g.send(req, out)
}

func (g *HTTPGateway) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+path, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	return g.send(req, out)
}

func (g *HTTPGateway) send(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, "gateway call timed out")
		}
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "gateway call failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "read gateway response")
	}

	switch {
	case resp.StatusCode >= 500:
		return pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "gateway returned server error").
			WithDetails(map[string]any{"status_code": resp.StatusCode})
	case resp.StatusCode >= 400:
		return pkgerrors.New(pkgerrors.CodeDependency, "gateway rejected the request").
			WithDetails(map[string]any{"status_code": resp.StatusCode})
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "decode gateway response")
		}
	}
	return nil
}

func isTimeout(err error) bool {
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}
