package chain

import (
	"context"
	"fmt"
	"time"

	"MoodTreasury/internal/domain/models"
	drepo "MoodTreasury/internal/domain/repository"
	xhttp "MoodTreasury/pkg/http"
)

// Client talks to the execution collaborator. It submits sized actions,
// polls their status by opaque reference, and reads the observed treasury
// balance. Chain mechanics (gas, signing, retries) live entirely on the
// other side of this API.
type Client struct {
	baseURL string
	client  *xhttp.Client
}

// New creates a chain client.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

type submitRequest struct {
	Action      string  `json:"action"`
	Size        float64 `json:"size,omitempty"`
	MaxSlippage float64 `json:"maxSlippage,omitempty"`
	DCAFactor   float64 `json:"dcaFactor,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

type submitResponse struct {
	Reference string `json:"reference"`
}

// Submit sends an executable decision and returns the tracking reference.
func (c *Client) Submit(ctx context.Context, decision models.PolicyDecision) (string, error) {
	req := submitRequest{
		Action: string(decision.Action),
		Reason: decision.Reason,
	}
	if decision.Execution != nil {
		req.Size = decision.Execution.Size
		req.MaxSlippage = decision.Execution.MaxSlippage
		req.DCAFactor = decision.Execution.DCAFactor
	}

	var resp submitResponse
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     c.baseURL + "/actions",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    req,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("submit action: %w", err)
	}
	if resp.Reference == "" {
		return "", fmt.Errorf("submit action: empty reference")
	}
	return resp.Reference, nil
}

type statusResponse struct {
	Status string `json:"status"`
}

// GetStatus returns the lifecycle status of a submitted action.
func (c *Client) GetStatus(ctx context.Context, reference string) (models.ExecutionStatus, error) {
	var resp statusResponse
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/actions/" + reference,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("action status %s: %w", reference, err)
	}

	switch s := models.ExecutionStatus(resp.Status); s {
	case models.ExecutionPending, models.ExecutionConfirmed, models.ExecutionFailed:
		return s, nil
	default:
		return "", fmt.Errorf("action status %s: unknown status %q", reference, resp.Status)
	}
}

type balanceResponse struct {
	Balance float64 `json:"balance"`
}

// TreasuryBalance reads the current treasury balance.
func (c *Client) TreasuryBalance(ctx context.Context) (float64, error) {
	var resp balanceResponse
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/treasury/balance",
	}, &resp)
	if err != nil {
		return 0, fmt.Errorf("treasury balance: %w", err)
	}
	return resp.Balance, nil
}

var (
	_ drepo.ChainClient      = (*Client)(nil)
	_ drepo.TreasuryObserver = (*Client)(nil)
)
