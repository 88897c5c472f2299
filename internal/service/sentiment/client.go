package sentiment

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"MoodTreasury/internal/domain/models"
	drepo "MoodTreasury/internal/domain/repository"
	xhttp "MoodTreasury/pkg/http"
)

// Client fetches scored sample batches from the upstream NLP service. One
// call drains at most BatchLimit samples; the service forgets a sample once
// it has been handed out.
type Client struct {
	baseURL    string
	batchLimit int
	client     *xhttp.Client
}

// New creates a sentiment source over HTTP.
func New(baseURL string, timeout time.Duration, batchLimit int) *Client {
	return &Client{
		baseURL:    baseURL,
		batchLimit: batchLimit,
		client:     xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

type batchResponse struct {
	Samples []models.SentimentSample `json:"samples"`
}

// FetchBatch returns the next batch of scored samples. An empty batch is a
// normal result, not an error.
func (c *Client) FetchBatch(ctx context.Context) ([]models.SentimentSample, error) {
	var resp batchResponse
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/samples",
		QueryParams: map[string][]string{
			"limit": {strconv.Itoa(c.batchLimit)},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch sentiment batch: %w", err)
	}
	return resp.Samples, nil
}

var _ drepo.SentimentSource = (*Client)(nil)
