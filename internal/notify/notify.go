// Package notify announces newly funded jobs to the outside world.
// Delivery is fire and forget: a failed announcement is logged and
// never blocks or fails job processing.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"math/big"
	"net/http"
	"strings"
	"time"
)

type Sink interface {
	JobCreated(ctx context.Context, jobID uint64, description string, budget *big.Int)
}

type Noop struct{}

func (Noop) JobCreated(context.Context, uint64, string, *big.Int) {}

// Webhook posts a JSON announcement to a configured URL (the social
// posting bridge in production).
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type announcement struct {
	JobID       uint64 `json:"job_id"`
	Description string `json:"description"`
	BudgetWei   string `json:"budget_wei"`
}

func (w *Webhook) JobCreated(ctx context.Context, jobID uint64, description string, budget *big.Int) {
	body, err := json.Marshal(announcement{JobID: jobID, Description: description, BudgetWei: budget.String()})
	if err != nil {
		log.Printf("notify: marshal announcement job=%d: %v", jobID, err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		log.Printf("notify: build request job=%d: %v", jobID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		log.Printf("notify: announce job=%d: %v", jobID, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("notify: announce job=%d returned %s", jobID, resp.Status)
	}
}
