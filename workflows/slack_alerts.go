package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// FailureReporter notifies operators about batches that ended without a commit
type FailureReporter interface {
	ReportBatchFailure(batchID, companyID, reason string, detail interface{}) error
}

type NopFailureReporter struct{}

func (NopFailureReporter) ReportBatchFailure(string, string, string, interface{}) error {
	return nil
}

type SlackPayload struct {
	Text string `json:"text"`
}

// SlackReporter posts failures to a Slack incoming webhook
type SlackReporter struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

// NewFailureReporter returns a Slack reporter, or a no-op one when webhookURL is empty.
func NewFailureReporter(webhookURL string) FailureReporter {
	if webhookURL == "" {
		return NopFailureReporter{}
	}
	return &SlackReporter{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
		now:        time.Now,
	}
}

func (r *SlackReporter) ReportBatchFailure(batchID, companyID, reason string, detail interface{}) error {
	if reason == "" {
		reason = "unknown"
	}
	message := fmt.Sprintf(
		":rotating_light: *Response Analysis Batch Failed*\n"+
			"*Time:* %s\n"+
			"*Batch:* %s\n"+
			"*Company:* %s\n"+
			"*Reason:* %s\n"+
			"*Error:* ```%v```",
		r.now().UTC().Format(time.RFC3339),
		batchID,
		companyID,
		reason,
		detail,
	)

	body, err := json.Marshal(SlackPayload{Text: message})
	if err != nil {
		return eris.Wrap(err, "workflows: encode slack payload")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return eris.Wrap(err, "workflows: build slack request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "workflows: post slack alert")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return eris.Errorf("workflows: slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
