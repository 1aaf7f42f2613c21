// workflows/response_batch_processor.go
package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
	"github.com/AI-Template-SDK/senso-analysis/internal/repositories"
	"github.com/AI-Template-SDK/senso-analysis/services"
)

// BatchEventName is the event that schedules a response batch for analysis
const BatchEventName = "response-analysis.batch"

// ResponseBatchEvent is the payload of BatchEventName
type ResponseBatchEvent struct {
	BatchID     uuid.UUID                     `json:"batch_id"`
	CompanyID   uuid.UUID                     `json:"company_id"`
	Profile     *models.CompanyProfile        `json:"profile,omitempty"`
	Responses   []models.AnswerEngineResponse `json:"responses"`
	TriggeredBy string                        `json:"triggered_by,omitempty"`
}

type ResponseBatchProcessor struct {
	processor services.BatchProcessor
	directory services.CompanyDirectory
	alerts    FailureReporter
	client    inngestgo.Client
	logger    *zap.Logger
}

func NewResponseBatchProcessor(
	processor services.BatchProcessor,
	directory services.CompanyDirectory,
	alerts FailureReporter,
	logger *zap.Logger,
) *ResponseBatchProcessor {
	if alerts == nil {
		alerts = NopFailureReporter{}
	}
	return &ResponseBatchProcessor{
		processor: processor,
		directory: directory,
		alerts:    alerts,
		logger:    logger.Named("response_batch_processor"),
	}
}

func (p *ResponseBatchProcessor) SetClient(client inngestgo.Client) {
	p.client = client
}

// EnqueueBatch sends the batch as a BatchEventName event and returns the event id.
func (p *ResponseBatchProcessor) EnqueueBatch(ctx context.Context, req *services.BatchRequest) (string, error) {
	if p.client == nil {
		return "", eris.New("workflows: inngest client not set")
	}
	evt := inngestgo.Event{
		Name: BatchEventName,
		Data: map[string]interface{}{
			"batch_id":     req.BatchID,
			"company_id":   req.CompanyID,
			"profile":      req.Profile,
			"responses":    req.Responses,
			"triggered_by": "api",
		},
	}
	id, err := p.client.Send(ctx, evt)
	if err != nil {
		return "", eris.Wrapf(err, "workflows: send %s for batch %s", BatchEventName, req.BatchID)
	}
	p.logger.Info("batch enqueued", zap.String("batch_id", req.BatchID.String()), zap.String("event_id", id))
	return id, nil
}

func (p *ResponseBatchProcessor) ProcessResponseBatch() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:      "process-response-batch",
			Name:    "Process Response Batch - Extraction and Atomic Persistence",
			Retries: inngestgo.IntPtr(3),
		},
		inngestgo.EventTrigger(BatchEventName, nil),
		func(ctx context.Context, input inngestgo.Input[ResponseBatchEvent]) (any, error) {
			return p.run(ctx, input.Event.Data, func(id string, fn func(context.Context) (any, error)) (any, error) {
				return step.Run(ctx, id, fn)
			})
		},
	)
	if err != nil {
		panic(eris.Wrap(err, "workflows: create ProcessResponseBatch function"))
	}
	return fn
}

// stepRunner runs one memoized workflow step.
type stepRunner func(id string, fn func(context.Context) (any, error)) (any, error)

// run holds the workflow body. Permanent failures end the run with a failed status instead of
// an error, so the platform does not retry them.
func (p *ResponseBatchProcessor) run(ctx context.Context, evt ResponseBatchEvent, runStep stepRunner) (any, error) {
	log := p.logger.With(zap.String("batch_id", evt.BatchID.String()), zap.String("company_id", evt.CompanyID.String()))
	log.Info("starting response batch", zap.Int("responses", len(evt.Responses)))

	if evt.CompanyID == uuid.Nil || len(evt.Responses) == 0 {
		return p.failed(evt, "invalid_event", eris.New("company_id and responses are required")), nil
	}
	if evt.BatchID == uuid.Nil {
		// Generate once so retries of later steps reuse it
		id, err := runStep("assign-batch-id", func(context.Context) (any, error) {
			return uuid.NewString(), nil
		})
		if err != nil {
			return nil, err
		}
		evt.BatchID = uuid.MustParse(id.(string))
	}

	// Step 1: resolve the company context
	profile := evt.Profile
	if profile == nil {
		raw, err := runStep("load-company-profile", func(ctx context.Context) (any, error) {
			profile, err := p.directory.GetProfile(ctx, evt.CompanyID)
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, nil
			}
			return profile, err
		})
		if err != nil {
			return nil, err
		}
		if raw == nil {
			return p.failed(evt, "unknown_company", eris.Errorf("company %s is not registered", evt.CompanyID)), nil
		}
		loaded, err := asProfile(raw)
		if err != nil {
			return p.failed(evt, "load_company_profile", err), nil
		}
		profile = loaded
	}

	// Step 2: analyze every response and commit the batch in one transaction
	raw, err := runStep("analyze-and-persist-batch", func(ctx context.Context) (any, error) {
		result, err := p.processor.ProcessBatch(ctx, &services.BatchRequest{
			BatchID:   evt.BatchID,
			CompanyID: evt.CompanyID,
			Profile:   profile,
			Responses: evt.Responses,
		})
		if err != nil {
			var ae *services.AnalysisError
			if errors.As(err, &ae) && ae.Transient {
				return nil, err
			}
			return batchSummary(evt.BatchID, result, err), nil
		}
		return batchSummary(evt.BatchID, result, nil), nil
	})
	if err != nil {
		log.Warn("batch step failed, leaving retry to the platform", zap.Error(err))
		return nil, err
	}

	summary, _ := raw.(map[string]interface{})
	if summary != nil && summary["status"] == "failed" {
		p.report(evt, "analyze_and_persist", summary["error"])
	}
	log.Info("response batch finished", zap.Any("status", summaryValue(summary, "status")))

	return map[string]interface{}{
		"batch_id":     evt.BatchID,
		"company_id":   evt.CompanyID,
		"company_name": profile.Name,
		"summary":      summary,
		"completed_at": time.Now().UTC(),
	}, nil
}

// asProfile accepts the step output either as the live value or as its memoized JSON form.
func asProfile(raw any) (*models.CompanyProfile, error) {
	switch v := raw.(type) {
	case *models.CompanyProfile:
		return v, nil
	case map[string]interface{}:
		var profile models.CompanyProfile
		if err := remarshal(v, &profile); err != nil {
			return nil, eris.Wrap(err, "workflows: decode company profile")
		}
		return &profile, nil
	default:
		return nil, eris.Errorf("workflows: unexpected company profile type %T", raw)
	}
}

func remarshal(in interface{}, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func batchSummary(batchID uuid.UUID, result *services.BatchResult, err error) map[string]interface{} {
	summary := map[string]interface{}{
		"batch_id": batchID.String(),
		"status":   "committed",
	}
	if result != nil {
		summary["records"] = len(result.Records)
		summary["failures"] = result.Failures
		if result.Batch == nil {
			summary["status"] = "empty"
		}
	}
	if err != nil {
		summary["status"] = "failed"
		summary["error"] = err.Error()
	}
	return summary
}

func summaryValue(summary map[string]interface{}, key string) interface{} {
	if summary == nil {
		return nil
	}
	return summary[key]
}

func (p *ResponseBatchProcessor) failed(evt ResponseBatchEvent, reason string, err error) map[string]interface{} {
	p.logger.Error("response batch failed",
		zap.String("batch_id", evt.BatchID.String()),
		zap.String("reason", reason),
		zap.Error(err))
	p.report(evt, reason, err.Error())
	return map[string]interface{}{
		"batch_id":   evt.BatchID,
		"company_id": evt.CompanyID,
		"status":     "failed",
		"reason":     reason,
		"error":      err.Error(),
	}
}

func (p *ResponseBatchProcessor) report(evt ResponseBatchEvent, reason string, detail interface{}) {
	err := p.alerts.ReportBatchFailure(evt.BatchID.String(), evt.CompanyID.String(), reason, detail)
	if err != nil {
		p.logger.Warn("failure alert not delivered", zap.Error(err))
	}
}
