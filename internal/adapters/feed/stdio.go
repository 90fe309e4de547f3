// Package feed connects the triage service to email streams. The
// stdio feed speaks JSON Lines: one email per input line, one result
// or error per output line, in input order.
package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/inboxforge/triage-engine/internal/core"
)

// Input lines can carry full email bodies.
const maxLineBytes = 8 * 1024 * 1024

// emailInput is the wire form of one email to triage.
type emailInput struct {
	ID      string              `json:"id"`
	UserID  string              `json:"user_id"`
	Subject string              `json:"subject"`
	Body    string              `json:"body"`
	From    string              `json:"from"`
	To      []string            `json:"to"`
	Headers map[string][]string `json:"headers"`
	URLs    []string            `json:"urls"`
}

type actionOutput struct {
	Action       string         `json:"action"`
	PolicyID     string         `json:"policy_id"`
	Confidence   float64        `json:"confidence"`
	Rationale    string         `json:"rationale"`
	Params       map[string]any `json:"params,omitempty"`
	Suppressed   bool           `json:"suppressed,omitempty"`
	SuppressedBy string         `json:"suppressed_by,omitempty"`
}

type diagnosticOutput struct {
	PolicyID string `json:"policy_id"`
	Stage    string `json:"stage"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

type resultOutput struct {
	EmailID           string             `json:"email_id"`
	UserID            string             `json:"user_id,omitempty"`
	Category          string             `json:"category"`
	IsRealOpportunity bool               `json:"is_real_opportunity"`
	Confidence        float64            `json:"confidence"`
	Source            string             `json:"source"`
	ModelVersion      string             `json:"model_version"`
	RiskScore         int                `json:"risk_score"`
	RiskFactors       []string           `json:"risk_factors,omitempty"`
	Actions           []actionOutput     `json:"actions"`
	Diagnostics       []diagnosticOutput `json:"diagnostics,omitempty"`
	BundleVersion     string             `json:"bundle_version"`
	EvaluatedAt       time.Time          `json:"evaluated_at"`
	ProcessingID      string             `json:"processing_id"`
}

type errorOutput struct {
	EmailID string `json:"email_id,omitempty"`
	Error   string `json:"error"`
}

// StdioFeed reads emails from an input stream and writes triage
// results to an output stream. It implements ports.Runner.
type StdioFeed struct {
	service *core.TriageService
	logger  *zap.Logger
	in      io.Reader
	out     io.Writer
	now     func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStdioFeed creates a feed over stdin and stdout.
func NewStdioFeed(service *core.TriageService, logger *zap.Logger) *StdioFeed {
	return NewFeed(service, logger, os.Stdin, os.Stdout)
}

// NewFeed creates a feed over arbitrary streams.
func NewFeed(service *core.TriageService, logger *zap.Logger, in io.Reader, out io.Writer) *StdioFeed {
	return &StdioFeed{
		service: service,
		logger:  logger,
		in:      in,
		out:     out,
		now:     func() time.Time { return time.Now().UTC() },
		done:    make(chan struct{}),
	}
}

// Start begins consuming the input stream on a background goroutine.
func (f *StdioFeed) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go f.loop(ctx)
	return nil
}

// Stop cancels in-flight processing. A feed blocked on its input
// stream finishes when that stream ends.
func (f *StdioFeed) Stop() error {
	if f.cancel != nil {
		f.cancel()
	}
	return nil
}

// Done is closed when the input stream ends.
func (f *StdioFeed) Done() <-chan struct{} {
	return f.done
}

func (f *StdioFeed) loop(ctx context.Context) {
	defer close(f.done)

	encoder := json.NewEncoder(f.out)
	scanner := bufio.NewScanner(f.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var in emailInput
		if err := json.Unmarshal(line, &in); err != nil {
			f.logger.Warn("Skipping malformed input line", zap.Error(err))
			f.write(encoder, errorOutput{Error: "malformed input: " + err.Error()})
			continue
		}

		result, err := f.service.Triage(ctx, toEmailView(in), f.now())
		if err != nil {
			f.logger.Error("Failed to triage email",
				zap.String("email_id", in.ID),
				zap.Error(err))
			f.write(encoder, errorOutput{EmailID: in.ID, Error: err.Error()})
			continue
		}
		f.write(encoder, toResultOutput(result))
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		f.logger.Error("Input stream failed", zap.Error(err))
		return
	}
	f.logger.Info("Input stream ended")
}

func (f *StdioFeed) write(encoder *json.Encoder, v any) {
	if err := encoder.Encode(v); err != nil {
		f.logger.Error("Failed to write output line", zap.Error(err))
	}
}

func toEmailView(in emailInput) *core.EmailView {
	view := &core.EmailView{
		ID:           in.ID,
		UserID:       in.UserID,
		Subject:      in.Subject,
		Body:         in.Body,
		SenderHeader: in.From,
		To:           in.To,
		Headers:      in.Headers,
		URLs:         in.URLs,
	}
	view.FillSender()
	return view
}

func toResultOutput(result *core.TriageResult) resultOutput {
	out := resultOutput{
		EmailID:           result.EmailID,
		UserID:            result.UserID,
		Category:          result.Classification.Category,
		IsRealOpportunity: result.Classification.IsRealOpportunity,
		Confidence:        result.Classification.Confidence,
		Source:            string(result.Classification.Source),
		ModelVersion:      result.Classification.ModelVersion,
		RiskScore:         result.Risk.Score,
		RiskFactors:       result.Risk.Factors,
		Actions:           make([]actionOutput, 0, len(result.Actions)),
		BundleVersion:     result.BundleVersion,
		EvaluatedAt:       result.EvaluatedAt,
		ProcessingID:      result.ProcessingID,
	}
	for _, a := range result.Actions {
		out.Actions = append(out.Actions, actionOutput{
			Action:       a.Action,
			PolicyID:     a.PolicyID,
			Confidence:   a.Confidence,
			Rationale:    a.Rationale,
			Params:       a.Params,
			Suppressed:   a.Suppressed,
			SuppressedBy: a.SuppressedBy,
		})
	}
	for _, d := range result.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, diagnosticOutput{
			PolicyID: d.PolicyID,
			Stage:    d.Stage,
			Kind:     d.Kind,
			Message:  d.Message,
		})
	}
	return out
}
