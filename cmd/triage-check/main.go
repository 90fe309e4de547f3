package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/inboxforge/triage-engine/internal/action"
	"github.com/inboxforge/triage-engine/internal/adapters/audit"
	"github.com/inboxforge/triage-engine/internal/adapters/store"
	"github.com/inboxforge/triage-engine/internal/bundle"
	"github.com/inboxforge/triage-engine/internal/confidence"
	"github.com/inboxforge/triage-engine/internal/core"
	"github.com/inboxforge/triage-engine/internal/logging"
	"github.com/inboxforge/triage-engine/internal/policy"
)

var (
	// Bundle flags
	bundleDir = flag.String("bundle", "./bundle", "Bundle directory holding rules.yaml and model.json")

	// Policy flags
	policiesFile = flag.String("policies", "", "JSON file with user policies (no policies if not specified)")

	// Triage flags
	labelThreshold = flag.Float64("threshold", 0.8, "Confidence threshold for the label action")
	userID         = flag.String("user", "cli", "User ID to triage as")

	// Input flags
	inputFile = flag.String("file", "", "Input email file (use stdin if not specified)")
	verbose   = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog   = flag.Bool("json-log", false, "Output logs in JSON format")
)

func main() {
	flag.Parse()

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load bundle
	b, err := bundle.Load(*bundleDir)
	if err != nil {
		logger.Fatal("Failed to load bundle", zap.Error(err), zap.String("dir", *bundleDir))
	}
	handle := bundle.NewHandle(b)

	// Load user policies
	policyStore := store.NewMemoryStore()
	policyCount := 0
	if *policiesFile != "" {
		policies, err := readPolicies(*policiesFile)
		if err != nil {
			logger.Fatal("Failed to load policies", zap.Error(err), zap.String("file", *policiesFile))
		}
		policyStore.SetPolicies(policies)
		policyCount = len(policies)
	}

	// Read email from file or stdin
	var emailReader io.Reader
	if *inputFile != "" {
		file, err := os.Open(*inputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", *inputFile))
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", *inputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	// Parse email
	msg, err := mail.ReadMessage(bufio.NewReader(emailReader))
	if err != nil {
		logger.Fatal("Failed to parse email", zap.Error(err))
	}

	// Extract email content
	from := msg.Header.Get("From")
	to := msg.Header.Get("To")
	subject := msg.Header.Get("Subject")

	// Read body
	bodyBytes, err := io.ReadAll(msg.Body)
	if err != nil {
		logger.Fatal("Failed to read email body", zap.Error(err))
	}
	body := string(bodyBytes)

	emailID := strings.Trim(msg.Header.Get("Message-Id"), "<>")
	if emailID == "" {
		emailID = "cli"
	}

	// Create email object
	email := &core.EmailView{
		ID:           emailID,
		UserID:       *userID,
		Subject:      subject,
		Body:         body,
		SenderHeader: from,
		To:           strings.Split(to, ","),
		Headers:      make(map[string][]string),
		URLs:         extractURLs(body),
	}

	// Copy headers
	for k, v := range msg.Header {
		email.Headers[k] = v
	}
	email.FillSender()

	// Wire the service
	registry := action.NewRegistry()
	service := core.NewTriageService(
		handle,
		policyStore,
		policyStore,
		policyStore,
		policy.NewEngine(registry, logger),
		confidence.NewEstimator(),
		audit.NewMemorySink(16),
		logger,
		*labelThreshold,
		1,
	)

	// Print email summary
	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", from)
	fmt.Printf("To: %s\n", to)
	fmt.Printf("Subject: %s\n", subject)
	fmt.Printf("Body length: %d bytes\n", len(body))
	fmt.Printf("\n")

	// Analyze email
	fmt.Printf("=== Analysis ===\n")
	fmt.Printf("Bundle version: %s\n", b.Version)
	fmt.Printf("Label threshold: %.2f\n", *labelThreshold)
	fmt.Printf("Policies: %d\n", policyCount)

	startTime := time.Now()
	result, err := service.Triage(context.Background(), email, time.Now())
	if err != nil {
		logger.Fatal("Failed to triage email", zap.Error(err))
	}
	duration := time.Since(startTime)

	// Print results
	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Category: %s\n", result.Classification.Category)
	fmt.Printf("Confidence: %.4f\n", result.Classification.Confidence)
	fmt.Printf("Source: %s\n", result.Classification.Source)
	fmt.Printf("Model version: %s\n", result.Classification.ModelVersion)
	fmt.Printf("Real opportunity: %t\n", result.Classification.IsRealOpportunity)
	fmt.Printf("Risk score: %d\n", result.Risk.Score)
	for _, factor := range result.Risk.Factors {
		fmt.Printf("  - %s\n", factor)
	}
	if len(result.Actions) > 0 {
		fmt.Printf("Actions:\n")
		for _, a := range result.Actions {
			if a.Suppressed {
				fmt.Printf("  - %s (policy %s, confidence %.2f, suppressed by %s)\n", a.Action, a.PolicyID, a.Confidence, a.SuppressedBy)
			} else {
				fmt.Printf("  - %s (policy %s, confidence %.2f): %s\n", a.Action, a.PolicyID, a.Confidence, a.Rationale)
			}
		}
	}
	if len(result.Diagnostics) > 0 {
		fmt.Printf("Diagnostics:\n")
		for _, d := range result.Diagnostics {
			fmt.Printf("  - policy %s: %s/%s: %s\n", d.PolicyID, d.Stage, d.Kind, d.Message)
		}
	}
	fmt.Printf("Processing time: %v\n", duration)
}

// policyInput mirrors core.Policy with the JSON shape the dashboard
// exports. Enabled defaults to true when omitted.
type policyInput struct {
	ID        string          `json:"id"`
	Condition json.RawMessage `json:"condition"`
	Action    string          `json:"action"`
	Rationale string          `json:"rationale"`
	Threshold float64         `json:"threshold"`
	Priority  int             `json:"priority"`
	Enabled   *bool           `json:"enabled"`
	Params    map[string]any  `json:"params"`
}

// readPolicies loads user policies from a JSON file
func readPolicies(path string) ([]core.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var inputs []policyInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, err
	}
	policies := make([]core.Policy, 0, len(inputs))
	for _, in := range inputs {
		enabled := true
		if in.Enabled != nil {
			enabled = *in.Enabled
		}
		policies = append(policies, core.Policy{
			ID:        in.ID,
			Condition: in.Condition,
			Action:    in.Action,
			Rationale: in.Rationale,
			Threshold: in.Threshold,
			Priority:  in.Priority,
			Enabled:   enabled,
			Params:    in.Params,
		})
	}
	return policies, nil
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// extractURLs pulls http(s) links out of the message body
func extractURLs(body string) []string {
	return urlPattern.FindAllString(body, -1)
}
