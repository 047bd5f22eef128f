// Package generator builds the outbound prompts and response contracts for
// daily-plan and reflection generation, submits them through the request
// governor, and maps results into the domain model. Unrecoverable plan
// failures surface one fixed user-safe message per error category; the
// reflection path never fails outwardly.
package generator

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"time"

	"momentum/pkg/governor"
	"momentum/pkg/llm"
	"momentum/pkg/llmerrors"
	"momentum/pkg/logx"
	"momentum/pkg/metrics"
	"momentum/pkg/plan"
)

// UserFacingError carries a category and a display-ready message. Its
// Error() is safe to show; the raw upstream failure is only reachable via
// Unwrap (for logs and tests).
type UserFacingError struct {
	Category llmerrors.ErrorType
	Message  string
	cause    error
}

func (e *UserFacingError) Error() string {
	return e.Message
}

func (e *UserFacingError) Unwrap() error {
	return e.cause
}

const (
	msgMissingInputs = "Please set your goal and identity in your profile before generating a plan."
)

// Generator produces daily plans and reflection responses.
type Generator struct {
	gov       *governor.Governor
	client    llm.Client
	recorder  metrics.Recorder
	logger    *logx.Logger
	estimator *tokenEstimator

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a generator. A nil rng seeds one from the clock; tests inject
// a seeded source for deterministic fallback selection. A nil recorder
// disables metrics.
func New(gov *governor.Governor, client llm.Client, recorder metrics.Recorder, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // Non-cryptographic message selection
	}
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Generator{
		gov:       gov,
		client:    client,
		recorder:  recorder,
		logger:    logx.NewLogger("generator"),
		estimator: newTokenEstimator(),
		rng:       rng,
	}
}

// planResponse is the wire shape of a daily-plan generation reply.
type planResponse struct {
	GIA struct {
		Task   string `json:"task"`
		Reason string `json:"reason"`
	} `json:"gia"`
	OtherTasks []struct {
		Task string `json:"task"`
	} `json:"otherTasks"`
	MotivationalQuote string `json:"motivationalQuote"`
}

// GenerateDailyPlan generates the plan for the given calendar day. Task
// order is fixed: the GIA first, then supporting tasks, then the quote
// entry. Fails with a categorized user-safe error; the caller receives no
// partial plan.
func (g *Generator) GenerateDailyPlan(ctx context.Context, date string, profile plan.UserProfile, goal plan.Goal, prevTasks, prevReflection string) (plan.DailyPlan, error) {
	if strings.TrimSpace(goal.Title) == "" || strings.TrimSpace(profile.Identity) == "" {
		return plan.DailyPlan{}, &UserFacingError{
			Category: llmerrors.ErrorTypeValidation,
			Message:  msgMissingInputs,
			cause:    llmerrors.New(llmerrors.ErrorTypeValidation, "goal title and identity are required"),
		}
	}

	req := llm.GenerateRequest{
		Model:             g.client.ModelName(),
		Prompt:            buildPlanPrompt(profile, goal, prevTasks, prevReflection),
		SystemInstruction: planSystemInstruction,
		ResponseSchema:    planResponseSchema(),
		Temperature:       llm.TemperatureCreative,
	}

	text, err := g.generate(ctx, "daily_plan", req)
	if err != nil {
		g.logger.Error("daily plan generation failed: %v", err)
		return plan.DailyPlan{}, g.userFacing(err)
	}

	parsed, err := parsePlanResponse(text)
	if err != nil {
		g.logger.Error("daily plan response rejected: %v", err)
		return plan.DailyPlan{}, g.userFacing(err)
	}

	return buildPlan(date, parsed), nil
}

// GenerateReflectionResponse returns a short coach reply to the user's
// evening reflection. It never fails: on any upstream failure it returns a
// pseudo-randomly chosen canned response, with a quota notice appended when
// the failure was quota-classified.
func (g *Generator) GenerateReflectionResponse(ctx context.Context, profile plan.UserProfile, goal plan.Goal, dayPlan plan.DailyPlan, reflection string) string {
	req := llm.GenerateRequest{
		Model:             g.client.ModelName(),
		Prompt:            buildReflectionPrompt(profile, goal, dayPlan, reflection),
		SystemInstruction: reflectionSystemInstruction,
		Temperature:       llm.TemperatureCreative,
	}

	text, err := g.generate(ctx, "reflection", req)
	if err != nil {
		g.logger.Warn("reflection generation failed, using fallback: %v", err)
		return g.fallbackResponse(err)
	}

	return strings.TrimSpace(text)
}

// generate runs one governed generation call and records its metrics.
func (g *Generator) generate(ctx context.Context, operation string, req llm.GenerateRequest) (string, error) {
	promptTokens := g.estimator.estimate(req.SystemInstruction + req.Prompt)
	start := time.Now()

	resp, err := g.gov.Execute(ctx, req.Model, func(callCtx context.Context) (llm.GenerateResponse, error) {
		return g.client.Generate(callCtx, req)
	})

	errType := ""
	if err != nil {
		errType = llmerrors.TypeOf(err).String()
	}
	g.recorder.ObserveRequest(req.Model, operation, promptTokens, err == nil, errType, time.Since(start))

	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// parsePlanResponse validates the raw reply: it must be non-empty JSON of
// the fixed shape and must yield at least one task.
func parsePlanResponse(text string) (planResponse, error) {
	var parsed planResponse

	trimmed := strings.TrimSpace(stripCodeFences(text))
	if trimmed == "" {
		return parsed, llmerrors.New(llmerrors.ErrorTypeMalformed, "empty plan response")
	}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return parsed, llmerrors.NewWithCause(llmerrors.ErrorTypeMalformed, err, "plan response is not valid JSON")
	}

	taskCount := 0
	if strings.TrimSpace(parsed.GIA.Task) != "" {
		taskCount++
	}
	for _, t := range parsed.OtherTasks {
		if strings.TrimSpace(t.Task) != "" {
			taskCount++
		}
	}
	if taskCount == 0 {
		return parsed, llmerrors.New(llmerrors.ErrorTypeMalformed, "plan response yielded zero tasks")
	}

	return parsed, nil
}

// buildPlan maps a parsed response into the ordered task list: GIA first,
// then supporting tasks, then the quote entry.
func buildPlan(date string, parsed planResponse) plan.DailyPlan {
	tasks := make([]plan.Task, 0, len(parsed.OtherTasks)+2)

	if text := strings.TrimSpace(parsed.GIA.Task); text != "" {
		tasks = append(tasks, plan.Task{
			ID:    plan.NewTaskID(),
			Text:  text,
			IsGIA: true,
			Kind:  plan.KindAction,
		})
	}
	for _, t := range parsed.OtherTasks {
		text := strings.TrimSpace(t.Task)
		if text == "" {
			continue
		}
		tasks = append(tasks, plan.Task{
			ID:   plan.NewTaskID(),
			Text: text,
			Kind: plan.KindAction,
		})
	}

	quote := strings.TrimSpace(parsed.MotivationalQuote)
	if quote != "" {
		tasks = append(tasks, plan.Task{
			ID:   plan.NewQuoteTaskID(),
			Text: quote,
			Kind: plan.KindQuote,
		})
	}

	return plan.DailyPlan{
		Date:              date,
		Tasks:             tasks,
		MotivationalQuote: quote,
	}
}

// userFacing remaps any failure into its category's fixed message.
func (g *Generator) userFacing(err error) *UserFacingError {
	return &UserFacingError{
		Category: llmerrors.TypeOf(err),
		Message:  llmerrors.UserMessage(err),
		cause:    err,
	}
}

// fallbackResponse picks a canned encouragement, flagged when quota-related.
func (g *Generator) fallbackResponse(err error) string {
	g.rngMu.Lock()
	msg := fallbackResponses[g.rng.Intn(len(fallbackResponses))]
	g.rngMu.Unlock()

	if llmerrors.TypeOf(err) == llmerrors.ErrorTypeQuota {
		msg += quotaSuffix
	}
	return msg
}

// stripCodeFences removes a surrounding markdown code fence if the model
// wrapped its JSON in one.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return trimmed
}
