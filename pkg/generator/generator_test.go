package generator

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum/pkg/governor"
	"momentum/pkg/llm"
	"momentum/pkg/llmerrors"
	"momentum/pkg/plan"
)

// fakeClient returns scripted responses in order, repeating the last one.
type fakeClient struct {
	model     string
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	text string
	err  error
}

func (f *fakeClient) Generate(_ context.Context, _ llm.GenerateRequest) (llm.GenerateResponse, error) {
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	r := f.responses[idx]
	if r.err != nil {
		return llm.GenerateResponse{}, r.err
	}
	return llm.GenerateResponse{Text: r.text}, nil
}

func (f *fakeClient) ModelName() string {
	if f.model == "" {
		return "fake-model"
	}
	return f.model
}

func testGovernor() *governor.Governor {
	return governor.New(governor.Policy{
		MinInterval:        0,
		Window:             time.Second,
		MaxAttempts:        3,
		QuotaBaseDelay:     time.Millisecond,
		TransientBaseDelay: time.Millisecond,
	}, nil)
}

func testGenerator(client llm.Client, seed int64) *Generator {
	return New(testGovernor(), client, nil, rand.New(rand.NewSource(seed))) //nolint:gosec // Deterministic test randomness
}

var validProfile = plan.UserProfile{Identity: "a disciplined runner", Context: "trains before work"}

var validGoal = plan.Goal{Title: "Run a marathon"}

const planJSON = `{
	"gia": {"task": "Run 5k", "reason": "builds momentum"},
	"otherTasks": [{"task": "Drink water"}],
	"motivationalQuote": "Keep going"
}`

func TestGenerateDailyPlanMapsResponse(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{{text: planJSON}}}
	g := testGenerator(client, 1)

	got, err := g.GenerateDailyPlan(context.Background(), "2026-08-25", validProfile, validGoal, "", "")
	require.NoError(t, err)

	require.Len(t, got.Tasks, 3)

	assert.Equal(t, "Run 5k", got.Tasks[0].Text)
	assert.True(t, got.Tasks[0].IsGIA)
	assert.Equal(t, plan.KindAction, got.Tasks[0].Kind)

	assert.Equal(t, "Drink water", got.Tasks[1].Text)
	assert.False(t, got.Tasks[1].IsGIA)

	assert.Equal(t, "Keep going", got.Tasks[2].Text)
	assert.False(t, got.Tasks[2].IsGIA)
	assert.Equal(t, plan.KindQuote, got.Tasks[2].Kind)
	assert.True(t, strings.HasSuffix(got.Tasks[2].ID, "-quote"))

	assert.Equal(t, "2026-08-25", got.Date)
	assert.Equal(t, "Keep going", got.MotivationalQuote)
}

func TestGenerateDailyPlanHandlesFencedJSON(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{{text: "```json\n" + planJSON + "\n```"}}}
	g := testGenerator(client, 1)

	got, err := g.GenerateDailyPlan(context.Background(), "2026-08-25", validProfile, validGoal, "", "")
	require.NoError(t, err)
	assert.Len(t, got.Tasks, 3)
}

func TestGenerateDailyPlanValidation(t *testing.T) {
	tests := []struct {
		name    string
		profile plan.UserProfile
		goal    plan.Goal
	}{
		{"empty goal title", validProfile, plan.Goal{}},
		{"empty identity", plan.UserProfile{}, validGoal},
		{"whitespace goal", validProfile, plan.Goal{Title: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{responses: []fakeResponse{{text: planJSON}}}
			g := testGenerator(client, 1)

			_, err := g.GenerateDailyPlan(context.Background(), "2026-08-25", tt.profile, tt.goal, "", "")
			require.Error(t, err)

			var ufe *UserFacingError
			require.True(t, errors.As(err, &ufe))
			assert.Equal(t, llmerrors.ErrorTypeValidation, ufe.Category)
			assert.Equal(t, 0, client.calls, "validation failures must never contact the governor")
		})
	}
}

func TestGenerateDailyPlanMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"not json", "Here is your plan: run and hydrate!"},
		{"zero tasks", `{"gia":{"task":"","reason":""},"otherTasks":[],"motivationalQuote":"Go"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{responses: []fakeResponse{{text: tt.text}}}
			g := testGenerator(client, 1)

			_, err := g.GenerateDailyPlan(context.Background(), "2026-08-25", validProfile, validGoal, "", "")
			require.Error(t, err)

			var ufe *UserFacingError
			require.True(t, errors.As(err, &ufe))
			assert.Equal(t, llmerrors.ErrorTypeMalformed, ufe.Category)
			// Malformed responses surface the generic category message, not
			// raw upstream text.
			assert.NotContains(t, ufe.Message, tt.text)
		})
	}
}

func TestGenerateDailyPlanQuotaSurfacesUserMessage(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{err: llmerrors.NewWithStatus(llmerrors.ErrorTypeQuota, 429, "RESOURCE_EXHAUSTED: free_tier_requests")},
	}}
	g := testGenerator(client, 1)

	_, err := g.GenerateDailyPlan(context.Background(), "2026-08-25", validProfile, validGoal, "", "")
	require.Error(t, err)

	var ufe *UserFacingError
	require.True(t, errors.As(err, &ufe))
	assert.Equal(t, llmerrors.ErrorTypeQuota, ufe.Category)
	assert.NotContains(t, ufe.Message, "RESOURCE_EXHAUSTED")
	assert.True(t, errors.Is(err, governor.ErrQuotaExhausted), "cause chain should mark quota exhaustion")
	assert.Equal(t, 3, client.calls, "quota errors are retried to the attempt cap")
}

func TestGenerateReflectionResponseSuccess(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{{text: "  Nice work today.\n"}}}
	g := testGenerator(client, 1)

	got := g.GenerateReflectionResponse(context.Background(), validProfile, validGoal, plan.DailyPlan{}, "I ran today")
	assert.Equal(t, "Nice work today.", got)
}

func TestGenerateReflectionResponseNeverFails(t *testing.T) {
	failures := []error{
		llmerrors.NewWithStatus(llmerrors.ErrorTypeUnavailable, 503, "overloaded"),
		llmerrors.NewWithStatus(llmerrors.ErrorTypeAuth, 401, "API key not valid"),
		llmerrors.New(llmerrors.ErrorTypeUnknown, "connection reset"),
		errors.New("totally unexpected"),
	}

	for _, failure := range failures {
		client := &fakeClient{responses: []fakeResponse{{err: failure}}}
		g := testGenerator(client, 42)

		got := g.GenerateReflectionResponse(context.Background(), validProfile, validGoal, plan.DailyPlan{}, "rough day")
		require.NotEmpty(t, got)

		base := strings.TrimSuffix(got, quotaSuffix)
		assert.Contains(t, fallbackResponses, base, "fallback must come from the fixed set")
		assert.False(t, strings.HasSuffix(got, quotaSuffix), "non-quota failures must not carry the quota suffix")
	}
}

func TestGenerateReflectionResponseQuotaSuffix(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{err: llmerrors.NewWithStatus(llmerrors.ErrorTypeQuota, 429, "quota exceeded")},
	}}
	g := testGenerator(client, 42)

	got := g.GenerateReflectionResponse(context.Background(), validProfile, validGoal, plan.DailyPlan{}, "rough day")
	require.True(t, strings.HasSuffix(got, quotaSuffix), "quota failures must carry the quota suffix: %q", got)

	base := strings.TrimSuffix(got, quotaSuffix)
	assert.Contains(t, fallbackResponses, base)
}

func TestFallbackSelectionIsSeedDeterministic(t *testing.T) {
	failure := llmerrors.New(llmerrors.ErrorTypeUnknown, "boom")

	pick := func(seed int64) string {
		client := &fakeClient{responses: []fakeResponse{{err: failure}}}
		g := testGenerator(client, seed)
		return g.GenerateReflectionResponse(context.Background(), validProfile, validGoal, plan.DailyPlan{}, "x")
	}

	assert.Equal(t, pick(7), pick(7), "same seed must pick the same fallback")
}
