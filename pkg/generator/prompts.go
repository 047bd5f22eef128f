package generator

import (
	"fmt"
	"strings"

	"momentum/pkg/llm"
	"momentum/pkg/plan"
)

// planSystemInstruction is the fixed persona for daily-plan generation.
const planSystemInstruction = `You are a focused, pragmatic productivity coach. ` +
	`Each day you design a short, achievable plan built around one Greatest Impact Activity (GIA): ` +
	`the single task that moves the user furthest toward their goal. ` +
	`Supporting tasks are small and concrete. Respond only with JSON matching the requested schema.`

// reflectionSystemInstruction is the fixed persona for the evening reflection.
const reflectionSystemInstruction = `You are a warm, supportive coach. ` +
	`Reply to the user's evening reflection in 2-4 encouraging sentences. ` +
	`Acknowledge what they did, be honest but kind about what slipped, and point them at tomorrow.`

// planResponseSchema is the fixed contract for daily-plan responses: one
// GIA with a reason, 2-4 supporting tasks, and one motivational quote.
func planResponseSchema() *llm.Schema {
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"gia": {
				Type:        llm.TypeObject,
				Description: "The single Greatest Impact Activity for today",
				Properties: map[string]*llm.Schema{
					"task":   {Type: llm.TypeString, Description: "The task itself, phrased as an action"},
					"reason": {Type: llm.TypeString, Description: "Why this is today's highest-impact task"},
				},
				Required: []string{"task", "reason"},
			},
			"otherTasks": {
				Type:        llm.TypeArray,
				Description: "2-4 small supporting tasks",
				Items: &llm.Schema{
					Type: llm.TypeObject,
					Properties: map[string]*llm.Schema{
						"task": {Type: llm.TypeString},
					},
					Required: []string{"task"},
				},
			},
			"motivationalQuote": {
				Type:        llm.TypeString,
				Description: "One short motivational quote for the day",
			},
		},
		Required: []string{"gia", "otherTasks", "motivationalQuote"},
	}
}

// buildPlanPrompt embeds the goal, identity, free-text context, and
// prior-day summary into the plan request.
func buildPlanPrompt(profile plan.UserProfile, goal plan.Goal, prevTasks, prevReflection string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Goal: %s\n", goal.Title)
	fmt.Fprintf(&b, "Identity: %s\n", profile.Identity)
	if profile.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", profile.Context)
	}
	if prevTasks != "" {
		fmt.Fprintf(&b, "\nYesterday's tasks: %s\n", prevTasks)
	}
	if prevReflection != "" {
		fmt.Fprintf(&b, "Yesterday's reflection: %s\n", prevReflection)
	}
	b.WriteString("\nGenerate today's plan: one Greatest Impact Activity (with the reason it matters most), " +
		"2-4 small supporting tasks, and one motivational quote.")

	return b.String()
}

// buildReflectionPrompt summarizes the day's plan outcome and the user's
// free-text reflection.
func buildReflectionPrompt(profile plan.UserProfile, goal plan.Goal, dayPlan plan.DailyPlan, reflection string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Goal: %s\n", goal.Title)
	fmt.Fprintf(&b, "Identity: %s\n", profile.Identity)
	fmt.Fprintf(&b, "Today's plan outcome: %s\n", dayPlan.Summary())
	fmt.Fprintf(&b, "\nThe user's reflection on the day: %s\n", reflection)
	b.WriteString("\nWrite a short, supportive response.")

	return b.String()
}
