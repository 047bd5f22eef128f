// Package store provides keyed hierarchical storage for user data,
// addressed the way the hosted database lays it out:
// users/{userId}/profile, users/{userId}/goal,
// users/{userId}/dailyPlans/{date}, users/{userId}/dailyReflections/{date}.
// Date segments are YYYY-MM-DD keys whose lexicographic order is
// chronological, which makes the latest-before range query a simple ordered
// scan.
package store

import (
	"context"
	"errors"

	"momentum/pkg/plan"
)

// ErrNotFound is returned by point reads with no stored value.
var ErrNotFound = errors.New("not found")

// Store is the data-store boundary. Domain entities are owned by the store;
// the rest of the app only holds transient in-memory copies.
type Store interface {
	// Profile and goal are point read / full overwrite.
	GetProfile(ctx context.Context, userID string) (plan.UserProfile, error)
	PutProfile(ctx context.Context, userID string, profile plan.UserProfile) error
	GetGoal(ctx context.Context, userID string) (plan.Goal, error)
	PutGoal(ctx context.Context, userID string, goal plan.Goal) error

	// Daily plans: point read/write by date, a merge update for a single
	// task's completion flag, and a range query for the most recent plan
	// strictly before a date.
	GetDailyPlan(ctx context.Context, userID, date string) (plan.DailyPlan, error)
	PutDailyPlan(ctx context.Context, userID string, p plan.DailyPlan) error
	SetTaskCompleted(ctx context.Context, userID, date, taskID string, completed bool) error
	LatestPlanBefore(ctx context.Context, userID, date string) (plan.DailyPlan, error)

	// Reflections: point read/write by date.
	GetReflection(ctx context.Context, userID, date string) (plan.DailyReflection, error)
	PutReflection(ctx context.Context, userID, date string, r plan.DailyReflection) error

	Close() error
}
