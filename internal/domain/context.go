package domain

import "context"

type triggerKey struct{}

// Trigger identifies who or what started an execution.
type Trigger struct {
	By   string // user name, "scheduler", "api"
	Type string // TriggerTypeManual or TriggerTypeScheduled
}

// WithTrigger stores a Trigger in the context.
func WithTrigger(ctx context.Context, t Trigger) context.Context {
	return context.WithValue(ctx, triggerKey{}, t)
}

// TriggerFromContext extracts the Trigger from the context.
func TriggerFromContext(ctx context.Context) (Trigger, bool) {
	t, ok := ctx.Value(triggerKey{}).(Trigger)
	return t, ok
}
