package services

import "context"

type contextKey string

const (
	cycleIDKey  contextKey = "cycle_id"
	boardKey    contextKey = "board"
	operatorKey contextKey = "operator"
	requestKey  contextKey = "request_id"
)

// WithCycleID annotates context with the work-cycle identifier.
func WithCycleID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, cycleIDKey, id)
}

// CycleIDFromContext extracts the work-cycle identifier if present.
func CycleIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(cycleIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithBoard annotates context with the selected board type.
func WithBoard(ctx context.Context, board string) context.Context {
	if board == "" {
		return ctx
	}
	return context.WithValue(ctx, boardKey, board)
}

// BoardFromContext returns the board type if present.
func BoardFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(boardKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithOperator annotates context with the logged-in operator identifier.
func WithOperator(ctx context.Context, operatorID string) context.Context {
	if operatorID == "" {
		return ctx
	}
	return context.WithValue(ctx, operatorKey, operatorID)
}

// OperatorFromContext returns the operator identifier if present.
func OperatorFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(operatorKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier for IPC requests.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
