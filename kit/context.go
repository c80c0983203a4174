package kit

import "context"

type contextKey string

const (
	UserIDKey      contextKey = "kit_user_id"
	DisplayNameKey contextKey = "kit_display_name"
	ActorIDKey     contextKey = "kit_actor_id"
	TransportKey   contextKey = "kit_transport" // "http", "ws", "mcp"
	TraceIDKey     contextKey = "kit_trace_id"
)

// WithUserID stores the signed-in user id.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

// GetUserID returns the signed-in user id, or "" for anonymous participants.
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

func WithDisplayName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, DisplayNameKey, name)
}

func GetDisplayName(ctx context.Context) string {
	v, _ := ctx.Value(DisplayNameKey).(string)
	return v
}

func WithActorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ActorIDKey, id)
}

func GetActorID(ctx context.Context) string {
	v, _ := ctx.Value(ActorIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}

func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}
