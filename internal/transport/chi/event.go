package chi

import "context"

// eventFields collects values resolved deeper in the handler chain for the wide event.
type eventFields struct {
	tenantID string
}

type eventFieldsKey struct{}

func withEventFields(ctx context.Context, f *eventFields) context.Context {
	return context.WithValue(ctx, eventFieldsKey{}, f)
}

func eventFieldsFrom(ctx context.Context) *eventFields {
	f, _ := ctx.Value(eventFieldsKey{}).(*eventFields)
	return f
}
