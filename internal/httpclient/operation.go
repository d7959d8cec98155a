package httpclient

import "context"

type operationKey struct{}

// defaultOperation labels retries/metrics for requests that never called
// WithOperation — callers that only depend on the Doer interface and skip
// tagging (mostly in tests).
const defaultOperation = "http_request"

// WithOperation tags ctx with the name of the outbound call being made
// (e.g. "ci_dispatch", "identity_auth") so ResilientClient.Do can label its
// retry and circuit-breaker metrics by call site instead of lumping every
// collaborator under one counter.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationKey{}, operation)
}

func operationFromContext(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok && op != "" {
		return op
	}
	return defaultOperation
}
