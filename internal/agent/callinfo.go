package agent

import "context"

// CallInfo labels invocations for logs, metrics and call records.
type CallInfo struct {
	Agent     string
	RunID     string // refinement run, empty outside refinement
	Iteration int
	Attempt   int
}

type callInfoKey struct{}

// WithCallInfo returns a context carrying info.
func WithCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, info)
}

// CallInfoFrom returns the CallInfo in ctx. Attempt defaults to 1.
func CallInfoFrom(ctx context.Context) CallInfo {
	info, _ := ctx.Value(callInfoKey{}).(CallInfo)
	if info.Attempt == 0 {
		info.Attempt = 1
	}
	return info
}
