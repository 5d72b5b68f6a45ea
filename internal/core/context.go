package core

import "context"

type contextKey string

const ctxKeyWorkflow contextKey = "workflow"

// ContextWithWorkflow attaches a session's workflow to ctx.
func ContextWithWorkflow(ctx context.Context, wf *Workflow) context.Context {
	return context.WithValue(ctx, ctxKeyWorkflow, wf)
}

// WorkflowFromContext returns the workflow attached by ContextWithWorkflow.
func WorkflowFromContext(ctx context.Context) (*Workflow, bool) {
	wf, ok := ctx.Value(ctxKeyWorkflow).(*Workflow)
	return wf, ok && wf != nil
}
