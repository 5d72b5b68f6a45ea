// Package core provides the upload workflow for the document parser UI.
//
// This package owns everything between "the user picked a file" and "the
// page shows parsed rows", independent of any UI or transport layer. It can
// be driven by web handlers, CLI tools, or tests without modification.
//
// # State and Transitions
//
// A [State] holds the four pieces of workflow state: the selected [File],
// its [PreviewRef], the parsed [Row] sequence, and the current [Error]. The
// functions [Select], [Refuse], [Begin], [Succeed], [Reject], [Fail] and
// [Clear] are pure: they take a State and return the next one, so every
// path can be tested without a rendering layer or a network.
//
// # Workflow
//
// [Workflow] is the controller a session holds. It applies transitions under
// a mutex, issues and releases preview handles in a [PreviewStore], and calls
// a [Parser] for submissions. The parse call is the only blocking step and
// runs without the lock held. A second submit while one is outstanding fails
// with [ErrSubmitInFlight].
//
//	wf := core.NewWorkflow(client, previews, core.WithLimiter(limiter))
//	wf.SelectFile(ctx, core.File{Name: "a.png", MediaType: "image/png", Data: data})
//	state, err := wf.Submit(ctx)
//
// # Error Handling
//
// Failures keep one of three kinds: [KindValidation] (file refused before
// any network call), [KindApplication] (the parser answered success=false)
// and [KindTransport] (network failure, timeout, non-success status or a
// malformed body). All three surface as a single message in [State.ErrorText].
// [MapError] maps any error to a coded [UserMessage] for HTTP responses.
package core
