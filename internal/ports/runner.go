package ports

// Runner is a long-running input adapter: it feeds emails into the
// triage service from some transport until stopped.
type Runner interface {
	// Start begins serving. It must not block.
	Start() error

	// Stop shuts the runner down.
	Stop() error

	// Done is closed once the runner has no more input to serve,
	// whether it ran dry or was stopped.
	Done() <-chan struct{}
}
