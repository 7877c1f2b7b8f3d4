package population

import "context"

// Launcher opens a fresh automation session. One session is opened per fetch.
type Launcher interface {
	Open(ctx context.Context) (Session, error)
}

// Session owns the browser process. Close must be safe to call more than
// once and must never block longer than its own close timeout.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close()
}

// Page is the subset of a browser tab the fetch loop drives. Every method
// honours ctx for cancellation.
type Page interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// HTML returns a snapshot of the rendered document.
	HTML(ctx context.Context) (string, error)

	// Value returns the live value property of the first element matching
	// selector, or "" when no element matches.
	Value(ctx context.Context, selector string) (string, error)

	// WaitElement blocks until selector matches at least one element.
	WaitElement(ctx context.Context, selector string) error

	// Click clicks selector unless it is missing or carries the "disabled"
	// class. It reports whether a click happened.
	Click(ctx context.Context, selector string) (bool, error)

	// SelectValue sets a <select> to value and fires its change event.
	SelectValue(ctx context.Context, selector, value string) (bool, error)

	// WaitSettled waits until the DOM stops changing.
	WaitSettled(ctx context.Context) error

	// Observe calls fn once for every finished or failed network response
	// whose URL satisfies match. The returned stop function detaches it.
	Observe(match func(url string) bool, fn func(ObservedResponse)) (stop func(), err error)

	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
}

// ObservedResponse is a network response seen by Page.Observe.
type ObservedResponse struct {
	URL      string
	Status   int
	MIMEType string
	Body     []byte

	// Err is set when the request failed or its body could not be read.
	Err error
}
