package agentloop

import "context"

// ScrollDirection selects which way Scroll moves the viewport.
type ScrollDirection string

const (
	ScrollUp   ScrollDirection = "up"
	ScrollDown ScrollDirection = "down"
)

// ScrollProgress describes the viewport position on the current page.
type ScrollProgress struct {
	Fraction float64 // 0..1
	Offset   int     // scroll-y in pixels
	Total    int     // scroll height in pixels
}

// Actuator drives a browser. Every action method blocks until the page has
// settled and returns an error describing why the action failed.
type Actuator interface {
	Visit(ctx context.Context, url string) error
	Scroll(ctx context.Context, direction ScrollDirection) error
	Click(ctx context.Context, elementID int) error
	Type(ctx context.Context, elementID int, text string, submit bool) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error

	// Location returns the current URL.
	Location(ctx context.Context) (string, error)
	ScrollProgress(ctx context.Context) (ScrollProgress, error)

	// VisibleElements renders what is currently in the viewport, with
	// interactive elements numbered. An empty string means nothing is visible.
	VisibleElements(ctx context.Context) (string, error)
}

// Resetter is implemented by actuators that can return to a blank state
// between objectives.
type Resetter interface {
	Reset(ctx context.Context) error
}
