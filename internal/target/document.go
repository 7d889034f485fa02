package target

import "context"

// Indication is the visual feedback shown on a page.
type Indication string

const (
	// IndicateFilled flashes the fields that received the code.
	IndicateFilled Indication = "filled"
	// IndicateNotFound marks candidate fields when no code was found.
	// With no refs the Document shows a page-level toast instead.
	IndicateNotFound Indication = "not-found"
)

// FillOptions tunes how a value is written.
type FillOptions struct {
	// KeyEvents adds keydown, keypress and keyup around the input events,
	// as segmented widgets advance focus on key events.
	KeyEvents bool
}

// Document is a live or static page that can be inspected and written to.
type Document interface {
	// Candidates snapshots the page's interactive elements in document order.
	Candidates(ctx context.Context) ([]Record, error)

	// Fill writes value into the element behind ref and fires the input
	// lifecycle events (focus, input, change, blur).
	Fill(ctx context.Context, ref, value string, opts FillOptions) error

	// Indicate shows feedback on the given fields.
	Indicate(ctx context.Context, refs []string, ind Indication) error
}
