// Package htmldoc implements target.Document over a parsed HTML snapshot.
//
// A snapshot has no layout, so document order stands in for horizontal
// position and every visible element is treated as inside the viewport.
// Visibility comes from the hidden attribute, type=hidden and inline
// display, visibility and opacity styles, including those of ancestors.
package htmldoc

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nhle/otp-autofill/internal/target"
)

// StateAttr marks elements that received an indication.
const StateAttr = "data-otpfill"

const toastID = "otpfill-toast"

// nearbyLevels is how many ancestors contribute text to a record.
const nearbyLevels = 3

// Event is one synthesized lifecycle event.
type Event struct {
	Ref  string
	Type string
}

// Document is a mutable HTML snapshot.
type Document struct {
	mu     sync.Mutex
	root   *html.Node
	refs   map[string]*html.Node
	events []Event
}

var _ target.Document = (*Document)(nil)

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return &Document{root: root, refs: make(map[string]*html.Node)}, nil
}

// ParseString is Parse for an in-memory document.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Candidates returns a record for every input, textarea and
// contenteditable element, in document order.
func (d *Document) Candidates(ctx context.Context) ([]target.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	labels := make(map[string]string)
	var elems []*html.Node
	walk(d.root, func(n *html.Node) {
		switch {
		case n.DataAtom == atom.Label:
			if id := attr(n, "for"); id != "" {
				labels[id] += " " + textContent(n)
			}
		case isCandidate(n):
			elems = append(elems, n)
		}
	})

	d.refs = make(map[string]*html.Node, len(elems))
	records := make([]target.Record, 0, len(elems))
	for i, n := range elems {
		ref := "el-" + strconv.Itoa(i)
		d.refs[ref] = n
		records = append(records, d.record(ref, i, n, labels))
	}
	return records, nil
}

func (d *Document) record(ref string, order int, n *html.Node, labels map[string]string) target.Record {
	visible := isVisible(n)
	r := target.Record{
		Ref:             ref,
		Tag:             n.Data,
		Type:            attr(n, "type"),
		ID:              attr(n, "id"),
		Name:            attr(n, "name"),
		Placeholder:     attr(n, "placeholder"),
		Class:           attr(n, "class"),
		AriaLabel:       attr(n, "aria-label"),
		DataTest:        firstNonEmpty(attr(n, "data-cy"), attr(n, "data-test")),
		Autocomplete:    attr(n, "autocomplete"),
		Pattern:         attr(n, "pattern"),
		InputMode:       attr(n, "inputmode"),
		MaxLength:       maxLength(n),
		Value:           value(n),
		NearbyText:      nearby(n),
		Visible:         visible,
		InViewport:      visible,
		Disabled:        hasAttr(n, "disabled"),
		ReadOnly:        hasAttr(n, "readonly"),
		ContentEditable: isContentEditable(n),
	}
	if r.ID != "" {
		r.LabelText = strings.TrimSpace(labels[r.ID])
	}
	if visible {
		r.Rect = target.Rect{Left: float64(order), Width: 1, Height: 1}
	}
	return r
}

// Fill sets the element's value and records the lifecycle events a
// browser would see.
func (d *Document) Fill(ctx context.Context, ref, v string, opts target.FillOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.refs[ref]
	if !ok {
		return fmt.Errorf("unknown element %q", ref)
	}

	if n.DataAtom == atom.Input {
		setAttr(n, "value", v)
	} else {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: v})
	}

	types := []string{"focus", "input", "change"}
	if opts.KeyEvents {
		types = append(types, "keydown", "keypress", "keyup")
	}
	types = append(types, "blur")
	for _, t := range types {
		d.events = append(d.events, Event{Ref: ref, Type: t})
	}
	return nil
}

// Indicate stamps StateAttr on the given elements. Without refs it adds a
// toast element to the body.
func (d *Document) Indicate(ctx context.Context, refs []string, ind target.Indication) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(refs) == 0 {
		d.toast(ind)
		return nil
	}
	for _, ref := range refs {
		n, ok := d.refs[ref]
		if !ok {
			return fmt.Errorf("unknown element %q", ref)
		}
		setAttr(n, StateAttr, string(ind))
	}
	return nil
}

func (d *Document) toast(ind target.Indication) {
	msg := "No verification code found in the most recent email"
	if ind == target.IndicateFilled {
		msg = "Verification code detected and applied"
	}

	parent := findFirst(d.root, atom.Body)
	if parent == nil {
		parent = d.root
	}
	if old := findByID(d.root, toastID); old != nil && old.Parent != nil {
		old.Parent.RemoveChild(old)
	}
	div := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "id", Val: toastID},
			{Key: "role", Val: "status"},
			{Key: StateAttr, Val: string(ind)},
		},
	}
	div.AppendChild(&html.Node{Type: html.TextNode, Data: msg})
	parent.AppendChild(div)
}

// Value returns the current value of the element behind ref.
func (d *Document) Value(ref string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.refs[ref]; ok {
		return value(n)
	}
	return ""
}

// State returns the indication stamped on ref, or "".
func (d *Document) State(ref string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.refs[ref]; ok {
		return attr(n, StateAttr)
	}
	return ""
}

// Toast returns the text of the page-level toast, if one was shown.
func (d *Document) Toast() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := findByID(d.root, toastID); n != nil {
		return textContent(n)
	}
	return ""
}

// Events returns the lifecycle events fired so far.
func (d *Document) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// Render writes the current document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}
