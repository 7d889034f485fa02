package target

import (
	"context"
	"sync"
)

type fill struct {
	ref   string
	value string
	keys  bool
}

type indication struct {
	refs []string
	ind  Indication
}

// fakeDoc applies fills to its records so later snapshots see them.
type fakeDoc struct {
	mu          sync.Mutex
	records     []Record
	fills       []fill
	indications []indication
	err         error

	// block, when set, is waited on inside Candidates.
	block   chan struct{}
	entered chan struct{}
}

func (d *fakeDoc) Candidates(ctx context.Context) ([]Record, error) {
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	out := make([]Record, len(d.records))
	copy(out, d.records)
	return out, nil
}

func (d *fakeDoc) Fill(_ context.Context, ref, value string, opts FillOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fills = append(d.fills, fill{ref: ref, value: value, keys: opts.KeyEvents})
	for i := range d.records {
		if d.records[i].Ref == ref {
			d.records[i].Value = value
		}
	}
	return nil
}

func (d *fakeDoc) Indicate(_ context.Context, refs []string, ind Indication) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.indications = append(d.indications, indication{refs: refs, ind: ind})
	return nil
}

func (d *fakeDoc) value(ref string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.records {
		if r.Ref == ref {
			return r.Value
		}
	}
	return ""
}

func textInput(ref string) Record {
	return Record{
		Ref:        ref,
		Tag:        "input",
		Type:       "text",
		Visible:    true,
		InViewport: true,
		Rect:       Rect{Width: 120, Height: 24},
	}
}

func digitBoxes(n int) []Record {
	var out []Record
	for i := 0; i < n; i++ {
		r := textInput(string(rune('a' + i)))
		r.MaxLength = 1
		r.Rect.Left = float64(i * 40)
		out = append(out, r)
	}
	return out
}
