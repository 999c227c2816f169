// Package replica holds the local copy of the board and applies canonical
// updates to it. There is a single writer; any number of readers take
// snapshots.
package replica

import (
	"log/slog"
	"sync"

	"github.com/astromechza/livesync/pkg/model"
)

// Change describes one applied write.
type Change struct {
	Kind model.UpdateKind
	// Regions lists the region indices whose content or badge was written.
	// Every region for a full replacement.
	Regions []int
}

type Replica struct {
	mu  sync.RWMutex
	doc model.Document

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// New returns a replica seeded with one empty region per status so patches
// apply before any full snapshot arrives.
func New() *Replica {
	regions := make([]model.Region, len(model.Statuses))
	for i, st := range model.Statuses {
		regions[i] = model.Region{Title: st.Title(), Count: model.IntPtr(0)}
	}
	return &Replica{
		doc:  model.Document{Regions: regions},
		subs: make(map[int]func(Change)),
	}
}

// Apply dispatches on the update kind.
func (r *Replica) Apply(u model.Update) Change {
	if u.Kind == model.KindFullReplica {
		return r.ApplyFull(u.Document)
	}
	return r.ApplyPatch(u.Regions)
}

// ApplyFull replaces the replica wholesale. It always notifies.
func (r *Replica) ApplyFull(doc model.Document) Change {
	doc = clone(doc)
	r.mu.Lock()
	r.doc = doc
	r.mu.Unlock()

	ch := Change{Kind: model.KindFullReplica, Regions: make([]int, len(doc.Regions))}
	for i := range doc.Regions {
		ch.Regions[i] = i
	}
	r.notify(ch)
	return ch
}

// ApplyPatch writes each region whose content differs and each badge whose
// count differs. Indices outside the current region list are ignored. A patch
// that writes nothing fires no notification.
func (r *Replica) ApplyPatch(updates []model.RegionUpdate) Change {
	ch := Change{Kind: model.KindRegionPatch}

	r.mu.Lock()
	for _, u := range updates {
		if u.Index < 0 || u.Index >= len(r.doc.Regions) {
			slog.Debug("ignoring patch for unknown region", "index", u.Index, "regions", len(r.doc.Regions))
			continue
		}
		region := &r.doc.Regions[u.Index]
		wrote := false
		if region.Content != u.Content {
			region.Content = u.Content
			region.Items = append([]model.Item(nil), u.Items...)
			if u.Title != "" {
				region.Title = u.Title
			}
			wrote = true
		}
		if u.Count != nil && (region.Count == nil || *region.Count != *u.Count) {
			region.Count = model.IntPtr(*u.Count)
			wrote = true
		}
		if wrote {
			ch.Regions = append(ch.Regions, u.Index)
		}
	}
	r.mu.Unlock()

	if len(ch.Regions) > 0 {
		r.notify(ch)
	}
	return ch
}

// Restore seeds the replica from a persisted snapshot.
func (r *Replica) Restore(doc model.Document) {
	if len(doc.Regions) == 0 {
		return
	}
	r.ApplyFull(doc)
}

// Snapshot returns a deep copy of the current replica.
func (r *Replica) Snapshot() model.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.doc)
}

// Subscribe registers fn for every applied change and returns a func that
// removes it. fn runs on the writer's goroutine.
func (r *Replica) Subscribe(fn func(Change)) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.subs, id)
	}
}

func (r *Replica) notify(ch Change) {
	r.subMu.Lock()
	fns := make([]func(Change), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()
	for _, fn := range fns {
		fn(ch)
	}
}

func clone(doc model.Document) model.Document {
	out := model.Document{Markup: doc.Markup, Regions: make([]model.Region, len(doc.Regions))}
	for i, reg := range doc.Regions {
		out.Regions[i] = model.Region{
			Title:   reg.Title,
			Content: reg.Content,
			Items:   append([]model.Item(nil), reg.Items...),
		}
		if reg.Count != nil {
			out.Regions[i].Count = model.IntPtr(*reg.Count)
		}
	}
	return out
}
