package replica

import (
	"reflect"
	"testing"

	"github.com/astromechza/livesync/pkg/model"
)

func recorder(r *Replica) *[]Change {
	var got []Change
	r.Subscribe(func(c Change) { got = append(got, c) })
	return &got
}

func TestNewIsSeeded(t *testing.T) {
	doc := New().Snapshot()
	if len(doc.Regions) != 3 {
		t.Fatalf("regions = %d", len(doc.Regions))
	}
	for i, st := range model.Statuses {
		if doc.Regions[i].Title != st.Title() || *doc.Regions[i].Count != 0 {
			t.Errorf("region %d = %+v", i, doc.Regions[i])
		}
	}
}

func TestApplyPatchIdempotent(t *testing.T) {
	r := New()
	got := recorder(r)
	patch := []model.RegionUpdate{{Index: 1, Count: model.IntPtr(2), Content: "<li>a</li><li>b</li>"}}

	first := r.ApplyPatch(patch)
	second := r.ApplyPatch(patch)

	if !reflect.DeepEqual(first.Regions, []int{1}) {
		t.Errorf("first write = %v", first.Regions)
	}
	if len(second.Regions) != 0 {
		t.Errorf("second write = %v", second.Regions)
	}
	if len(*got) != 1 {
		t.Errorf("notifications = %d, want 1", len(*got))
	}
}

func TestApplyPatchBadgeGatedIndependently(t *testing.T) {
	r := New()
	r.ApplyPatch([]model.RegionUpdate{{Index: 0, Count: model.IntPtr(1), Content: "x"}})
	got := recorder(r)

	tests := []struct {
		name   string
		update model.RegionUpdate
		wrote  bool
		count  int
		body   string
	}{
		{"badge only", model.RegionUpdate{Index: 0, Count: model.IntPtr(5), Content: "x"}, true, 5, "x"},
		{"content only", model.RegionUpdate{Index: 0, Count: model.IntPtr(5), Content: "y"}, true, 5, "y"},
		{"nil count keeps badge", model.RegionUpdate{Index: 0, Content: "y"}, false, 5, "y"},
		{"same", model.RegionUpdate{Index: 0, Count: model.IntPtr(5), Content: "y"}, false, 5, "y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(*got)
			ch := r.ApplyPatch([]model.RegionUpdate{tt.update})
			if (len(ch.Regions) > 0) != tt.wrote {
				t.Errorf("wrote = %v, want %v", ch.Regions, tt.wrote)
			}
			if notified := len(*got) > before; notified != tt.wrote {
				t.Errorf("notified = %v", notified)
			}
			region := r.Snapshot().Regions[0]
			if *region.Count != tt.count || region.Content != tt.body {
				t.Errorf("region = %+v", region)
			}
		})
	}
}

func TestApplyPatchLeavesOtherRegions(t *testing.T) {
	r := New()
	r.ApplyPatch([]model.RegionUpdate{
		{Index: 0, Count: model.IntPtr(1), Content: "a"},
		{Index: 2, Count: model.IntPtr(1), Content: "c"},
	})
	r.ApplyPatch([]model.RegionUpdate{{Index: 1, Count: model.IntPtr(3), Content: "b"}})

	doc := r.Snapshot()
	for i, want := range []string{"a", "b", "c"} {
		if doc.Regions[i].Content != want {
			t.Errorf("region %d content = %q, want %q", i, doc.Regions[i].Content, want)
		}
	}
}

func TestApplyPatchIgnoresOutOfRange(t *testing.T) {
	r := New()
	got := recorder(r)
	ch := r.ApplyPatch([]model.RegionUpdate{
		{Index: -1, Content: "neg"},
		{Index: 3, Content: "past"},
	})
	if len(ch.Regions) != 0 || len(*got) != 0 {
		t.Errorf("change = %+v notifications = %d", ch, len(*got))
	}
	if len(r.Snapshot().Regions) != 3 {
		t.Errorf("patcher must not invent regions")
	}
}

func TestFullThenPatch(t *testing.T) {
	r := New()
	got := recorder(r)
	r.Apply(model.FullReplica(model.Document{
		Markup: "<html></html>",
		Regions: []model.Region{
			{Title: "Only", Count: model.IntPtr(0), Content: ""},
			{Title: "Two", Count: model.IntPtr(0), Content: ""},
		},
	}))
	r.Apply(model.RegionPatch(
		model.RegionUpdate{Index: 1, Count: model.IntPtr(1), Content: "<div>t</div>"},
		model.RegionUpdate{Index: 2, Count: model.IntPtr(1), Content: "gone"},
	))

	doc := r.Snapshot()
	if len(doc.Regions) != 2 || doc.Markup != "<html></html>" {
		t.Fatalf("doc = %+v", doc)
	}
	if doc.Regions[1].Content != "<div>t</div>" || *doc.Regions[1].Count != 1 {
		t.Errorf("region 1 = %+v", doc.Regions[1])
	}
	if len(*got) != 2 || (*got)[0].Kind != model.KindFullReplica || !reflect.DeepEqual((*got)[1].Regions, []int{1}) {
		t.Errorf("changes = %+v", *got)
	}
}

func TestApplyFullAlwaysNotifies(t *testing.T) {
	r := New()
	got := recorder(r)
	doc := r.Snapshot()
	r.ApplyFull(doc)
	r.ApplyFull(doc)
	if len(*got) != 2 {
		t.Errorf("notifications = %d, want 2", len(*got))
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	r := New()
	r.ApplyPatch([]model.RegionUpdate{{Index: 0, Count: model.IntPtr(1), Content: "a", Items: []model.Item{{Name: "one"}}}})
	snap := r.Snapshot()
	*snap.Regions[0].Count = 99
	snap.Regions[0].Items[0].Name = "mutated"
	snap.Regions[0].Content = "b"

	again := r.Snapshot()
	if *again.Regions[0].Count != 1 || again.Regions[0].Items[0].Name != "one" || again.Regions[0].Content != "a" {
		t.Errorf("replica leaked through snapshot: %+v", again.Regions[0])
	}
}

func TestUnsubscribe(t *testing.T) {
	r := New()
	calls := 0
	stop := r.Subscribe(func(Change) { calls++ })
	r.ApplyPatch([]model.RegionUpdate{{Index: 0, Content: "a"}})
	stop()
	r.ApplyPatch([]model.RegionUpdate{{Index: 0, Content: "b"}})
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}

func TestRestore(t *testing.T) {
	r := New()
	r.Restore(model.Document{})
	if len(r.Snapshot().Regions) != 3 {
		t.Errorf("empty restore must keep seed")
	}
	r.Restore(model.Document{Regions: []model.Region{{Title: "In Progress", Content: "saved"}}})
	if got := r.Snapshot(); len(got.Regions) != 1 || got.Regions[0].Content != "saved" {
		t.Errorf("restored = %+v", got)
	}
}
