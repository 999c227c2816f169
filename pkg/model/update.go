package model

// UpdateKind tags a canonical update.
type UpdateKind int

const (
	KindFullReplica UpdateKind = iota
	KindRegionPatch
)

func (k UpdateKind) String() string {
	switch k {
	case KindFullReplica:
		return "full_replica"
	case KindRegionPatch:
		return "region_patch"
	}
	return "unknown"
}

// Region is one named, ordered partition of the board.
type Region struct {
	Title string `json:"title"`
	// Count is the badge value. Nil when the source did not provide one.
	Count *int `json:"count,omitempty"`
	// Content is the serialized region body compared for write-skipping.
	Content string `json:"content"`
	Items   []Item `json:"items,omitempty"`
}

// Document is a whole replica as delivered by a full snapshot.
type Document struct {
	Markup  string   `json:"markup,omitempty"`
	Regions []Region `json:"regions"`
}

// RegionUpdate replaces one region of the board, addressed by position.
type RegionUpdate struct {
	Index   int
	Count   *int
	Title   string
	Content string
	Items   []Item
}

// Update is the canonical form of every payload from either transport.
// Document is set for KindFullReplica, Regions for KindRegionPatch.
type Update struct {
	Kind     UpdateKind
	Document Document
	Regions  []RegionUpdate
}

func FullReplica(doc Document) Update {
	return Update{Kind: KindFullReplica, Document: doc}
}

func RegionPatch(regions ...RegionUpdate) Update {
	return Update{Kind: KindRegionPatch, Regions: regions}
}

// IntPtr is a small helper for optional counts.
func IntPtr(v int) *int {
	return &v
}
