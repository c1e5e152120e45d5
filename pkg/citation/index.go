// ABOUTME: First-appearance numbering of citation ids within one render pass
// ABOUTME: Built once per pass instead of scanning the text per occurrence

package citation

// Index numbers citation ids in the order they first appear.
// The zero value is ready to use.
type Index struct {
	order map[string]int
	ids   []string
}

// NewIndex returns an Index pre-populated with ids in order.
func NewIndex(ids ...string) *Index {
	idx := &Index{}
	for _, id := range ids {
		idx.Add(id)
	}
	return idx
}

// Add registers id if unseen and returns its 1-based number.
func (x *Index) Add(id string) int {
	if x.order == nil {
		x.order = make(map[string]int)
	}
	if n, ok := x.order[id]; ok {
		return n
	}
	x.ids = append(x.ids, id)
	n := len(x.ids)
	x.order[id] = n
	return n
}

// Number returns the 1-based number for id, or 0 if it was never added.
func (x *Index) Number(id string) int {
	return x.order[id]
}

// IDs returns the ids in first-appearance order.
func (x *Index) IDs() []string {
	out := make([]string, len(x.ids))
	copy(out, x.ids)
	return out
}

// Len returns the number of distinct ids.
func (x *Index) Len() int {
	return len(x.ids)
}
