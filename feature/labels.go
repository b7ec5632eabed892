package feature

// Labels tracks an ordered slice of features and the index of each by name. The order matches the
// column order of the feature matrix.
type Labels struct {
	idx    map[string]int
	labels []Feature
}

func NewLabels(labels []Feature) *Labels {
	idx := make(map[string]int)
	for i := 0; i < len(labels); i++ {
		idx[labels[i].String()] = i
	}
	fl := &Labels{
		labels: labels,
		idx:    idx,
	}
	return fl
}

func (f *Labels) Len() int {
	if f == nil {
		return 0
	}
	return len(f.labels)
}

func (f *Labels) Labels() []Feature {
	labels := make([]Feature, len(f.labels))
	copy(labels, f.labels)
	return labels
}

// Names returns the column names in order.
func (f *Labels) Names() []string {
	names := make([]string, len(f.labels))
	for i, l := range f.labels {
		names[i] = l.String()
	}
	return names
}

func (f *Labels) Index(name string) (int, bool) {
	if idx, exists := f.idx[name]; exists {
		return idx, exists
	}
	return -1, false
}

func (f *Labels) append(label Feature) int {
	f.idx[label.String()] = len(f.labels)
	f.labels = append(f.labels, label)
	return len(f.labels) - 1
}
