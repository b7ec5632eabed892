package feature

// Drift describes how a feature set differed from a trained schema.
type Drift struct {
	Added     []string `json:"added,omitempty"`
	Dropped   []string `json:"dropped,omitempty"`
	Reordered bool     `json:"reordered,omitempty"`
}

// Nontrivial reports whether columns had to be added or dropped.
func (d Drift) Nontrivial() bool {
	return len(d.Added) > 0 || len(d.Dropped) > 0
}

// Reconcile returns a copy of set laid out exactly as schema. Schema columns missing from set are
// added with their neutral default, columns not in schema are dropped and the result follows the
// schema order.
func Reconcile(set *Set, schema []string) (*Set, Drift) {
	var drift Drift

	inSchema := make(map[string]struct{}, len(schema))
	for _, name := range schema {
		inSchema[name] = struct{}{}
	}
	var kept []string
	for _, name := range set.Names() {
		if _, ok := inSchema[name]; !ok {
			drift.Dropped = append(drift.Dropped, name)
			continue
		}
		kept = append(kept, name)
	}

	out := NewSet()
	m := set.Len()
	var pos int
	for _, name := range schema {
		f, err := Parse(name)
		if err != nil {
			f = NewRaw(name)
		}
		col, exists := set.Get(name)
		if !exists {
			drift.Added = append(drift.Added, name)
			col = make([]float64, m)
			def := f.Default()
			for i := range col {
				col[i] = def
			}
		} else {
			if kept[pos] != name {
				drift.Reordered = true
			}
			pos++
		}
		// every column has m rows
		_ = out.Set(f, col)
	}
	return out, drift
}

// Raw is a column known only by name, typically one recorded in a trained schema that the current
// pipeline does not produce.
type Raw struct {
	Name string `json:"name"`
}

func NewRaw(name string) *Raw {
	return &Raw{name}
}

func (r Raw) String() string {
	return r.Name
}

func (r Raw) Type() FeatureType {
	return FeatureTypeTime
}

func (r Raw) Default() float64 {
	return 0
}
