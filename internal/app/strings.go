package app

// Strings is an insertion ordered set.
type Strings struct {
	items []string
	seen  map[string]struct{}
}

// Add appends every value not already present.
func (s *Strings) Add(values ...string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

func (s *Strings) Contains(v string) bool {
	_, ok := s.seen[v]
	return ok
}

func (s *Strings) Len() int { return len(s.items) }

// Slice returns a copy of the values in insertion order.
func (s *Strings) Slice() []string {
	return append([]string(nil), s.items...)
}
