package correction

import (
	"slices"
	"sync"
)

// Record pairs a submitted sentence with the oracle's correction.
type Record struct {
	Original  string
	Corrected string
}

// CorrectedSet holds every sentence the engine has already judged in this
// editing session, in both original and corrected form. It only grows.
// It is safe for concurrent use.
type CorrectedSet struct {
	mu      sync.RWMutex
	seen    map[string]struct{}
	records []Record
}

// NewCorrectedSet returns an empty set.
func NewCorrectedSet() *CorrectedSet {
	return &CorrectedSet{seen: make(map[string]struct{})}
}

// Add marks sentences as judged.
func (s *CorrectedSet) Add(sentences ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range sentences {
		s.seen[v] = struct{}{}
	}
}

// Record stores r and marks both of its sentences as judged.
func (s *CorrectedSet) Record(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[r.Original] = struct{}{}
	s.seen[r.Corrected] = struct{}{}
	s.records = append(s.records, r)
}

// Contains reports whether sentence was already judged.
func (s *CorrectedSet) Contains(sentence string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[sentence]
	return ok
}

// Len returns the number of distinct sentences in the set.
func (s *CorrectedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

// Sentences returns the judged sentences in sorted order.
func (s *CorrectedSet) Sentences() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.seen))
	for v := range s.seen {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Records returns the applied corrections in the order they happened.
func (s *CorrectedSet) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}
