package server

import (
	"sort"
	"sync"
)

// Source resolves PV names to SharedPVs. A Server consults its sources
// in priority order until one claims the name.
type Source interface {
	// Lookup returns the PV registered under name, if any.
	Lookup(name string) (*SharedPV, bool)
}

// StaticSource is a Source backed by an explicit name -> PV table.
type StaticSource struct {
	mu  sync.RWMutex
	pvs map[string]*SharedPV
}

// NewStaticSource creates an empty static source.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		pvs: make(map[string]*SharedPV),
	}
}

// AddPV registers pv under name. Registering an existing name replaces
// the previous entry without closing it.
func (s *StaticSource) AddPV(name string, pv *SharedPV) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pvs[name] = pv
}

// RemovePV drops the entry for name. The PV itself stays open; removing
// an unknown name is a no-op.
func (s *StaticSource) RemovePV(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pvs, name)
}

// Lookup implements Source.
func (s *StaticSource) Lookup(name string) (*SharedPV, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pv, ok := s.pvs[name]
	return pv, ok
}

// Names returns the registered PV names in sorted order.
func (s *StaticSource) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.pvs))
	for name := range s.pvs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClosePVs closes every registered PV. Entries stay registered so the
// PVs can be reopened later.
func (s *StaticSource) ClosePVs() {
	s.mu.RLock()
	pvs := make([]*SharedPV, 0, len(s.pvs))
	for _, pv := range s.pvs {
		pvs = append(pvs, pv)
	}
	s.mu.RUnlock()

	for _, pv := range pvs {
		pv.Close()
	}
}
