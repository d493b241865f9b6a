package store

import (
	"sync"

	meridia "github.com/yoku-app/MERIDIA"
)

type OrganisationState struct {
	Active  *meridia.Organisation
	Default *meridia.Organisation
	List    []meridia.Organisation
}

// OrganisationStore holds the organisations of the signed-in user and the
// one currently acted on.
type OrganisationStore struct {
	mu       sync.RWMutex
	list     []meridia.Organisation
	activeID string
	defID    string
	subs     observers[OrganisationState]
}

func NewOrganisationStore() *OrganisationStore { return &OrganisationStore{} }

func (s *OrganisationStore) find(id string) *meridia.Organisation {
	for i := range s.list {
		if s.list[i].ID == id {
			o := s.list[i]
			return &o
		}
	}
	return nil
}

func (s *OrganisationStore) snapshot() OrganisationState {
	return OrganisationState{
		Active:  s.find(s.activeID),
		Default: s.find(s.defID),
		List:    append([]meridia.Organisation(nil), s.list...),
	}
}

func (s *OrganisationStore) update(fn func() error) error {
	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	st := s.snapshot()
	s.mu.Unlock()
	s.subs.notify(st)
	return nil
}

// SetOrganisations replaces the list. Active and default selections that
// are no longer listed are dropped.
func (s *OrganisationStore) SetOrganisations(list []meridia.Organisation) {
	s.update(func() error {
		s.list = append([]meridia.Organisation(nil), list...)
		if s.find(s.activeID) == nil {
			s.activeID = ""
		}
		if s.find(s.defID) == nil {
			s.defID = ""
		}
		return nil
	})
}

// Add appends a newly created organisation, replacing one with the same id.
func (s *OrganisationStore) Add(org meridia.Organisation) {
	s.update(func() error {
		for i := range s.list {
			if s.list[i].ID == org.ID {
				s.list[i] = org
				return nil
			}
		}
		s.list = append(s.list, org)
		return nil
	})
}

func (s *OrganisationStore) SetActive(id string) error {
	return s.update(func() error {
		if s.find(id) == nil {
			return meridia.ErrNotFound
		}
		s.activeID = id
		return nil
	})
}

func (s *OrganisationStore) SetDefault(id string) error {
	return s.update(func() error {
		if s.find(id) == nil {
			return meridia.ErrNotFound
		}
		s.defID = id
		return nil
	})
}

// Active returns the active organisation, falling back to the default.
func (s *OrganisationStore) Active() (meridia.Organisation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if o := s.find(s.activeID); o != nil {
		return *o, true
	}
	if o := s.find(s.defID); o != nil {
		return *o, true
	}
	return meridia.Organisation{}, false
}

func (s *OrganisationStore) State() OrganisationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

func (s *OrganisationStore) Clear() {
	s.update(func() error {
		s.list, s.activeID, s.defID = nil, "", ""
		return nil
	})
}

func (s *OrganisationStore) Subscribe(fn func(OrganisationState)) (unsubscribe func()) {
	return s.subs.add(fn)
}
