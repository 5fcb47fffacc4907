package permission

import (
	"fmt"
	"sync"
)

// Key is the comparable identity permission structures are keyed by.
// The kernel passes the principal's underlying private key (obtained via
// principal.Registry.ResolvePKR) so that RWS membership, like roles,
// survives PKR rotation.
type Key interface{}

// RWS (Reader/Writer/Grantor Set) holds the fine-grained access control
// layer rooted at one resource principal. Writer authority implies
// reader authority; grantor authority is a separate flag carried per
// writer.
type RWS struct {
	mu       sync.RWMutex
	owner    Key
	readers  map[Key]bool
	writers  map[Key]bool
	grantors map[Key]bool
}

func newRWS(owner Key) *RWS {
	return &RWS{
		owner:    owner,
		readers:  make(map[Key]bool),
		writers:  make(map[Key]bool),
		grantors: make(map[Key]bool),
	}
}

// AddReader grants target read authority over the owning resource.
func (s *RWS) AddReader(target Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers[target] = true
	return nil
}

// AddWriter grants target write (and implicitly read) authority.
func (s *RWS) AddWriter(target Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writers[target] = true
	return nil
}

// RemoveWriter revokes write authority. It does not touch the grantor
// flag (see RevokeGrantor) or reader membership; RWS has no operation
// that removes a reader entry.
func (s *RWS) RemoveWriter(target Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.writers, target)
	return nil
}

// SetGrantor marks target as able to grant its own authority onward.
// No reader/writer prerequisite is checked: a grantor need not already
// be a writer, matching the source's looser behavior (a profile can
// apply rwg directly).
func (s *RWS) SetGrantor(target Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grantors[target] = true
	return nil
}

// RevokeGrantor clears the grantor flag without touching writer/reader
// membership (see SPEC_FULL.md).
func (s *RWS) RevokeGrantor(target Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grantors, target)
	return nil
}

// CanRead reports read authority: explicit reader, or any writer (writer
// authority implies reader authority).
func (s *RWS) CanRead(target Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readers[target] || s.writers[target]
}

// CanWrite reports write authority.
func (s *RWS) CanWrite(target Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writers[target]
}

// CanGrant reports grantor authority.
func (s *RWS) CanGrant(target Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grantors[target]
}

// ErrUnknownOwner is returned by RWSStore operations that look up (rather
// than create) a resource's set before it exists.
var ErrUnknownOwner = fmt.Errorf("permission: no RWS for owner")

// RWSStore is the Layer-2 registry of per-resource RWS instances. A
// resource's RWS is created lazily on first access and reused thereafter,
// with convenience wrappers exposing an (owner, target) call shape for
// the mutation operations.
type RWSStore struct {
	mu   sync.RWMutex
	sets map[Key]*RWS
}

// NewRWSStore constructs an empty store.
func NewRWSStore() *RWSStore {
	return &RWSStore{sets: make(map[Key]*RWS)}
}

// RWSFor returns the RWS rooted at owner, creating it on first access.
func (s *RWSStore) RWSFor(owner Key) *RWS {
	s.mu.RLock()
	rws, ok := s.sets[owner]
	s.mu.RUnlock()
	if ok {
		return rws
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rws, ok = s.sets[owner]; ok {
		return rws
	}
	rws = newRWS(owner)
	s.sets[owner] = rws
	return rws
}

// Lookup returns the RWS for owner if one has already been created,
// without creating it.
func (s *RWSStore) Lookup(owner Key) (*RWS, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rws, ok := s.sets[owner]
	return rws, ok
}

func (s *RWSStore) AddReader(owner, target Key) error { return s.RWSFor(owner).AddReader(target) }
func (s *RWSStore) AddWriter(owner, target Key) error { return s.RWSFor(owner).AddWriter(target) }
func (s *RWSStore) RemoveWriter(owner, target Key) error {
	return s.RWSFor(owner).RemoveWriter(target)
}
func (s *RWSStore) SetGrantor(owner, target Key) error    { return s.RWSFor(owner).SetGrantor(target) }
func (s *RWSStore) RevokeGrantor(owner, target Key) error { return s.RWSFor(owner).RevokeGrantor(target) }

func (s *RWSStore) CanRead(owner, target Key) bool {
	rws, ok := s.Lookup(owner)
	return ok && rws.CanRead(target)
}
func (s *RWSStore) CanWrite(owner, target Key) bool {
	rws, ok := s.Lookup(owner)
	return ok && rws.CanWrite(target)
}
func (s *RWSStore) CanGrant(owner, target Key) bool {
	rws, ok := s.Lookup(owner)
	return ok && rws.CanGrant(target)
}
