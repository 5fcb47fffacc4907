// Package channel implements the kernel's named multi-participant routes.
// A channel is owned by one subsystem; sending to its route fans the
// message out to every participant's subsystem accept path, with no
// replication of identity — each participant sees the original caller.
package channel

import (
	"fmt"
	"sync"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/message"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/principal"
)

// ErrEmptyName is returned for a blank channel local name.
var ErrEmptyName = fmt.Errorf("channel: local name must not be empty")

// ErrReservedName is returned for a local name that collides with a
// reserved route segment.
var ErrReservedName = fmt.Errorf("channel: name is reserved")

// ErrUnknownChannel is returned by operations against a route that was
// never created (or has since been destroyed).
var ErrUnknownChannel = fmt.Errorf("channel: no channel for route")

var reservedNames = map[string]bool{
	"query": true, "command": true, "event": true, "channel": true,
}

// Channel is a named multi-participant route.
type Channel struct {
	Route        string
	Owner        string
	Participants []principal.PKR
	Metadata     map[string]interface{}
}

// Dispatcher delivers a message to one participant's subsystem accept
// path. The kernel supplies this when constructing a Manager so the
// channel package never has to import the kernel package back.
type Dispatcher func(participant principal.PKR, msg *message.Message) (interface{}, error)

// Manager creates, destroys, and fans out to channels.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	dispatch Dispatcher
}

// NewManager constructs a channel manager that delivers fan-out sends
// through dispatch.
func NewManager(dispatch Dispatcher) *Manager {
	return &Manager{channels: make(map[string]*Channel), dispatch: dispatch}
}

// CreateOptions configures Create.
type CreateOptions struct {
	Participants []principal.PKR
	Metadata     map[string]interface{}
}

// Create registers a channel owned by owner, reachable at
// "<owner>://channel/<localName>".
func (m *Manager) Create(owner, localName string, opts CreateOptions) (*Channel, error) {
	if localName == "" {
		return nil, ErrEmptyName
	}
	if reservedNames[localName] {
		return nil, ErrReservedName
	}

	route := fmt.Sprintf("%s://channel/%s", owner, localName)

	m.mu.Lock()
	defer m.mu.Unlock()

	ch := &Channel{
		Route:        route,
		Owner:        owner,
		Participants: append([]principal.PKR(nil), opts.Participants...),
		Metadata:     opts.Metadata,
	}
	m.channels[route] = ch
	return ch, nil
}

// Destroy removes a channel. Symmetric with Create even though spec
// prose only elaborates creation (SPEC_FULL supplementary feature).
func (m *Manager) Destroy(route string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[route]; !ok {
		return ErrUnknownChannel
	}
	delete(m.channels, route)
	return nil
}

// Get returns the channel registered at route.
func (m *Manager) Get(route string) (*Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[route]
	return ch, ok
}

// AddParticipant appends a participant to an existing channel.
func (m *Manager) AddParticipant(route string, p principal.PKR) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[route]
	if !ok {
		return ErrUnknownChannel
	}
	ch.Participants = append(ch.Participants, p)
	return nil
}

// FanOutResult is one participant's delivery outcome.
type FanOutResult struct {
	Participant principal.PKR
	Result      interface{}
	Err         error
}

// Send delivers msg to every participant of the channel at route,
// invoking the Dispatcher once per participant. Channel delivery law:
// for a channel with N participants, exactly N handler invocations
// result from one Send call.
func (m *Manager) Send(route string, msg *message.Message) ([]FanOutResult, error) {
	m.mu.RLock()
	ch, ok := m.channels[route]
	var participants []principal.PKR
	if ok {
		participants = append([]principal.PKR(nil), ch.Participants...)
	}
	m.mu.RUnlock()

	if !ok {
		return nil, ErrUnknownChannel
	}

	results := make([]FanOutResult, len(participants))
	for i, p := range participants {
		res, err := m.dispatch(p, msg)
		results[i] = FanOutResult{Participant: p, Result: res, Err: err}
	}
	return results, nil
}
