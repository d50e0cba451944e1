package application

import (
	"sync"

	"github.com/ark-network/pls/pkg/protocol"
)

const (
	maxPendingNegotiations = 1024
	maxPendingApprovals    = 64
)

// pendingApprovals keeps approvals that arrived before their request. They
// are keyed by the id of the approved request, or by the file hash when the
// approval does not reference one.
type pendingApprovals struct {
	lock      sync.Mutex
	approvals map[string][]protocol.ContractApproval
}

func newPendingApprovals() *pendingApprovals {
	return &pendingApprovals{
		approvals: make(map[string][]protocol.ContractApproval),
	}
}

func (m *pendingApprovals) push(key string, approval protocol.ContractApproval) {
	m.lock.Lock()
	defer m.lock.Unlock()

	list, ok := m.approvals[key]
	if !ok && len(m.approvals) >= maxPendingNegotiations {
		return
	}
	if len(list) >= maxPendingApprovals {
		return
	}
	m.approvals[key] = append(list, approval)
}

func (m *pendingApprovals) pop(key string) []protocol.ContractApproval {
	m.lock.Lock()
	defer m.lock.Unlock()

	list := m.approvals[key]
	delete(m.approvals, key)
	return list
}

func (m *pendingApprovals) len() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	count := 0
	for _, list := range m.approvals {
		count += len(list)
	}
	return count
}

// outbox holds signed events no relay acknowledged yet.
type outbox struct {
	lock   sync.RWMutex
	events map[string]protocol.VerifiedEvent
}

func newOutbox() *outbox {
	return &outbox{events: make(map[string]protocol.VerifiedEvent)}
}

func (o *outbox) add(event protocol.VerifiedEvent) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.events[event.ID()] = event
}

func (o *outbox) remove(id string) {
	o.lock.Lock()
	defer o.lock.Unlock()
	delete(o.events, id)
}

func (o *outbox) list() []protocol.VerifiedEvent {
	o.lock.RLock()
	defer o.lock.RUnlock()

	events := make([]protocol.VerifiedEvent, 0, len(o.events))
	for _, event := range o.events {
		events = append(events, event)
	}
	return events
}

func (o *outbox) len() int {
	o.lock.RLock()
	defer o.lock.RUnlock()
	return len(o.events)
}
