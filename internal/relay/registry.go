package relay

import (
	"sort"
	"sync"
)

// Role is the side a connection plays in a session.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Binding associates a live connection with one session identity.
type Binding struct {
	ConnID        string
	SessionCode   string
	Role          Role
	ParticipantID string
	seq           uint64
}

// ParticipantIndex answers whether a participant is registered in a session.
// The Session Store satisfies it.
type ParticipantIndex interface {
	HasParticipant(code, participantID string) bool
}

// Registry is the Connection Registry: it maps each connection to at most one
// binding. It keeps a per-session index so the gateway can resolve rooms
// without touching the Session Store.
type Registry struct {
	mu        sync.RWMutex
	index     ParticipantIndex
	byConn    map[string]Binding
	bySession map[string]map[string]struct{}
	seq       uint64
}

// NewRegistry creates an empty registry validating student bindings against index.
func NewRegistry(index ParticipantIndex) *Registry {
	return &Registry{
		index:     index,
		byConn:    make(map[string]Binding),
		bySession: make(map[string]map[string]struct{}),
	}
}

// Bind associates connID with a session and role. Rebinding the same
// connection overwrites its prior binding.
func (r *Registry) Bind(connID, code string, role Role, participantID string) error {
	if role == RoleStudent {
		if participantID == "" || r.index == nil || !r.index.HasParticipant(code, participantID) {
			return ErrUnknownParticipant
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[connID]; ok {
		r.dropLocked(prev)
	}

	r.seq++
	b := Binding{
		ConnID:        connID,
		SessionCode:   code,
		Role:          role,
		ParticipantID: participantID,
		seq:           r.seq,
	}
	r.byConn[connID] = b

	members, ok := r.bySession[code]
	if !ok {
		members = make(map[string]struct{})
		r.bySession[code] = members
	}
	members[connID] = struct{}{}
	return nil
}

// Unbind removes the association and returns the prior binding, so the
// caller runs disconnect side effects at most once.
func (r *Registry) Unbind(connID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byConn[connID]
	if !ok {
		return Binding{}, false
	}
	delete(r.byConn, connID)
	r.dropLocked(b)
	return b, true
}

// Lookup returns the current binding of connID.
func (r *Registry) Lookup(connID string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byConn[connID]
	return b, ok
}

// Members lists the connections bound to a session in bind order.
func (r *Registry) Members(code string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.bySession[code]
	bindings := make([]Binding, 0, len(members))
	for connID := range members {
		bindings = append(bindings, r.byConn[connID])
	}
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].seq < bindings[j].seq })

	ids := make([]string, len(bindings))
	for i, b := range bindings {
		ids[i] = b.ConnID
	}
	return ids
}

// Owner returns the connection bound as teacher of a session.
func (r *Registry) Owner(code string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for connID := range r.bySession[code] {
		if r.byConn[connID].Role == RoleTeacher {
			return connID, true
		}
	}
	return "", false
}

// UnbindSession removes every binding of a session and returns them.
func (r *Registry) UnbindSession(code string) []Binding {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.bySession[code]
	out := make([]Binding, 0, len(members))
	for connID := range members {
		out = append(out, r.byConn[connID])
		delete(r.byConn, connID)
	}
	delete(r.bySession, code)
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Len reports the number of bound connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

func (r *Registry) dropLocked(b Binding) {
	members := r.bySession[b.SessionCode]
	delete(members, b.ConnID)
	if len(members) == 0 {
		delete(r.bySession, b.SessionCode)
	}
}
