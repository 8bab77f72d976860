package ws

import (
	"sort"
	"sync"
)

// Member is one entry of a group snapshot.
type Member struct {
	UserID int
	Peer   *Peer
}

// Registry maps group id to the live connection of each member. It holds at
// most one peer per (group, user) and never keeps an empty group.
type Registry struct {
	mu     sync.RWMutex
	groups map[int]map[int]*Peer
}

func NewRegistry() *Registry {
	return &Registry{groups: make(map[int]map[int]*Peer)}
}

// Register stores peer as the live connection of its user in groupID and
// returns the handle it replaced, if any.
func (r *Registry) Register(groupID int, peer *Peer) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[groupID]
	if !ok {
		members = make(map[int]*Peer)
		r.groups[groupID] = members
	}
	previous := members[peer.UserID()]
	members[peer.UserID()] = peer
	if previous == peer {
		return nil
	}
	return previous
}

// Deregister removes peer from groupID if it is still the registered handle
// for its user. A session that was replaced by a reconnect leaves the newer
// handle in place. It reports whether anything was removed.
func (r *Registry) Deregister(groupID int, peer *Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[groupID]
	if !ok {
		return false
	}
	current, ok := members[peer.UserID()]
	if !ok || current != peer {
		return false
	}
	delete(members, peer.UserID())
	if len(members) == 0 {
		delete(r.groups, groupID)
	}
	return true
}

// Snapshot returns the members of groupID ordered by user id. The slice is
// a copy and stays valid after later registry changes.
func (r *Registry) Snapshot(groupID int) []Member {
	r.mu.RLock()
	members := r.groups[groupID]
	out := make([]Member, 0, len(members))
	for userID, peer := range members {
		out = append(out, Member{UserID: userID, Peer: peer})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Lookup returns the live peer of userID in groupID.
func (r *Registry) Lookup(groupID, userID int) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peer, ok := r.groups[groupID][userID]
	return peer, ok
}

// GroupCount returns the number of groups with at least one live member.
func (r *Registry) GroupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

// Groups returns the ids of live groups in ascending order.
func (r *Registry) Groups() []int {
	r.mu.RLock()
	ids := make([]int, 0, len(r.groups))
	for id := range r.groups {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Ints(ids)
	return ids
}

// Connections returns the total number of registered peers.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, members := range r.groups {
		n += len(members)
	}
	return n
}
