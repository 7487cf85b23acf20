package core

import "sync"

// IDMap translates identifiers from the exporting system into destination
// identifiers. One IDMap belongs to one import run and is discarded with it.
//
// Besides entity types, keys may use alias namespaces such as
// AliasAccountNumber, which map a business value to a destination id.
type IDMap struct {
	mu sync.RWMutex
	m  map[EntityType]map[string]string
}

// NewIDMap returns an empty map.
func NewIDMap() *IDMap {
	return &IDMap{m: make(map[EntityType]map[string]string)}
}

// Put records that oldID of entity now lives at newID.
// Empty ids are ignored.
func (m *IDMap) Put(entity EntityType, oldID, newID string) {
	if oldID == "" || newID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	inner, ok := m.m[entity]
	if !ok {
		inner = make(map[string]string)
		m.m[entity] = inner
	}
	inner[oldID] = newID
}

// Get returns the destination id for oldID of entity.
func (m *IDMap) Get(entity EntityType, oldID string) (string, bool) {
	if oldID == "" {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	newID, ok := m.m[entity][oldID]
	return newID, ok
}

// Forget drops every entry that points at one of newIDs, in any namespace.
// The importer calls it when a stage fails to commit, so later stages do
// not resolve references to rows that were rolled back.
func (m *IDMap) Forget(newIDs ...string) {
	if len(newIDs) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(newIDs))
	for _, id := range newIDs {
		drop[id] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inner := range m.m {
		for oldID, newID := range inner {
			if _, ok := drop[newID]; ok {
				delete(inner, oldID)
			}
		}
	}
}

// Len returns the number of entries for entity.
func (m *IDMap) Len(entity EntityType) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m[entity])
}
