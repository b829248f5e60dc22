package arena

import (
	"fmt"
)

// OwnershipEntry records the entities owned by one connection.
type OwnershipEntry struct {
	// Connection is the transport entity of the connection.
	Connection Entity
	// Player is the avatar entity of the connection.
	Player Entity
	// Character is the controllable character of the connection.
	Character Entity

	// RemapTo is non-zero for staged entries that still have to be merged
	// into the slot of that connection.
	RemapTo ConnectionID
}

// IsZero reports whether the entry holds no references.
func (e OwnershipEntry) IsZero() bool {
	return e == OwnershipEntry{}
}

func (e *OwnershipEntry) remapEntities(resolve func(Entity) Entity) {
	e.Connection = resolve(e.Connection)
	e.Player = resolve(e.Player)
	e.Character = resolve(e.Character)
}

// OwnershipMap is a dense table of OwnershipEntry indexed by ConnectionID.
//
// Slot 0 belongs to the server and always holds the zero entry. Entries
// whose entities were created through a command buffer are appended past the
// settled slots with RemapTo set, and merged into their real slot by Patch.
//
// An OwnershipMap is not safe for concurrent use.
type OwnershipMap struct {
	entries []OwnershipEntry
	settled int
}

// NewOwnershipMap creates a table holding only the reserved server slot.
func NewOwnershipMap() *OwnershipMap {
	return &OwnershipMap{
		entries: make([]OwnershipEntry, 1, 16),
		settled: 1,
	}
}

// Len returns the number of settled slots, including the server slot.
func (m *OwnershipMap) Len() int {
	return m.settled
}

// Resize grows the table to n settled slots, zero-filling new ones.
// Staged entries are kept after the settled slots. Shrinking is a no-op.
func (m *OwnershipMap) Resize(n int) {
	if n <= m.settled {
		return
	}
	pending := m.entries[m.settled:]
	grown := make([]OwnershipEntry, n, n+len(pending))
	copy(grown, m.entries[:m.settled])
	m.entries = append(grown, pending...)
	m.settled = n
}

// Get returns the settled entry for id. It panics if id is out of range.
func (m *OwnershipMap) Get(id ConnectionID) OwnershipEntry {
	m.check(id)
	return m.entries[id]
}

// Set replaces the settled entry for id. It panics if id is out of range.
func (m *OwnershipMap) Set(id ConnectionID, entry OwnershipEntry) {
	m.check(id)
	if id == 0 && !entry.IsZero() {
		panic("arena: ownership slot 0 is reserved for the server")
	}
	entry.RemapTo = 0
	m.entries[id] = entry
}

// AppendPending stages entry for the slot of target.
// The entry becomes visible through Get after the next Patch.
func (m *OwnershipMap) AppendPending(target ConnectionID, entry OwnershipEntry) {
	if target <= 0 {
		panic(fmt.Sprintf("arena: invalid remap target %d", target))
	}
	entry.RemapTo = target
	m.entries = append(m.entries, entry)
}

// Pending returns a copy of the staged entries in append order.
func (m *OwnershipMap) Pending() []OwnershipEntry {
	out := make([]OwnershipEntry, len(m.entries)-m.settled)
	copy(out, m.entries[m.settled:])
	return out
}

// Patch merges staged entries into their target slots.
//
// The table is scanned from the top and the scan stops at the first entry
// without a remap target. Each non-null field is copied only into a field
// that is still null at the destination, then the staged entry is dropped.
// Patching a settled table is a no-op.
func (m *OwnershipMap) Patch() {
	for i := len(m.entries) - 1; i >= 0; i-- {
		src := &m.entries[i]
		if src.RemapTo == 0 {
			break
		}
		target := int(src.RemapTo)
		if target >= m.settled {
			panic(fmt.Sprintf("arena: remap target %d outside ownership table of length %d", target, m.settled))
		}

		dst := &m.entries[target]
		patchEntity(src.Connection, &dst.Connection)
		patchEntity(src.Player, &dst.Player)
		patchEntity(src.Character, &dst.Character)

		*src = OwnershipEntry{}
	}

	clear(m.entries[m.settled:])
	m.entries = m.entries[:m.settled]
}

// Lookup returns the connection owning the given avatar or character entity.
func (m *OwnershipMap) Lookup(e Entity) (ConnectionID, bool) {
	if e == Null {
		return 0, false
	}
	for id := 1; id < m.settled; id++ {
		entry := m.entries[id]
		if entry.Player == e || entry.Character == e || entry.Connection == e {
			return ConnectionID(id), true
		}
	}
	return 0, false
}

func (m *OwnershipMap) check(id ConnectionID) {
	if id < 0 || int(id) >= m.settled {
		panic(fmt.Sprintf("arena: connection id %d outside ownership table of length %d", id, m.settled))
	}
}

func patchEntity(value Entity, dst *Entity) {
	if value != Null && *dst == Null {
		*dst = value
	}
}
