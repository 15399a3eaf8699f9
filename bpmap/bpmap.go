// Package bpmap implements the Breakpoint Map: a pure, immutable,
// per-program-kind table of symbolic keys to program counters. It is
// constructed once per program-kind and never mutated afterward.
package bpmap

// Key identifies a breakpoint symbolically, stable across game builds.
type Key uint16

// Entry is one row of the map: a stable key, the game-build-specific
// program counter it currently resolves to, and a human-readable name.
type Entry struct {
	Key  Key
	PC   uint32
	Name string
}

// Map is an ordered, immutable collection of breakpoint entries.
// Keys are unique; a PC may repeat (distinct keys can share a PC, e.g.
// aliases for the same checkpoint under different names).
type Map struct {
	entries []Entry
	byKey   map[Key]Entry
	byPC    map[uint32]Key
}

// New builds an immutable Map from entries. The map is pure data:
// constructed once per program-kind and never mutated afterward.
func New(entries []Entry) *Map {
	m := &Map{
		entries: append([]Entry(nil), entries...),
		byKey:   make(map[Key]Entry, len(entries)),
		byPC:    make(map[uint32]Key, len(entries)),
	}
	for _, e := range entries {
		m.byKey[e.Key] = e
		// First entry wins when multiple keys alias the same pc.
		if _, exists := m.byPC[e.PC]; !exists {
			m.byPC[e.PC] = e.Key
		}
	}
	return m
}

// Find returns the entry registered for key.
func (m *Map) Find(key Key) (Entry, bool) {
	e, ok := m.byKey[key]
	return e, ok
}

// Match returns the key whose pc equals pc, if any.
func (m *Map) Match(pc uint32) (Key, bool) {
	k, ok := m.byPC[pc]
	return k, ok
}

// PC returns the program counter registered for key.
func (m *Map) PC(key Key) (uint32, bool) {
	e, ok := m.byKey[key]
	return e.PC, ok
}

// Keys returns every key in the map, in declaration order.
func (m *Map) Keys() []Key {
	out := make([]Key, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Key
	}
	return out
}

// Entries returns every entry, in declaration order.
func (m *Map) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.entries)
}

// DedupPCs returns the set of distinct PCs across keys, useful for
// arming breakpoints without arming the same address twice.
func DedupPCs(m *Map, keys []Key) []uint32 {
	seen := make(map[uint32]bool)
	out := make([]uint32, 0, len(keys))
	for _, k := range keys {
		e, ok := m.Find(k)
		if !ok {
			continue
		}
		if seen[e.PC] {
			continue
		}
		seen[e.PC] = true
		out = append(out, e.PC)
	}
	return out
}
