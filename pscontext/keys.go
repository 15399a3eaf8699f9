// Package pscontext implements the Context Store and its key registry:
// a typed key/value map shared between VM ops and payload decoders, and
// the compile-time module table that assigns every key a stable,
// range-checked identifier.
package pscontext

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// KeyId identifies an entry in the Context Store. Ids are partitioned
// into reserved per-module ranges so that independently developed
// program-kinds cannot collide.
type KeyId uint16

// Reserved id ranges. Extend by adding a new (min, max) pair and a
// matching module table in registryTables.
const (
	CoreMin   KeyId = 0x0000
	CoreMax   KeyId = 0x00FF
	SeedMin   KeyId = 0x0100
	SeedMax   KeyId = 0x01FF
	TasMin    KeyId = 0x0200
	TasMax    KeyId = 0x02FF
	BattleMin KeyId = 0x0300
	BattleMax KeyId = 0x03FF
)

// KeyEntry is one row of a module's key table.
type KeyEntry struct {
	ID   KeyId
	Name string
}

// moduleTable pairs a module's entries with the range they must fall in.
type moduleTable struct {
	min, max KeyId
	entries  []KeyEntry
}

// registryTables lists every module's key table, in the fixed,
// deterministic order the registry fingerprint is computed over.
var registryTables = []moduleTable{
	{CoreMin, CoreMax, coreKeys},
	{SeedMin, SeedMax, seedKeys},
	{TasMin, TasMax, tasKeys},
	{BattleMin, BattleMax, battleKeys},
}

var (
	registryOnce  sync.Once
	registryByID  map[KeyId]string
	registryByNm  map[string]KeyId
	registryHash  uint32
	registryValid bool
	registryErr   string
	registryAll   []KeyEntry
)

func buildRegistry() {
	registryByID = make(map[KeyId]string)
	registryByNm = make(map[string]KeyId)
	registryValid = true

	h := fnv.New32a()

	seenIDs := make(map[KeyId]bool)
	seenNames := make(map[string]bool)

	for _, tbl := range registryTables {
		for _, e := range tbl.entries {
			if e.ID < tbl.min || e.ID > tbl.max {
				registryValid = false
				registryErr = fmt.Sprintf("key %q (0x%04X) outside its module range [0x%04X,0x%04X]", e.Name, e.ID, tbl.min, tbl.max)
			}
			if seenIDs[e.ID] {
				registryValid = false
				registryErr = fmt.Sprintf("duplicate key id 0x%04X", e.ID)
			}
			seenIDs[e.ID] = true
			if seenNames[e.Name] {
				registryValid = false
				registryErr = fmt.Sprintf("duplicate key name %q", e.Name)
			}
			seenNames[e.Name] = true

			registryByID[e.ID] = e.Name
			registryByNm[e.Name] = e.ID
			registryAll = append(registryAll, e)

			var idBytes [2]byte
			idBytes[0] = byte(e.ID)
			idBytes[1] = byte(e.ID >> 8)
			h.Write(idBytes[:])
			h.Write([]byte(e.Name))
		}
	}

	registryHash = h.Sum32()
}

func ensureRegistry() {
	registryOnce.Do(buildRegistry)
}

// NameForID returns the registered name for id, or "" if unknown.
func NameForID(id KeyId) string {
	ensureRegistry()
	return registryByID[id]
}

// IDForName returns the id registered for name.
func IDForName(name string) (KeyId, bool) {
	ensureRegistry()
	id, ok := registryByNm[name]
	return id, ok
}

// AllKeys returns every registered entry, in deterministic table order.
func AllKeys() []KeyEntry {
	ensureRegistry()
	out := make([]KeyEntry, len(registryAll))
	copy(out, registryAll)
	return out
}

// RegistryHash returns the deterministic FNV-1a32 fingerprint of the
// registry, suitable for a cheap cross-process compatibility check.
func RegistryHash() uint32 {
	ensureRegistry()
	return registryHash
}

// ValidateRegistry reports whether the registry passed its startup
// validation (no duplicate ids/names, every id within its module's
// range). A caller should treat a false return as a fatal
// configuration error.
func ValidateRegistry() (bool, string) {
	ensureRegistry()
	return registryValid, registryErr
}
