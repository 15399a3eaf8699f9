package pscontext_test

import (
	"testing"

	"github.com/jahorta/soasim/pscontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ValidatesCleanly(t *testing.T) {
	ok, errMsg := pscontext.ValidateRegistry()
	require.True(t, ok, "registry validation failed: %s", errMsg)
}

func TestRegistry_EveryKeyWithinItsModuleRange(t *testing.T) {
	ranges := []struct {
		name     string
		min, max pscontext.KeyId
	}{
		{"core", pscontext.CoreMin, pscontext.CoreMax},
		{"seed", pscontext.SeedMin, pscontext.SeedMax},
		{"tas", pscontext.TasMin, pscontext.TasMax},
		{"battle", pscontext.BattleMin, pscontext.BattleMax},
	}

	for _, e := range pscontext.AllKeys() {
		var matched bool
		for _, r := range ranges {
			if e.ID >= r.min && e.ID <= r.max {
				matched = true
			}
		}
		assert.True(t, matched, "key %q (0x%04X) does not fall within any known module range", e.Name, e.ID)
	}
}

func TestRegistry_NoDuplicateIDsOrNames(t *testing.T) {
	seenIDs := make(map[pscontext.KeyId]bool)
	seenNames := make(map[string]bool)
	for _, e := range pscontext.AllKeys() {
		assert.False(t, seenIDs[e.ID], "duplicate id 0x%04X", e.ID)
		assert.False(t, seenNames[e.Name], "duplicate name %q", e.Name)
		seenIDs[e.ID] = true
		seenNames[e.Name] = true
	}
}

func TestRegistry_HashIsDeterministic(t *testing.T) {
	h1 := pscontext.RegistryHash()
	h2 := pscontext.RegistryHash()
	assert.Equal(t, h1, h2)
	assert.NotZero(t, h1)
}

func TestRegistry_NameForIDAndIDForNameRoundTrip(t *testing.T) {
	for _, e := range pscontext.AllKeys() {
		assert.Equal(t, e.Name, pscontext.NameForID(e.ID))
		id, ok := pscontext.IDForName(e.Name)
		require.True(t, ok)
		assert.Equal(t, e.ID, id)
	}
}

func TestRegistry_UnknownNameNotFound(t *testing.T) {
	_, ok := pscontext.IDForName("does.not.exist")
	assert.False(t, ok)
}
