package vm_test

import (
	"testing"

	"github.com/jahorta/soasim/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProgram_ResolvesLabels(t *testing.T) {
	ops := []vm.Op{
		{Code: vm.OpLabel, Label: "start"},
		{Code: vm.OpGoto, Label: "start"},
	}
	p, err := vm.NewProgram(nil, ops)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestNewProgram_UnknownLabelFails(t *testing.T) {
	ops := []vm.Op{
		{Code: vm.OpGoto, Label: "nowhere"},
	}
	_, err := vm.NewProgram(nil, ops)
	assert.Error(t, err)
}

func TestNewProgram_DuplicateLabelFails(t *testing.T) {
	ops := []vm.Op{
		{Code: vm.OpLabel, Label: "dup"},
		{Code: vm.OpLabel, Label: "dup"},
	}
	_, err := vm.NewProgram(nil, ops)
	assert.Error(t, err)
}
