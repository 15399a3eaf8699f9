package vm

import (
	"fmt"

	"github.com/jahorta/soasim/bpmap"
)

// NewProgram builds a Program and resolves its label table. Label
// scanning happens once at load time: every label op's name maps to
// its op index, and every goto/goto-if/goto-if-keys target must
// resolve against that map or the program fails to load.
func NewProgram(canonicalBPKeys []bpmap.Key, ops []Op) (*Program, error) {
	labels := make(map[string]int, len(ops))
	for i, op := range ops {
		if op.Code != OpLabel {
			continue
		}
		if _, exists := labels[op.Label]; exists {
			return nil, fmt.Errorf("vm: duplicate label %q at op %d", op.Label, i)
		}
		labels[op.Label] = i
	}

	for i, op := range ops {
		switch op.Code {
		case OpGoto, OpGotoIf, OpGotoIfKeys:
			if _, ok := labels[op.Label]; !ok {
				return nil, fmt.Errorf("vm: op %d references unknown label %q", i, op.Label)
			}
		}
	}

	return &Program{
		CanonicalBPKeys: canonicalBPKeys,
		Ops:             ops,
		labels:          labels,
	}, nil
}
