package vm

import "github.com/jahorta/soasim/pscontext"

// Result is what Run returns to its caller, the worker process.
type Result struct {
	OK      bool
	HitPC   uint32
	Context *pscontext.Store
}
