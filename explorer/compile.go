package explorer

import (
	"math/bits"

	"github.com/jahorta/soasim/pscontext"
)

// masksFromBits splits a bitmask into single-bit masks, ascending.
func masksFromBits(mask uint32) []uint32 {
	out := make([]uint32, 0, bits.OnesCount32(mask))
	for mask != 0 {
		lsb := mask & -mask
		out = append(out, lsb)
		mask ^= lsb
	}
	return out
}

// deferredBind is a SameAs binding that cannot resolve within its own
// turn (the actor references itself, or an actor not acting this
// turn). It resolves at path-assembly time against the referenced
// actor's most recent concrete target in an earlier turn.
type deferredBind struct {
	actionIdx int
	refActor  uint8
}

// compiledTurn is one turn's concrete instantiations plus the deferred
// bindings every instantiation still carries.
type compiledTurn struct {
	choices  [][]pscontext.ActionSpec
	deferred []deferredBind
}

// turnVar is one actor whose target is symbolic within the turn.
type turnVar struct {
	actor  uint8
	domain []uint32 // AnyEnemy / MultipleEnemies
	sameAs int      // referenced actor, or -1
}

// compileTurn produces every concrete instantiation of one symbolic
// turn. In-turn SameAs bindings are ordered topologically (Kahn); a
// cycle or an empty domain yields no instantiations, which is the
// correct semantics for an unsatisfiable turn, not an error.
func compileTurn(bc BattleContext, turn UITurn) compiledTurn {
	base := make([]pscontext.ActionSpec, 0, len(turn))
	actorToIdx := make(map[uint8]int, len(turn))
	concrete := make(map[uint8]uint32)

	acting := make(map[uint8]bool, len(turn))
	for _, ua := range turn {
		acting[ua.ActorSlot] = true
	}

	// deferredOf tracks actors whose target resolves outside this
	// turn, mapped to the upstream actor they ultimately mirror.
	// Chains of SameAs onto a deferred actor collapse to the same
	// upstream reference.
	deferredOf := make(map[uint8]uint8)
	sameAsOf := make(map[uint8]uint8)
	for _, ua := range turn {
		if ua.Target.Kind != SameAsOtherPC {
			continue
		}
		ref := ua.Target.Actor
		if ref == ua.ActorSlot || !acting[ref] {
			deferredOf[ua.ActorSlot] = ref
		} else {
			sameAsOf[ua.ActorSlot] = ref
		}
	}
	for changed := true; changed; {
		changed = false
		for actor, ref := range sameAsOf {
			if upstream, ok := deferredOf[ref]; ok {
				deferredOf[actor] = upstream
				delete(sameAsOf, actor)
				changed = true
			}
		}
	}

	var vars []turnVar
	var deferred []deferredBind

	anyEnemyDomain := masksFromBits(bc.EnemiesAliveMask())

	for _, ua := range turn {
		spec := pscontext.ActionSpec{ActorSlot: int(ua.ActorSlot), Macro: ua.Macro}

		switch ua.Target.Kind {
		case SingleEnemy:
			spec.Target = int(ua.Target.Mask)
			concrete[ua.ActorSlot] = ua.Target.Mask
		case MultipleEnemies:
			dom := masksFromBits(ua.Target.Mask)
			if len(dom) == 0 {
				return compiledTurn{}
			}
			vars = append(vars, turnVar{actor: ua.ActorSlot, domain: dom, sameAs: -1})
		case AnyEnemy:
			if len(anyEnemyDomain) == 0 {
				return compiledTurn{}
			}
			vars = append(vars, turnVar{actor: ua.ActorSlot, domain: anyEnemyDomain, sameAs: -1})
		case SameAsOtherPC:
			if ref, ok := deferredOf[ua.ActorSlot]; ok {
				deferred = append(deferred, deferredBind{actionIdx: len(base), refActor: ref})
			} else {
				vars = append(vars, turnVar{actor: ua.ActorSlot, sameAs: int(ua.Target.Actor)})
			}
		}

		actorToIdx[ua.ActorSlot] = len(base)
		base = append(base, spec)
	}

	if hasSameAsCycle(vars) {
		return compiledTurn{}
	}

	order := assignmentOrder(vars)

	varByActor := make(map[uint8]*turnVar, len(vars))
	for i := range vars {
		varByActor[vars[i].actor] = &vars[i]
	}

	cur := make([]pscontext.ActionSpec, len(base))
	copy(cur, base)

	var out [][]pscontext.ActionSpec
	var dfs func(oi int)
	dfs = func(oi int) {
		if oi == len(order) {
			done := make([]pscontext.ActionSpec, len(cur))
			copy(done, cur)
			out = append(out, done)
			return
		}
		v := varByActor[order[oi]]

		if v.sameAs >= 0 {
			ref := uint8(v.sameAs)
			var mask uint32
			if m, ok := concrete[ref]; ok {
				mask = m
			} else {
				mask = uint32(cur[actorToIdx[ref]].Target)
				if mask == 0 {
					return // referenced actor unassigned: unsatisfiable
				}
			}
			cur[actorToIdx[v.actor]].Target = int(mask)
			dfs(oi + 1)
			return
		}

		for _, m := range v.domain {
			cur[actorToIdx[v.actor]].Target = int(m)
			dfs(oi + 1)
		}
	}

	if len(vars) == 0 {
		out = append(out, cur)
	} else {
		dfs(0)
	}
	return compiledTurn{choices: out, deferred: deferred}
}

// hasSameAsCycle runs Kahn's algorithm over the in-turn SameAs edges.
// Only actors that are themselves SameAs variables can participate in
// a cycle.
func hasSameAsCycle(vars []turnVar) bool {
	isVar := make(map[uint8]bool, len(vars))
	for _, v := range vars {
		if v.sameAs >= 0 {
			isVar[v.actor] = true
		}
	}
	if len(isVar) == 0 {
		return false
	}

	indeg := make(map[uint8]int, len(isVar))
	rdeps := make(map[uint8][]uint8)
	for a := range isVar {
		indeg[a] = 0
	}
	for _, v := range vars {
		if v.sameAs < 0 {
			continue
		}
		ref := uint8(v.sameAs)
		if isVar[ref] {
			indeg[v.actor]++
			rdeps[ref] = append(rdeps[ref], v.actor)
		}
	}

	var queue []uint8
	for a, d := range indeg {
		if d == 0 {
			queue = append(queue, a)
		}
	}
	seen := 0
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		seen++
		for _, w := range rdeps[u] {
			indeg[w]--
			if indeg[w] == 0 {
				queue = append(queue, w)
			}
		}
	}
	return seen != len(isVar)
}

// assignmentOrder places independent variables first, then SameAs
// variables after everything they reference. The cycle check has
// already run, so repeated passes terminate.
func assignmentOrder(vars []turnVar) []uint8 {
	isVar := make(map[uint8]bool, len(vars))
	for _, v := range vars {
		isVar[v.actor] = true
	}

	var order []uint8
	placed := make(map[uint8]bool, len(vars))

	for _, v := range vars {
		if v.sameAs < 0 || !isVar[uint8(v.sameAs)] {
			order = append(order, v.actor)
			placed[v.actor] = true
		}
	}

	for len(order) < len(vars) {
		progressed := false
		for _, v := range vars {
			if placed[v.actor] {
				continue
			}
			if placed[uint8(v.sameAs)] {
				order = append(order, v.actor)
				placed[v.actor] = true
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return order
}

// productTurns walks the Cartesian product of per-turn choices with a
// positional index counter, least-significant turn first.
func productTurns(compiled []compiledTurn) [][][]pscontext.ActionSpec {
	n := len(compiled)
	if n == 0 {
		return [][][]pscontext.ActionSpec{{}}
	}

	idx := make([]int, n)
	var out [][][]pscontext.ActionSpec
	for {
		path := make([][]pscontext.ActionSpec, n)
		for t := 0; t < n; t++ {
			path[t] = compiled[t].choices[idx[t]]
		}
		out = append(out, path)

		bumped := false
		for i := 0; i < n; i++ {
			idx[i]++
			if idx[i] < len(compiled[i].choices) {
				bumped = true
				break
			}
			idx[i] = 0
		}
		if !bumped {
			return out
		}
	}
}

// resolveDeferred applies cross-turn SameAs bindings to one base path,
// returning a deep copy with every deferred target filled from the
// referenced actor's most recent earlier-turn choice. A binding with
// no earlier choice to mirror makes the whole path unsatisfiable.
func resolveDeferred(base [][]pscontext.ActionSpec, compiled []compiledTurn) ([][]pscontext.ActionSpec, bool) {
	lastTarget := make(map[int]uint32)

	out := make([][]pscontext.ActionSpec, len(base))
	for t, actions := range base {
		turn := make([]pscontext.ActionSpec, len(actions))
		copy(turn, actions)

		for _, db := range compiled[t].deferred {
			m, ok := lastTarget[int(db.refActor)]
			if !ok {
				return nil, false
			}
			turn[db.actionIdx].Target = int(m)
		}

		for _, a := range turn {
			if a.Target != 0 {
				lastTarget[a.ActorSlot] = uint32(a.Target)
			}
		}
		out[t] = turn
	}
	return out, true
}

// fakeAttackVectors enumerates every non-negative N-tuple whose sum is
// at most B (stars-and-bars with cap), grouped by ascending sum.
func fakeAttackVectors(n int, b uint32) [][]uint32 {
	if n == 0 {
		return nil
	}
	var out [][]uint32
	cur := make([]uint32, n)

	var dfs func(idx int, remain uint32)
	dfs = func(idx int, remain uint32) {
		if idx == n-1 {
			cur[idx] = remain
			v := make([]uint32, n)
			copy(v, cur)
			out = append(out, v)
			return
		}
		for v := uint32(0); v <= remain; v++ {
			cur[idx] = v
			dfs(idx+1, remain-v)
		}
	}

	for s := uint32(0); s <= b; s++ {
		dfs(0, s)
	}
	return out
}

// binomial computes C(n, k) in uint64, good for the budget sizes the
// UI pre-flight deals in.
func binomial(n, k uint64) uint64 {
	if k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	res := uint64(1)
	for i := uint64(1); i <= k; i++ {
		res = res * (n - k + i) / i
	}
	return res
}

// Frame-compiler constant: the cursor starts on the first enemy slot.
const firstEnemySlot = 4

// planFrames flattens a battle path into the per-turn pad-input frame
// sequences the BattleTurnRunner payload carries: each fake attack is
// an attack begun and cancelled, then each action confirms its
// command, taps the cursor over to its target slot, and confirms.
func planFrames(path pscontext.BattlePath) [][]pscontext.InputFrame {
	neutral := pscontext.NeutralInputFrame()
	press := func(b pscontext.Button) pscontext.InputFrame {
		f := neutral
		f.Buttons = b
		return f
	}

	plans := make([][]pscontext.InputFrame, len(path.Turns))
	for ti, turn := range path.Turns {
		var frames []pscontext.InputFrame

		for i := uint32(0); i < turn.FakeAttackCount; i++ {
			frames = append(frames, press(pscontext.ButtonA), neutral, press(pscontext.ButtonB), neutral)
		}

		for _, a := range turn.Actions {
			frames = append(frames, press(pscontext.ButtonA), neutral)
			taps := targetTaps(uint32(a.Target))
			for i := 0; i < taps; i++ {
				frames = append(frames, press(pscontext.ButtonDRight), neutral)
			}
			frames = append(frames, press(pscontext.ButtonA), neutral)
		}

		plans[ti] = frames
	}
	return plans
}

// targetTaps converts a single-bit slot mask into how many cursor taps
// reach it from the first enemy slot.
func targetTaps(mask uint32) int {
	if mask == 0 {
		return 0
	}
	slot := bits.TrailingZeros32(mask)
	if slot < firstEnemySlot {
		return 0
	}
	return slot - firstEnemySlot
}
