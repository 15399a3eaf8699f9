package pscontext

// ActionSpec is one concrete, already-resolved actor action within a
// turn: a macro action tag and a resolved target id (no more symbolic
// bindings — those are compiled away by the Branch Explorer).
type ActionSpec struct {
	ActorSlot int
	Macro     int // program-specific macro action tag (Attack/Defend/Item/FakeAttack/...)
	Target    int // resolved target id
}

// TurnPlan is one turn's concrete actions plus how many fake attacks
// that turn injects.
type TurnPlan struct {
	Actions         []ActionSpec
	FakeAttackCount uint32
}

// BattlePath is the terminal unit of work the Branch Explorer produces:
// a concrete sequence of per-turn action specs plus fake-attack counts,
// ready to be flattened into a BattleTurnRunner job payload.
type BattlePath struct {
	Turns []TurnPlan
}

// TotalFakeAttacks sums FakeAttackCount across every turn.
func (p BattlePath) TotalFakeAttacks() uint32 {
	var total uint32
	for _, t := range p.Turns {
		total += t.FakeAttackCount
	}
	return total
}
