package multiplex

import "github.com/matzehuels/nlink/pkg/rules"

// Mechanism labels why a page changed terminal between two rules.
type Mechanism string

const (
	// DegreeShift: the page's own edge differs. Either its out-degree
	// crosses the boundary between the two rules (it gains or loses its
	// outgoing edge) or its Nth link points somewhere else.
	DegreeShift Mechanism = "degree_shift"

	// Indirect: the page keeps the same successor, and that successor's
	// terminal changed further downstream.
	Indirect Mechanism = "indirect"

	// Unclassified is the explicit fallback when no classifier matches.
	Unclassified Mechanism = "unclassified"
)

// Evidence is what a classifier sees about one transition of one page
// between rules FromN < ToN. Successors are compact indices or rules.Halt.
type Evidence struct {
	Page   int32
	Degree int
	FromN  int
	ToN    int

	From TerminalID
	To   TerminalID

	FromSucc int32
	ToSucc   int32

	// Terminals of the successor under each rule, Unassigned for a halt or
	// when the successor was not mapped.
	FromSuccTerminal TerminalID
	ToSuccTerminal   TerminalID
}

// Classifier matches one mechanism.
type Classifier struct {
	Mechanism Mechanism
	Match     func(Evidence) bool
}

// DefaultClassifiers is the ordered classifier list used when Options does
// not supply one.
var DefaultClassifiers = []Classifier{
	{Mechanism: DegreeShift, Match: ownEdgeChanged},
	{Mechanism: Indirect, Match: downstreamChanged},
}

func ownEdgeChanged(e Evidence) bool {
	if (e.Degree >= e.FromN) != (e.Degree >= e.ToN) {
		return true
	}
	return e.FromSucc != rules.Halt && e.ToSucc != rules.Halt && e.FromSucc != e.ToSucc
}

func downstreamChanged(e Evidence) bool {
	return e.FromSucc != rules.Halt &&
		e.FromSucc == e.ToSucc &&
		e.FromSuccTerminal != Unassigned &&
		e.ToSuccTerminal != Unassigned &&
		e.FromSuccTerminal != e.ToSuccTerminal
}

// classify returns the mechanism of the first matching classifier, or
// Unclassified.
func classify(cs []Classifier, e Evidence) Mechanism {
	for _, c := range cs {
		if c.Match(e) {
			return c.Mechanism
		}
	}
	return Unclassified
}
