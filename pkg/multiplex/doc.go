// Package multiplex tracks how basin membership reorganizes across a range
// of rules.
//
// [Run] makes one pass per rule N, in ascending order. Each pass obtains the
// rule index, discovers every terminal, maps every basin and records, for
// every page, the terminal it drains into. The resulting column is compared
// with the previous pass by compact page index, so the work is one linear
// join per adjacent pair of rules.
//
// # Terminal alignment
//
// Terminals are interned in a [Registry] by their canonical key. A cycle
// found at N=3 and the same member set found at N=7 get the same
// [TerminalID], whatever order the members were discovered in. Cycles that
// share only some members are different terminals.
//
// # Tunnels
//
// A page tunnels between adjacent rules N1 < N2 when its terminal differs.
// Each such transition is labelled by the first matching [Classifier]:
//
//	degree_shift  the page's own outgoing edge differs between N1 and N2
//	indirect      the page keeps its successor, whose terminal changed
//	unclassified  nothing else matched
//
// Pages left unassigned by a truncated basin are never reported as tunnels.
package multiplex
