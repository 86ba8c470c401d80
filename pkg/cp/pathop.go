// Package cp: path operators
//
// A PathOperator works on successor variables: nexts[i] is the node visited
// after node i. Nodes at or above len(nexts) are path ends and have no
// successor; a node whose successor is itself is inactive. Optional path
// variables (one per node) hold the index of the path visiting the node and
// are kept consistent by the move primitives.
//
// Neighborhoods are enumerated by an odometer over base nodes. Each base node
// walks along its path; when it reaches the path end it restarts and carries
// the increment to the previous base node. When every base node has
// restarted, the base nodes move to the next path. The enumeration stops when
// the odometer is back at the position it had when the operator was started,
// so after a restart the operator resumes where it left off instead of
// re-exploring moves that were just rejected.
package cp

import (
	"github.com/bits-and-blooms/bitset"
)

// NoPath is the path value of inactive nodes.
const NoPath int64 = -1

// PathHooks customize a PathOperator.
type PathHooks struct {
	// MakeNeighbor builds a neighbor from the current base node positions. It
	// returns false when the position yields no move.
	MakeNeighbor func(p *PathOperator) bool
	// OnStart runs at the end of Start.
	OnStart func(p *PathOperator)
	// SamePathAsPrevious reports whether base node i stays on the path of
	// base node i-1.
	SamePathAsPrevious func(i int) bool
	// RestartPosition returns the node where base node i restarts. The
	// default is the start of its path.
	RestartPosition func(p *PathOperator, i int) int64
	// RestartAtPathStart moves base nodes back to their path start on every
	// Start.
	RestartAtPathStart bool
	// InactiveNodes repeats the whole base node enumeration once per inactive
	// node; see InactiveNode.
	InactiveNodes bool
}

type prevChange struct {
	node, prev int64
}

// PathOperator is the base of every operator on successor variables.
type PathOperator struct {
	VarOperator
	numNexts       int
	ignorePathVars bool
	hooks          PathHooks

	baseNodes  []int64
	basePaths  []int
	endNodes   []int64
	pathStarts []int64
	nodePaths  []int
	inactives  *bitset.BitSet

	prevs   []int64
	prevLog []prevChange

	justStarted  bool
	firstStart   bool
	inactiveNode int
}

// NewPathOperator returns an operator with numBase base nodes. paths may be
// nil; otherwise it must have the length of nexts.
func NewPathOperator(nexts, paths []*IntVar, numBase int, hooks PathHooks) *PathOperator {
	vars := append(append([]*IntVar(nil), nexts...), paths...)
	p := &PathOperator{
		numNexts:       len(nexts),
		ignorePathVars: len(paths) == 0,
		hooks:          hooks,
		baseNodes:      make([]int64, numBase),
		basePaths:      make([]int, numBase),
		endNodes:       make([]int64, numBase),
		inactives:      bitset.New(uint(len(nexts))),
		firstStart:     true,
	}
	p.initVars(vars)
	return p
}

// NumberOfNexts returns the number of successor variables.
func (p *PathOperator) NumberOfNexts() int { return p.numNexts }

// IgnorePathVars reports whether the operator has no path variables.
func (p *PathOperator) IgnorePathVars() bool { return p.ignorePathVars }

// Next returns the successor of node in the neighbor being built.
func (p *PathOperator) Next(node int64) int64 { return p.Value(int(node)) }

// OldNext returns the successor of node in the current solution.
func (p *PathOperator) OldNext(node int64) int64 { return p.OldValue(int(node)) }

// Prev returns the predecessor of node in the neighbor being built, or -1.
func (p *PathOperator) Prev(node int64) int64 {
	if node < 0 || int(node) >= len(p.prevs) {
		return -1
	}
	return p.prevs[node]
}

// Path returns the path of node in the neighbor being built.
func (p *PathOperator) Path(node int64) int64 {
	if p.ignorePathVars {
		return 0
	}
	return p.Value(int(node) + p.numNexts)
}

// OldPath returns the path of node in the current solution.
func (p *PathOperator) OldPath(node int64) int64 {
	if p.ignorePathVars {
		return 0
	}
	return p.OldValue(int(node) + p.numNexts)
}

// IsPathEnd reports whether node has no successor variable.
func (p *PathOperator) IsPathEnd(node int64) bool { return node >= int64(p.numNexts) }

// IsInactive reports whether node is inactive in the current solution.
func (p *PathOperator) IsInactive(node int64) bool {
	return !p.IsPathEnd(node) && p.inactives.Test(uint(node))
}

// BaseNode returns the position of base node i.
func (p *PathOperator) BaseNode(i int) int64 { return p.baseNodes[i] }

// StartNode returns the start of the path of base node i.
func (p *PathOperator) StartNode(i int) int64 { return p.pathStarts[p.basePaths[i]] }

// PathStarts returns the path starts of the current solution.
func (p *PathOperator) PathStarts() []int64 { return p.pathStarts }

// InactiveNode returns the inactive node of the current enumeration when the
// operator iterates over inactive nodes.
func (p *PathOperator) InactiveNode() int64 { return int64(p.inactiveNode) }

// ResetPosition makes the next increment return the current position again.
func (p *PathOperator) ResetPosition() { p.justStarted = true }

// OnSamePath reports whether two nodes share a path in the current solution.
func (p *PathOperator) OnSamePath(a, b int64) bool {
	if a < 0 || b < 0 || int(a) >= len(p.nodePaths) || int(b) >= len(p.nodePaths) {
		return false
	}
	return p.nodePaths[a] >= 0 && p.nodePaths[a] == p.nodePaths[b]
}

// SetNext makes to the successor of from on path.
func (p *PathOperator) SetNext(from, to, path int64) {
	p.SetValue(int(from), to)
	if !p.ignorePathVars {
		p.SetValue(int(from)+p.numNexts, path)
	}
	for int(to) >= len(p.prevs) {
		p.prevs = append(p.prevs, -1)
	}
	p.prevLog = append(p.prevLog, prevChange{node: to, prev: p.prevs[to]})
	p.prevs[to] = from
}

// RevertChanges drops the neighbor being built.
func (p *PathOperator) RevertChanges() {
	for i := len(p.prevLog) - 1; i >= 0; i-- {
		c := p.prevLog[i]
		p.prevs[c.node] = c.prev
	}
	p.prevLog = p.prevLog[:0]
	p.VarOperator.RevertChanges()
}

// Start loads a new current solution and positions the base nodes.
func (p *PathOperator) Start(a *Assignment) {
	p.VarOperator.Start(a)
	p.prevLog = p.prevLog[:0]
	p.initInactives()
	p.initPrevs()
	p.initPathStarts()
	p.initBaseNodes()
	p.inactiveNode = 0
	if p.hooks.OnStart != nil {
		p.hooks.OnStart(p)
	}
}

func (p *PathOperator) initInactives() {
	for i := 0; i < p.numNexts; i++ {
		p.inactives.SetTo(uint(i), p.OldNext(int64(i)) == int64(i))
	}
}

func (p *PathOperator) maxNode() int64 {
	hi := int64(p.numNexts)
	for i := 0; i < p.numNexts; i++ {
		hi = max(hi, p.OldNext(int64(i))+1)
	}
	return hi
}

func (p *PathOperator) initPrevs() {
	n := p.maxNode()
	p.prevs = p.prevs[:0]
	for i := int64(0); i < n; i++ {
		p.prevs = append(p.prevs, -1)
	}
	for i := 0; i < p.numNexts; i++ {
		if next := p.OldNext(int64(i)); next != int64(i) && next >= 0 {
			p.prevs[next] = int64(i)
		}
	}
}

// initPathStarts collects the nodes without predecessor and re-attaches the
// base nodes to the paths now holding them.
func (p *PathOperator) initPathStarts() {
	size := p.maxNode()
	hasPrev := make([]bool, p.numNexts)
	for i := 0; i < p.numNexts; i++ {
		if next := p.OldNext(int64(i)); next >= 0 && next < int64(p.numNexts) {
			hasPrev[next] = true
		}
	}
	p.pathStarts = p.pathStarts[:0]
	for i := 0; i < p.numNexts; i++ {
		if !hasPrev[i] {
			p.pathStarts = append(p.pathStarts, int64(i))
		}
	}
	p.nodePaths = p.nodePaths[:0]
	for i := int64(0); i < size; i++ {
		p.nodePaths = append(p.nodePaths, -1)
	}
	for k, start := range p.pathStarts {
		node := start
		for steps := 0; steps <= p.numNexts; steps++ {
			if node < 0 || node >= size {
				break
			}
			p.nodePaths[node] = k
			if p.IsPathEnd(node) {
				break
			}
			node = p.OldNext(node)
		}
	}
	if p.firstStart || len(p.pathStarts) == 0 {
		return
	}
	for j, node := range p.baseNodes {
		if p.IsInactive(node) || node < 0 || node >= size || p.nodePaths[node] < 0 {
			k := min(p.basePaths[j], len(p.pathStarts)-1)
			p.basePaths[j] = k
			p.baseNodes[j] = p.pathStarts[k]
			continue
		}
		p.basePaths[j] = p.nodePaths[node]
	}
}

func (p *PathOperator) initBaseNodes() {
	if len(p.pathStarts) == 0 {
		return
	}
	if p.firstStart {
		for i := range p.baseNodes {
			p.basePaths[i] = 0
			p.baseNodes[i] = p.pathStarts[0]
		}
		p.firstStart = false
	}
	for i, node := range p.baseNodes {
		if p.hooks.RestartAtPathStart || p.IsInactive(node) {
			node = p.pathStarts[p.basePaths[i]]
			p.baseNodes[i] = node
		}
		p.endNodes[i] = node
	}
	for i := 1; i < len(p.baseNodes); i++ {
		if p.samePathAsPrevious(i) && !p.OnSamePath(p.baseNodes[i-1], p.baseNodes[i]) {
			p.baseNodes[i] = p.baseNodes[i-1]
			p.endNodes[i] = p.baseNodes[i-1]
			p.basePaths[i] = p.basePaths[i-1]
		}
	}
	p.justStarted = true
}

func (p *PathOperator) samePathAsPrevious(i int) bool {
	return p.hooks.SamePathAsPrevious != nil && p.hooks.SamePathAsPrevious(i)
}

func (p *PathOperator) restartPosition(i int) int64 {
	if p.hooks.RestartPosition != nil {
		return p.hooks.RestartPosition(p, i)
	}
	return p.StartNode(i)
}

// incrementPosition advances the base node odometer.
func (p *PathOperator) incrementPosition() bool {
	if len(p.pathStarts) == 0 || len(p.baseNodes) == 0 {
		return false
	}
	if p.justStarted {
		p.justStarted = false
		return true
	}
	n := len(p.baseNodes)
	lastRestarted := n
	for i := n - 1; i >= 0; i-- {
		if !p.IsPathEnd(p.baseNodes[i]) {
			p.baseNodes[i] = p.OldNext(p.baseNodes[i])
			break
		}
		p.baseNodes[i] = p.StartNode(i)
		lastRestarted = i
	}
	for i := lastRestarted; i < n; i++ {
		p.baseNodes[i] = p.restartPosition(i)
	}
	if lastRestarted > 0 {
		return p.checkEnds()
	}
	for i := n - 1; i >= 0; i-- {
		next := p.basePaths[i] + 1
		if next < len(p.pathStarts) {
			p.basePaths[i] = next
			p.baseNodes[i] = p.pathStarts[next]
			if i == 0 || !p.samePathAsPrevious(i) {
				break
			}
		} else {
			p.basePaths[i] = 0
			p.baseNodes[i] = p.pathStarts[0]
		}
	}
	for i := 1; i < n; i++ {
		if p.samePathAsPrevious(i) && p.basePaths[i] == p.basePaths[i-1] {
			p.baseNodes[i] = p.restartPosition(i)
		}
	}
	return p.checkEnds()
}

func (p *PathOperator) checkEnds() bool {
	for i := len(p.baseNodes) - 1; i >= 0; i-- {
		if p.baseNodes[i] != p.endNodes[i] {
			return true
		}
	}
	return false
}

func (p *PathOperator) nextPosition() bool {
	for p.incrementPosition() {
		p.RevertChanges()
		if p.hooks.MakeNeighbor(p) {
			return true
		}
	}
	return false
}

func (p *PathOperator) makeOneNeighbor() bool {
	if !p.hooks.InactiveNodes {
		return p.nextPosition()
	}
	for p.inactiveNode < p.numNexts {
		if p.IsInactive(int64(p.inactiveNode)) && p.nextPosition() {
			return true
		}
		p.ResetPosition()
		p.inactiveNode++
	}
	return false
}

// MakeNextNeighbor writes the next neighbor into delta.
func (p *PathOperator) MakeNextNeighbor(delta *Assignment) bool {
	for p.makeOneNeighbor() {
		if p.ApplyChanges(delta) {
			return true
		}
	}
	p.RevertChanges()
	return false
}

// ---------------------------------------------------------------------------
// Move primitives. Each returns false, leaving the candidate untouched, when
// the move is not valid.

// CheckChainValidity reports whether chainEnd is reached from beforeChain
// without crossing a path end or exclude.
func (p *PathOperator) CheckChainValidity(beforeChain, chainEnd, exclude int64) bool {
	if beforeChain == chainEnd || beforeChain == exclude {
		return false
	}
	current := beforeChain
	for size := 0; current != chainEnd; size++ {
		if size > p.numNexts || p.IsPathEnd(current) {
			return false
		}
		current = p.Next(current)
		if current == exclude {
			return false
		}
	}
	return true
}

// MoveChain moves the nodes after beforeChain up to chainEnd so that they
// follow destination.
func (p *PathOperator) MoveChain(beforeChain, chainEnd, destination int64) bool {
	if destination == beforeChain || destination == chainEnd || p.IsPathEnd(destination) || p.IsPathEnd(chainEnd) {
		return false
	}
	if !p.CheckChainValidity(beforeChain, chainEnd, destination) {
		return false
	}
	destPath := p.Path(destination)
	afterChain := p.Next(chainEnd)
	p.SetNext(chainEnd, p.Next(destination), destPath)
	if p.ignorePathVars {
		p.SetNext(destination, p.Next(beforeChain), destPath)
	} else {
		current, next := destination, p.Next(beforeChain)
		for current != chainEnd {
			p.SetNext(current, next, destPath)
			current, next = next, p.Next(next)
		}
	}
	p.SetNext(beforeChain, afterChain, p.Path(beforeChain))
	return true
}

// ReverseChain reverses the nodes strictly between beforeChain and
// afterChain and returns the node now following beforeChain.
func (p *PathOperator) ReverseChain(beforeChain, afterChain int64) (int64, bool) {
	if !p.CheckChainValidity(beforeChain, afterChain, -1) {
		return 0, false
	}
	path := p.Path(beforeChain)
	current := p.Next(beforeChain)
	if current == afterChain {
		return 0, false
	}
	currentNext := p.Next(current)
	p.SetNext(current, afterChain, path)
	for currentNext != afterChain {
		next := p.Next(currentNext)
		p.SetNext(currentNext, current, path)
		current, currentNext = currentNext, next
	}
	p.SetNext(beforeChain, current, path)
	return current, true
}

// MakeActive inserts the inactive node after destination.
func (p *PathOperator) MakeActive(node, destination int64) bool {
	if p.IsPathEnd(destination) {
		return false
	}
	path := p.Path(destination)
	p.SetNext(node, p.Next(destination), path)
	p.SetNext(destination, node, path)
	return true
}

// MakeChainInactive deactivates the nodes after beforeChain up to chainEnd.
func (p *PathOperator) MakeChainInactive(beforeChain, chainEnd int64) bool {
	if !p.CheckChainValidity(beforeChain, chainEnd, -1) || p.IsPathEnd(chainEnd) {
		return false
	}
	afterChain := p.Next(chainEnd)
	current := p.Next(beforeChain)
	for current != afterChain {
		next := p.Next(current)
		p.SetNext(current, current, NoPath)
		current = next
	}
	p.SetNext(beforeChain, afterChain, p.Path(beforeChain))
	return true
}

// SwapActiveAndInactive replaces active by inactive.
func (p *PathOperator) SwapActiveAndInactive(active, inactive int64) bool {
	if active == inactive {
		return false
	}
	prev := p.Prev(active)
	if prev < 0 {
		return false
	}
	return p.MakeChainInactive(prev, active) && p.MakeActive(inactive, prev)
}

// DeactivateNode releases the successor and path variables of node.
func (p *PathOperator) DeactivateNode(node int64) {
	p.Deactivate(int(node))
	if !p.ignorePathVars {
		p.Deactivate(int(node) + p.numNexts)
	}
}
