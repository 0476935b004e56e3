package model

import (
	"github.com/wippyai/protomodel/errors"
)

// maxDepth bounds message nesting in either direction.
const maxDepth = 512

// state is the per-call context threaded through a graph. It is never
// shared between goroutines.
type state struct {
	reg   *Registry
	phase errors.Phase
	depth int
	path  []string
	refs  *refTable
	frame *frame
}

func newState(r *Registry, phase errors.Phase) *state {
	return &state{reg: r, phase: phase}
}

func (st *state) enter(name string) error {
	st.depth++
	if st.depth > maxDepth {
		return errors.New(st.phase, errors.KindInvalidOperation).
			Path(st.path...).
			Detail("nesting exceeds %d levels; cyclic data needs reference tracking", maxDepth).
			Build()
	}
	st.path = append(st.path, name)
	return nil
}

func (st *state) leave() {
	st.depth--
	st.path = st.path[:len(st.path)-1]
}

func (st *state) references() *refTable {
	if st.refs == nil {
		st.refs = newRefTable()
	}
	return st.refs
}

// frame tracks repeated-field progress within one decoded message level.
type frame struct {
	progress map[node]*repeated
}

type repeated struct {
	seen bool // overwrite has already cleared the target
	next int  // next array slot
}

// repeatedFor returns the progress record of n in the current message.
func (st *state) repeatedFor(n node) *repeated {
	if st.frame == nil {
		st.frame = &frame{}
	}
	if st.frame.progress == nil {
		st.frame.progress = make(map[node]*repeated)
	}
	p, ok := st.frame.progress[n]
	if !ok {
		p = &repeated{}
		st.frame.progress[n] = p
	}
	return p
}

// pushFrame starts a fresh message level and returns a restore function.
func (st *state) pushFrame() func() {
	saved := st.frame
	st.frame = nil
	return func() { st.frame = saved }
}
