package query

import (
	"fmt"

	"github.com/atombase/atombase/atom"
	"github.com/atombase/atombase/wire"
)

// ErrMalformedQuery reports a predicate tree that doesn't reduce to exactly
// one boolean, or an unrecognized node (§4.6, §7).
type ErrMalformedQuery struct{ Reason string }

func (e *ErrMalformedQuery) Error() string { return "malformed query: " + e.Reason }

// EvaluateTree applies the postfix AND/OR predicate tree to a per-predicate
// boolean vector (§4.6). Markers are already stripped by wire.DecodeQPs.
func EvaluateTree(nodes []wire.QP, b []bool) (bool, error) {
	if len(nodes) == 0 {
		if len(b) != 1 {
			return false, &ErrMalformedQuery{Reason: fmt.Sprintf("empty tree requires exactly 1 predicate, got %d", len(b))}
		}
		return b[0], nil
	}

	if len(nodes) == 1 && nodes[0].Command == atom.OpAndAll {
		for _, v := range b {
			if !v {
				return false, nil
			}
		}
		return true, nil
	}

	stack := make([]bool, 0, len(b)+len(nodes))
	stack = append(stack, b...)

	for _, n := range nodes {
		if n.Command != atom.OpAND && n.Command != atom.OpOR {
			return false, &ErrMalformedQuery{Reason: fmt.Sprintf("unknown predicate-tree operator %d", n.Command)}
		}
		arity := int(n.Kids)
		if arity > len(stack) {
			return false, &ErrMalformedQuery{Reason: "predicate-tree arity exceeds stack depth"}
		}
		args := stack[len(stack)-arity:]
		var result bool
		if n.Command == atom.OpAND {
			result = true
			for _, v := range args {
				result = result && v
			}
		} else {
			result = false
			for _, v := range args {
				result = result || v
			}
		}
		stack = stack[:len(stack)-arity]
		stack = append(stack, result)
	}

	if len(stack) != 1 {
		return false, &ErrMalformedQuery{Reason: fmt.Sprintf("predicate-tree evaluation ended with %d values on the stack, want 1", len(stack))}
	}
	return stack[0], nil
}
