// Package diff computes ordered edit scripts between two identity-bearing lists.
//
// Items are matched by identity key regardless of position. Matched items
// whose relative order survives (the longest increasing run of positions) are
// kept in place and reported as Update when their content changed. Every
// other item is removed from the old list or inserted into the new one, so a
// script never contains moves.
//
// Ops are applied in sequence against the list as it stands after the previous
// op: removes first, in descending old index, then inserts and updates in
// ascending new index.
package diff

import (
	"fmt"
	"sort"
)

// Kind identifies an edit operation.
type Kind int

const (
	Insert Kind = iota
	Remove
	Update
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Remove:
		return "remove"
	case Update:
		return "update"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Op is one step of an edit script. For Remove, Item is the removed element.
type Op[T any] struct {
	Kind  Kind
	Index int
	Item  T
}

func (o Op[T]) String() string {
	return fmt.Sprintf("%s(%d)", o.Kind, o.Index)
}

// Result is an edit script.
type Result[T any] struct {
	Ops []Op[T]
}

// Empty reports whether the script is a no-op.
func (r Result[T]) Empty() bool { return len(r.Ops) == 0 }

// Counts returns the number of inserts, removes and updates.
func (r Result[T]) Counts() (inserts, removes, updates int) {
	for _, op := range r.Ops {
		switch op.Kind {
		case Insert:
			inserts++
		case Remove:
			removes++
		case Update:
			updates++
		}
	}
	return inserts, removes, updates
}

// Matcher tells the engine how to compare items.
type Matcher[T any] struct {
	// Key returns the stable identity of an item.
	Key func(T) string
	// Equal reports whether two items with the same key have the same content.
	Equal func(a, b T) bool
}

// Comparable builds a Matcher for comparable item types using == for content.
func Comparable[T comparable](key func(T) string) Matcher[T] {
	return Matcher[T]{
		Key:   key,
		Equal: func(a, b T) bool { return a == b },
	}
}

// Inserts returns the script that builds items from an empty list.
func Inserts[T any](items []T) Result[T] {
	if len(items) == 0 {
		return Result[T]{}
	}
	ops := make([]Op[T], len(items))
	for i, item := range items {
		ops[i] = Op[T]{Kind: Insert, Index: i, Item: item}
	}
	return Result[T]{Ops: ops}
}

// Compute returns the edit script turning old into next. It is a pure function
// of its inputs and may run on any goroutine.
func Compute[T any](old, next []T, m Matcher[T]) (Result[T], error) {
	if m.Key == nil || m.Equal == nil {
		return Result[T]{}, &ComputationError{Reason: "matcher is incomplete"}
	}
	if len(old) == 0 {
		if err := checkUnique(next, m.Key, "new"); err != nil {
			return Result[T]{}, err
		}
		return Inserts(next), nil
	}

	if err := checkUnique(old, m.Key, "old"); err != nil {
		return Result[T]{}, err
	}
	newIndex, err := indexByKey(next, m.Key, "new")
	if err != nil {
		return Result[T]{}, err
	}

	// Positions in new of the old items that survive, in old order.
	var matchedOld, matchedNew []int
	for i, item := range old {
		if j, ok := newIndex[m.Key(item)]; ok {
			matchedOld = append(matchedOld, i)
			matchedNew = append(matchedNew, j)
		}
	}

	kept := make([]bool, len(old))
	keptFor := make(map[int]int, len(matchedNew)) // new index -> old index
	for _, k := range longestIncreasing(matchedNew) {
		kept[matchedOld[k]] = true
		keptFor[matchedNew[k]] = matchedOld[k]
	}

	ops := make([]Op[T], 0, len(old)+len(next)-2*len(keptFor))
	for i := len(old) - 1; i >= 0; i-- {
		if !kept[i] {
			ops = append(ops, Op[T]{Kind: Remove, Index: i, Item: old[i]})
		}
	}
	for j, item := range next {
		i, ok := keptFor[j]
		if !ok {
			ops = append(ops, Op[T]{Kind: Insert, Index: j, Item: item})
			continue
		}
		if !m.Equal(old[i], item) {
			ops = append(ops, Op[T]{Kind: Update, Index: j, Item: item})
		}
	}
	return Result[T]{Ops: ops}, nil
}

// Apply returns a copy of list with the script applied.
func Apply[T any](list []T, r Result[T]) ([]T, error) {
	out := make([]T, len(list), len(list)+len(r.Ops))
	copy(out, list)
	for n, op := range r.Ops {
		switch op.Kind {
		case Insert:
			if op.Index < 0 || op.Index > len(out) {
				return nil, opRangeError(n, op, len(out))
			}
			var zero T
			out = append(out, zero)
			copy(out[op.Index+1:], out[op.Index:])
			out[op.Index] = op.Item
		case Remove:
			if op.Index < 0 || op.Index >= len(out) {
				return nil, opRangeError(n, op, len(out))
			}
			out = append(out[:op.Index], out[op.Index+1:]...)
		case Update:
			if op.Index < 0 || op.Index >= len(out) {
				return nil, opRangeError(n, op, len(out))
			}
			out[op.Index] = op.Item
		default:
			return nil, &ComputationError{Reason: fmt.Sprintf("op %d has unknown kind %d", n, int(op.Kind))}
		}
	}
	return out, nil
}

func opRangeError[T any](n int, op Op[T], length int) error {
	return &ComputationError{Reason: fmt.Sprintf("op %d %s out of range for length %d", n, op, length)}
}

func indexByKey[T any](items []T, key func(T) string, list string) (map[string]int, error) {
	index := make(map[string]int, len(items))
	for i, item := range items {
		k := key(item)
		if _, dup := index[k]; dup {
			return nil, &ComputationError{Reason: "duplicate identity key in " + list + " list", Key: k}
		}
		index[k] = i
	}
	return index, nil
}

func checkUnique[T any](items []T, key func(T) string, list string) error {
	_, err := indexByKey(items, key, list)
	return err
}

// longestIncreasing returns the positions in seq of one longest strictly
// increasing subsequence, in ascending order.
func longestIncreasing(seq []int) []int {
	if len(seq) == 0 {
		return nil
	}
	// tails[k] is the position in seq of the smallest tail of an increasing run of length k+1.
	tails := make([]int, 0, len(seq))
	prev := make([]int, len(seq))
	for i, v := range seq {
		k := sort.Search(len(tails), func(n int) bool { return seq[tails[n]] >= v })
		if k > 0 {
			prev[i] = tails[k-1]
		} else {
			prev[i] = -1
		}
		if k == len(tails) {
			tails = append(tails, i)
		} else {
			tails[k] = i
		}
	}
	out := make([]int, len(tails))
	for i, k := tails[len(tails)-1], len(tails)-1; k >= 0; i, k = prev[i], k-1 {
		out[k] = i
	}
	return out
}
