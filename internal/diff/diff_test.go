package diff

import (
	"fmt"
	"math/rand/v2"
	"reflect"
	"testing"
)

type entry struct {
	id   string
	body string
}

var byID = Comparable(func(e entry) string { return e.id })

func entries(defs ...string) []entry {
	out := make([]entry, 0, len(defs))
	for _, s := range defs {
		id, body := s, s
		for i := range s {
			if s[i] == ':' {
				id, body = s[:i], s[i+1:]
				break
			}
		}
		out = append(out, entry{id: id, body: body})
	}
	return out
}

func mustCompute(t *testing.T, old, next []entry) Result[entry] {
	t.Helper()
	res, err := Compute(old, next, byID)
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	return res
}

func mustApply(t *testing.T, list []entry, res Result[entry]) []entry {
	t.Helper()
	out, err := Apply(list, res)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	return out
}

func TestCompute_RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		old  []entry
		next []entry
	}{
		{"both empty", nil, nil},
		{"from empty", nil, entries("a", "b")},
		{"to empty", entries("a", "b", "c"), nil},
		{"append", entries("a", "b"), entries("a", "b", "c", "d")},
		{"prepend", entries("c", "d"), entries("a", "b", "c", "d")},
		{"remove middle", entries("a", "b", "c"), entries("a", "c")},
		{"reverse", entries("a", "b", "c", "d"), entries("d", "c", "b", "a")},
		{"rotate", entries("a", "b", "c"), entries("c", "a", "b")},
		{"content change", entries("a:1", "b:1"), entries("a:1", "b:2")},
		{"mixed", entries("a:1", "b", "c:1", "d"), entries("x", "c:2", "a:1", "y", "d")},
		{"disjoint", entries("a", "b"), entries("c", "d")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := mustCompute(t, tc.old, tc.next)
			got := mustApply(t, tc.old, res)
			if len(got) == 0 && len(tc.next) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.next) {
				t.Fatalf("Apply(old, diff) = %v, want %v (ops %v)", got, tc.next, res.Ops)
			}
		})
	}
}

func TestCompute_IdenticalListsYieldEmptyScript(t *testing.T) {
	list := entries("a:1", "b:2", "c:3")
	res := mustCompute(t, list, list)
	if !res.Empty() {
		t.Fatalf("Compute(A, A) = %v, want empty", res.Ops)
	}
}

func TestCompute_ContentChangeIsSingleUpdate(t *testing.T) {
	old := entries("a:1", "b:1", "c:1")
	next := entries("z", "a:1", "b:2", "c:1")

	res := mustCompute(t, old, next)
	var updates, touchingB int
	for _, op := range res.Ops {
		if op.Kind == Update {
			updates++
			if op.Index != 2 || op.Item.id != "b" || op.Item.body != "2" {
				t.Fatalf("update op = %+v, want Update(2, b:2)", op)
			}
		}
		if op.Item.id == "b" {
			touchingB++
		}
	}
	if updates != 1 || touchingB != 1 {
		t.Fatalf("ops = %v, want exactly one op for b and it an update", res.Ops)
	}
}

func TestCompute_InsertsFromEmpty(t *testing.T) {
	i1, i2 := entry{id: "1"}, entry{id: "2"}
	res := mustCompute(t, nil, []entry{i1, i2})
	want := []Op[entry]{
		{Kind: Insert, Index: 0, Item: i1},
		{Kind: Insert, Index: 1, Item: i2},
	}
	if !reflect.DeepEqual(res.Ops, want) {
		t.Fatalf("ops = %v, want %v", res.Ops, want)
	}
}

func TestCompute_KeepsLongestOrderedRun(t *testing.T) {
	// Moving one element must not disturb the others.
	old := entries("a", "b", "c", "d", "e")
	next := entries("b", "c", "d", "e", "a")

	res := mustCompute(t, old, next)
	ins, rem, upd := res.Counts()
	if ins != 1 || rem != 1 || upd != 0 {
		t.Fatalf("counts = (%d, %d, %d), want (1, 1, 0); ops %v", ins, rem, upd, res.Ops)
	}
}

func TestCompute_RemovesDescendThenInsertsAscend(t *testing.T) {
	res := mustCompute(t, entries("a", "b", "c", "d"), entries("x", "b", "y", "d", "z"))
	lastRemove := -1
	seenInsert := false
	prevRemove, prevInsert := 1<<30, -1
	for n, op := range res.Ops {
		switch op.Kind {
		case Remove:
			if seenInsert {
				t.Fatalf("remove after insert at op %d: %v", n, res.Ops)
			}
			if op.Index >= prevRemove {
				t.Fatalf("removes not descending: %v", res.Ops)
			}
			prevRemove = op.Index
			lastRemove = n
		case Insert, Update:
			seenInsert = true
			if op.Index <= prevInsert {
				t.Fatalf("inserts not ascending: %v", res.Ops)
			}
			prevInsert = op.Index
		}
	}
	if lastRemove < 0 {
		t.Fatalf("expected removes in %v", res.Ops)
	}
}

func TestCompute_DuplicateKeysAreComputationErrors(t *testing.T) {
	cases := []struct {
		name string
		old  []entry
		next []entry
	}{
		{"old", entries("a", "a"), entries("a")},
		{"new", entries("a"), entries("b", "b")},
		{"new from empty", nil, entries("b", "b")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compute(tc.old, tc.next, byID)
			if err == nil {
				t.Fatalf("Compute returned nil error, want duplicate key error")
			}
			if !IsComputationError(err) {
				t.Fatalf("error %v is not a ComputationError", err)
			}
		})
	}
}

func TestCompute_IncompleteMatcher(t *testing.T) {
	_, err := Compute(entries("a"), entries("a"), Matcher[entry]{Key: func(e entry) string { return e.id }})
	if !IsComputationError(err) {
		t.Fatalf("Compute with nil Equal = %v, want ComputationError", err)
	}
}

func TestApply_OutOfRange(t *testing.T) {
	cases := []Op[entry]{
		{Kind: Insert, Index: 3},
		{Kind: Remove, Index: 2},
		{Kind: Update, Index: -1},
		{Kind: Kind(9), Index: 0},
	}
	for _, op := range cases {
		t.Run(op.String(), func(t *testing.T) {
			_, err := Apply(entries("a", "b"), Result[entry]{Ops: []Op[entry]{op}})
			if !IsComputationError(err) {
				t.Fatalf("Apply(%v) error = %v, want ComputationError", op, err)
			}
		})
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	list := entries("a", "b")
	res := mustCompute(t, list, entries("b", "c"))
	_ = mustApply(t, list, res)
	if !reflect.DeepEqual(list, entries("a", "b")) {
		t.Fatalf("input mutated: %v", list)
	}
}

func TestCompute_RandomizedRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for round := 0; round < 300; round++ {
		old := randomList(rng)
		next := randomList(rng)
		res, err := Compute(old, next, byID)
		if err != nil {
			t.Fatalf("round %d: Compute returned error: %v", round, err)
		}
		got, err := Apply(old, res)
		if err != nil {
			t.Fatalf("round %d: Apply returned error: %v", round, err)
		}
		if len(got) != len(next) {
			t.Fatalf("round %d: len = %d, want %d", round, len(got), len(next))
		}
		for i := range next {
			if got[i] != next[i] {
				t.Fatalf("round %d: got %v, want %v (ops %v)", round, got, next, res.Ops)
			}
		}
	}
}

func randomList(rng *rand.Rand) []entry {
	perm := rng.Perm(12)
	n := rng.IntN(len(perm) + 1)
	out := make([]entry, 0, n)
	for _, id := range perm[:n] {
		out = append(out, entry{id: fmt.Sprint(id), body: fmt.Sprint(rng.IntN(2))})
	}
	return out
}

func TestLongestIncreasing(t *testing.T) {
	cases := []struct {
		seq  []int
		want int
	}{
		{nil, 0},
		{[]int{0}, 1},
		{[]int{3, 2, 1}, 1},
		{[]int{0, 1, 2}, 3},
		{[]int{4, 0, 1, 2, 3}, 4},
		{[]int{2, 5, 3, 7, 11, 8, 10, 13, 6}, 6},
	}
	for _, tc := range cases {
		got := longestIncreasing(tc.seq)
		if len(got) != tc.want {
			t.Fatalf("longestIncreasing(%v) = %v, want length %d", tc.seq, got, tc.want)
		}
		for i := 1; i < len(got); i++ {
			if got[i] <= got[i-1] || tc.seq[got[i]] <= tc.seq[got[i-1]] {
				t.Fatalf("longestIncreasing(%v) = %v is not increasing", tc.seq, got)
			}
		}
	}
}
