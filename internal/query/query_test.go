package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setOf(elems ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(elems))
	for _, e := range elems {
		out[e] = struct{}{}
	}
	return out
}

func keysOf(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

func namedResolver(sets map[string]map[string]struct{}) Resolver {
	return func(name string) (map[string]struct{}, bool) {
		s, ok := sets[name]
		return s, ok
	}
}

func TestParseEmptyQueryIsRejected(t *testing.T) {
	_, err := Parse("")
	require.ErrorIs(t, err, ErrEmptyQuery)

	_, err = Parse("   \t\n")
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse("A & (B | C")
	require.Error(t, err)

	_, err = Parse("A &")
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseIntersectionBindsTighterThanUnion(t *testing.T) {
	node, err := Parse("A | B & C")
	require.NoError(t, err)

	// Expect A | (B & C): top node is union, right child is intersection.
	require.Equal(t, NodeUnion, node.Kind)
	require.Equal(t, "A", node.Left.Name)
	require.Equal(t, NodeIntersection, node.Right.Kind)
	require.Equal(t, "B", node.Right.Left.Name)
	require.Equal(t, "C", node.Right.Right.Name)
}

func TestParseLeftAssociativity(t *testing.T) {
	node, err := Parse("A - B | C")
	require.NoError(t, err)

	// Expect (A - B) | C.
	require.Equal(t, NodeUnion, node.Kind)
	require.Equal(t, NodeDifference, node.Left.Kind)
	require.Equal(t, "A", node.Left.Left.Name)
	require.Equal(t, "B", node.Left.Right.Name)
	require.Equal(t, "C", node.Right.Name)
}

func TestParseParentheses(t *testing.T) {
	node, err := Parse("(A | B) & C")
	require.NoError(t, err)

	require.Equal(t, NodeIntersection, node.Kind)
	require.Equal(t, NodeUnion, node.Left.Kind)
	require.Equal(t, "C", node.Right.Name)
}

func TestKeysOfCollectsAllIdentifiers(t *testing.T) {
	node, err := Parse("(A & B) - C")
	require.NoError(t, err)

	keys := node.Keys()
	require.Len(t, keys, 3)
	require.Contains(t, keys, "A")
	require.Contains(t, keys, "B")
	require.Contains(t, keys, "C")
}

// TestScenarioS7 matches the spec's literal scenario: (A & B) - C over
// A={1,2,3}, B={2,3,4}, C={3} must evaluate to {2}.
func TestScenarioS7(t *testing.T) {
	node, err := Parse("(A & B) - C")
	require.NoError(t, err)

	resolver := namedResolver(map[string]map[string]struct{}{
		"A": setOf("1", "2", "3"),
		"B": setOf("2", "3", "4"),
		"C": setOf("3"),
	})

	result, missing := Evaluate(node, resolver)
	require.Empty(t, missing)
	require.Equal(t, []string{"2"}, keysOf(result))
}

func TestEvaluateReportsMissingKeySets(t *testing.T) {
	node, err := Parse("A | Z")
	require.NoError(t, err)

	resolver := namedResolver(map[string]map[string]struct{}{
		"A": setOf("1", "2"),
	})

	result, missing := Evaluate(node, resolver)
	require.ElementsMatch(t, []string{"1", "2"}, keysOf(result))
	require.Equal(t, []string{"Z"}, missing)
}

func TestUnionIsCommutativeAndAssociative(t *testing.T) {
	resolver := namedResolver(map[string]map[string]struct{}{
		"A": setOf("1", "2"),
		"B": setOf("2", "3"),
		"C": setOf("3", "4"),
	})

	ab, err := Parse("A | B")
	require.NoError(t, err)
	ba, err := Parse("B | A")
	require.NoError(t, err)

	abResult, _ := Evaluate(ab, resolver)
	baResult, _ := Evaluate(ba, resolver)
	require.Equal(t, abResult, baResult, "union must be commutative")

	abc, err := Parse("(A | B) | C")
	require.NoError(t, err)
	abc2, err := Parse("A | (B | C)")
	require.NoError(t, err)

	abcResult, _ := Evaluate(abc, resolver)
	abc2Result, _ := Evaluate(abc2, resolver)
	require.Equal(t, abcResult, abc2Result, "union must be associative")
}

func TestIntersectionIsCommutative(t *testing.T) {
	resolver := namedResolver(map[string]map[string]struct{}{
		"A": setOf("1", "2", "3"),
		"B": setOf("2", "3", "4"),
	})

	ab, err := Parse("A & B")
	require.NoError(t, err)
	ba, err := Parse("B & A")
	require.NoError(t, err)

	abResult, _ := Evaluate(ab, resolver)
	baResult, _ := Evaluate(ba, resolver)
	require.Equal(t, abResult, baResult, "intersection must be commutative")
}

func TestIntersectionDistributesOverUnion(t *testing.T) {
	resolver := namedResolver(map[string]map[string]struct{}{
		"A": setOf("1", "2", "3"),
		"B": setOf("2", "3", "4"),
		"C": setOf("3", "4", "5"),
	})

	// A & (B | C) == (A & B) | (A & C)
	left, err := Parse("A & (B | C)")
	require.NoError(t, err)
	right, err := Parse("(A & B) | (A & C)")
	require.NoError(t, err)

	leftResult, _ := Evaluate(left, resolver)
	rightResult, _ := Evaluate(right, resolver)
	require.Equal(t, leftResult, rightResult, "intersection must distribute over union")
}

func TestDifferenceIsNotCommutative(t *testing.T) {
	resolver := namedResolver(map[string]map[string]struct{}{
		"A": setOf("1", "2", "3"),
		"B": setOf("2", "3", "4"),
	})

	ab, err := Parse("A - B")
	require.NoError(t, err)
	ba, err := Parse("B - A")
	require.NoError(t, err)

	abResult, _ := Evaluate(ab, resolver)
	baResult, _ := Evaluate(ba, resolver)
	require.NotEqual(t, abResult, baResult)
	require.Equal(t, []string{"1"}, keysOf(abResult))
	require.Equal(t, []string{"4"}, keysOf(baResult))
}
