package query

// Resolver supplies the elements of a named string key-set (the engine's
// resolver serves pre-fetched string-set values; uint32 sets are not
// resolved and count as missing). A missing name resolves
// to (nil, false); evaluate treats it as an empty set and lets the caller
// count it against the missing-key-set metric.
type Resolver func(name string) (map[string]struct{}, bool)

// Evaluate walks the AST bottom-up (post-order, same shape as the original
// ASTPostOrderEvalVisitor) applying set union/intersection/difference at
// each internal node and resolving leaves via resolver. missing collects
// the names that resolver reported absent, for the missing-key-set metric.
func Evaluate(n *Node, resolver Resolver) (set map[string]struct{}, missing []string) {
	missingSet := make(map[string]struct{})
	result := evalNode(n, resolver, missingSet)

	missing = make([]string, 0, len(missingSet))
	for name := range missingSet {
		missing = append(missing, name)
	}
	return result, missing
}

func evalNode(n *Node, resolver Resolver, missing map[string]struct{}) map[string]struct{} {
	if n == nil {
		return map[string]struct{}{}
	}

	switch n.Kind {
	case NodeValue:
		set, ok := resolver(n.Name)
		if !ok {
			missing[n.Name] = struct{}{}
			return map[string]struct{}{}
		}
		return cloneSet(set)
	case NodeUnion:
		left := evalNode(n.Left, resolver, missing)
		right := evalNode(n.Right, resolver, missing)
		return union(left, right)
	case NodeIntersection:
		left := evalNode(n.Left, resolver, missing)
		right := evalNode(n.Right, resolver, missing)
		return intersection(left, right)
	case NodeDifference:
		left := evalNode(n.Left, resolver, missing)
		right := evalNode(n.Right, resolver, missing)
		return difference(left, right)
	default:
		return map[string]struct{}{}
	}
}

func cloneSet(s map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

func union(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func intersection(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	for k := range small {
		if _, ok := large[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func difference(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a))
	for k := range a {
		if _, ok := b[k]; !ok {
			out[k] = struct{}{}
		}
	}
	return out
}
