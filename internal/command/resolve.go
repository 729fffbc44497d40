package command

import "strings"

// Match is the result of a successful resolution: the deepest node
// reached and the translated text accumulated on the way down.
type Match struct {
	Node *Node
	Text string
}

// Resolve looks the first token of text up among the root nodes and
// walks the remaining tokens down the tree.  It reports false when the
// first token names no root; the caller must then treat text as
// literal input.
//
// Once a root matched, resolution never fails: the walk stops at the
// first token without a matching child and returns the longest prefix
// matched so far.  Trailing unmatched tokens are dropped.
func (t *Tree) Resolve(text string) (Match, bool) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return Match{}, false
	}
	root := t.Root(tokens[0])
	if root == nil {
		return Match{}, false
	}
	return walk(root, tokens[1:]), true
}

// ResolveFrom walks every token of text starting below start.  The
// translation is seeded with start's CommandText.
func ResolveFrom(start *Node, text string) Match {
	return walk(start, tokenize(text))
}

func walk(current *Node, tokens []string) Match {
	var b strings.Builder
	b.WriteString(current.CommandText)

	for _, tok := range tokens {
		next := current.Child(tok)
		if next == nil {
			break
		}
		b.WriteByte(' ')
		b.WriteString(next.CommandText)
		current = next
	}
	return Match{Node: current, Text: b.String()}
}

// tokenize trims text, drops embedded newlines, folds case and splits
// on runs of whitespace.  strings.ToLower applies Unicode simple case
// mapping, which does not depend on the host locale.
func tokenize(text string) []string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\n", "")
	return strings.Fields(strings.ToLower(text))
}
