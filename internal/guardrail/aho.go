package guardrail

import "errors"

// KeywordMatcher finds literal keywords with an Aho-Corasick automaton.
type KeywordMatcher struct {
	nodes []ahoNode
}

type ahoNode struct {
	next map[byte]int
	fail int
	out  bool
}

func NewKeywordMatcher(keywords []string) (*KeywordMatcher, error) {
	if len(keywords) == 0 {
		return nil, errors.New("keywords are required")
	}

	nodes := []ahoNode{{next: map[byte]int{}, fail: 0}}
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		current := 0
		for i := 0; i < len(keyword); i++ {
			b := keyword[i]
			next, ok := nodes[current].next[b]
			if !ok {
				nodes = append(nodes, ahoNode{next: map[byte]int{}, fail: 0})
				next = len(nodes) - 1
				nodes[current].next[b] = next
			}
			current = next
		}
		nodes[current].out = true
	}

	if len(nodes) == 1 {
		return nil, errors.New("no non-empty keywords")
	}

	queue := make([]int, 0)
	for _, next := range nodes[0].next {
		nodes[next].fail = 0
		queue = append(queue, next)
	}

	for len(queue) > 0 {
		state := queue[0]
		queue = queue[1:]

		for b, next := range nodes[state].next {
			fail := nodes[state].fail
			for fail != 0 {
				if _, ok := nodes[fail].next[b]; ok {
					break
				}
				fail = nodes[fail].fail
			}
			if target, ok := nodes[fail].next[b]; ok && target != next {
				nodes[next].fail = target
			} else {
				nodes[next].fail = 0
			}
			nodes[next].out = nodes[next].out || nodes[nodes[next].fail].out
			queue = append(queue, next)
		}
	}

	return &KeywordMatcher{nodes: nodes}, nil
}

func (m *KeywordMatcher) Match(input string) bool {
	return m.scan(input, 1) > 0
}

// Count returns the number of non-overlapping keyword occurrences. The
// automaton restarts from the root after every hit.
func (m *KeywordMatcher) Count(input string) int {
	return m.scan(input, -1)
}

func (m *KeywordMatcher) scan(input string, limit int) int {
	state := 0
	hits := 0
	for i := 0; i < len(input); i++ {
		b := input[i]
		for state != 0 {
			if _, ok := m.nodes[state].next[b]; ok {
				break
			}
			state = m.nodes[state].fail
		}

		if next, ok := m.nodes[state].next[b]; ok {
			state = next
		}

		if m.nodes[state].out {
			hits++
			if limit > 0 && hits >= limit {
				return hits
			}
			state = 0
		}
	}

	return hits
}
