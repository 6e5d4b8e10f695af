package session

// ballot holds the live votes of the current round in first-cast order.
type ballot struct {
	order  []string
	values map[string]string
}

func newBallot() ballot {
	return ballot{values: make(map[string]string)}
}

func (b *ballot) set(name, value string) {
	if _, ok := b.values[name]; !ok {
		b.order = append(b.order, name)
	}
	b.values[name] = value
}

func (b *ballot) remove(name string) {
	if _, ok := b.values[name]; !ok {
		return
	}
	delete(b.values, name)
	for i, n := range b.order {
		if n == name {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *ballot) clear() {
	b.order = nil
	b.values = make(map[string]string)
}

func (b *ballot) has(name string) bool {
	_, ok := b.values[name]
	return ok
}

func (b *ballot) len() int {
	return len(b.order)
}

func (b *ballot) names() []string {
	return append([]string{}, b.order...)
}

func (b *ballot) entries() []VoteEntry {
	entries := make([]VoteEntry, len(b.order))
	for i, name := range b.order {
		entries[i] = VoteEntry{Participant: name, Value: b.values[name]}
	}
	return entries
}

func (b *ballot) tokens() []string {
	tokens := make([]string, len(b.order))
	for i, name := range b.order {
		tokens[i] = b.values[name]
	}
	return tokens
}
