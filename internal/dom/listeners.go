package dom

import (
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Event is delivered to listeners by Dispatch.
type Event struct {
	Type   string
	Target *goquery.Selection
	// Value carries typed input for "input" events.
	Value string
	// From and To carry positions for "move" events on ordering lists.
	From, To int
}

// ListenerFunc handles one event.
type ListenerFunc func(Event)

// ListenerID identifies one (element, event, handler) binding.
type ListenerID uint64

type binding struct {
	id    ListenerID
	node  *html.Node
	event string
	fn    ListenerFunc
}

// Listeners owns (element, event, handler) triples so that everything
// bound for one question can be dropped as a group.
type Listeners struct {
	mu       sync.Mutex
	next     ListenerID
	bindings []binding
}

func NewListeners() *Listeners {
	return &Listeners{}
}

// Bind attaches fn to every element in sel.
func (l *Listeners) Bind(sel *goquery.Selection, event string, fn ListenerFunc) []ListenerID {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]ListenerID, 0, sel.Length())
	for _, n := range sel.Nodes {
		l.next++
		l.bindings = append(l.bindings, binding{id: l.next, node: n, event: event, fn: fn})
		ids = append(ids, l.next)
	}
	return ids
}

// Unbind removes bindings by reference.
func (l *Listeners) Unbind(ids ...ListenerID) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[ListenerID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.bindings[:0]
	for _, b := range l.bindings {
		if _, ok := drop[b.id]; !ok {
			kept = append(kept, b)
		}
	}
	l.bindings = kept
}

// UnbindAll drops every binding.
func (l *Listeners) UnbindAll() {
	l.mu.Lock()
	l.bindings = nil
	l.mu.Unlock()
}

// Count returns the number of live bindings.
func (l *Listeners) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.bindings)
}

// Dispatch delivers ev to listeners bound to the first element of target,
// in binding order. Disabled elements swallow events. It returns the
// number of listeners invoked.
func (l *Listeners) Dispatch(target *goquery.Selection, ev Event) int {
	node := Node(target)
	if node == nil || Disabled(target.First()) {
		return 0
	}
	ev.Target = target.First()

	l.mu.Lock()
	var fns []ListenerFunc
	for _, b := range l.bindings {
		if b.node == node && b.event == ev.Type {
			fns = append(fns, b.fn)
		}
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
	return len(fns)
}
