package xmlstream

import (
	"reflect"
	"sort"
	"sync"
)

// ObserverFunc receives the payload dispatched under a selector.
type ObserverFunc func(payload any)

// Dispatcher is the capability interface for anything observers can be
// registered on: streams, factories' build targets, test doubles.
type Dispatcher interface {
	AddObserver(selector string, fn ObserverFunc)
	RemoveObserver(selector string, fn ObserverFunc)
	Dispatch(payload any, selector string)
}

// ObserverHandle names a single registration for exact removal. The zero
// value is never issued.
type ObserverHandle uint64

type observerEntry struct {
	fn       ObserverFunc
	key      uintptr
	id       ObserverHandle
	priority int
	once     bool
}

// EventDispatcher is a selector-keyed observer registry. Selectors are
// opaque strings matched exactly; the reserved stream lifecycle selectors
// are just well-known values. One dispatcher per stream or factory target;
// there is no process-wide registry.
type EventDispatcher struct {
	mu        sync.RWMutex
	observers map[string][]observerEntry
	nextID    ObserverHandle
}

var _ Dispatcher = (*EventDispatcher)(nil)

// NewEventDispatcher returns an empty registry.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{observers: make(map[string][]observerEntry)}
}

// AddObserver appends fn to the ordered list for selector. No
// deduplication: registering the same function twice invokes it twice per
// dispatch.
func (d *EventDispatcher) AddObserver(selector string, fn ObserverFunc) {
	d.add(selector, fn, 0, false)
}

// AddObserverPriority registers fn with an explicit priority. Higher
// priorities are invoked first; within equal priority, registration order
// holds. AddObserver registers at priority 0.
func (d *EventDispatcher) AddObserverPriority(selector string, fn ObserverFunc, priority int) {
	d.add(selector, fn, priority, false)
}

// AddOnetimeObserver registers fn for a single dispatch. The registration
// is removed before fn is invoked, so a reentrant dispatch from inside fn
// cannot fire it again.
func (d *EventDispatcher) AddOnetimeObserver(selector string, fn ObserverFunc) {
	d.add(selector, fn, 0, true)
}

// AddObserverHandle registers fn like AddObserver and returns a handle
// naming this exact registration. Closures built by the same constructor
// share a code pointer, so RemoveObserver cannot distinguish them; removal
// by handle can.
func (d *EventDispatcher) AddObserverHandle(selector string, fn ObserverFunc) ObserverHandle {
	return d.add(selector, fn, 0, false)
}

// RemoveObserverHandle removes the registration named by h. A handle that
// was never issued, belongs to another selector, or was already removed is
// a no-op.
func (d *EventDispatcher) RemoveObserverHandle(selector string, h ObserverHandle) {
	if h == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.observers[selector]
	for i := range entries {
		if entries[i].id == h {
			d.observers[selector] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

func (d *EventDispatcher) add(selector string, fn ObserverFunc, priority int, once bool) ObserverHandle {
	if fn == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.observers == nil {
		d.observers = make(map[string][]observerEntry)
	}
	d.nextID++
	d.observers[selector] = append(d.observers[selector], observerEntry{
		fn:       fn,
		key:      funcKey(fn),
		id:       d.nextID,
		priority: priority,
		once:     once,
	})
	return d.nextID
}

// RemoveObserver removes the first registration of fn under selector.
// Removing a pair that was never registered is a documented no-op, not an
// error.
func (d *EventDispatcher) RemoveObserver(selector string, fn ObserverFunc) {
	if fn == nil {
		return
	}
	key := funcKey(fn)
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.observers[selector]
	for i := range entries {
		if entries[i].key == key {
			d.observers[selector] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Dispatch synchronously invokes every observer registered for selector,
// highest priority first, registration order within equal priority. The
// observer list is snapshotted before the first invocation: observers
// added or removed for the same selector during a dispatch take effect on
// the next dispatch, never the current one. Observer panics are not
// caught; they propagate to the caller.
func (d *EventDispatcher) Dispatch(payload any, selector string) {
	d.mu.Lock()
	entries := d.observers[selector]
	snapshot := make([]observerEntry, len(entries))
	copy(snapshot, entries)
	// One-shot registrations come off the live list up front.
	for i := range entries {
		if entries[i].once {
			live := entries[:0:0]
			for _, e := range entries {
				if !e.once {
					live = append(live, e)
				}
			}
			d.observers[selector] = live
			break
		}
	}
	d.mu.Unlock()

	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].priority > snapshot[j].priority
	})
	for _, e := range snapshot {
		e.fn(payload)
	}
}

// ObserverCount reports registrations for a selector, mainly for tests
// and introspection.
func (d *EventDispatcher) ObserverCount(selector string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.observers[selector])
}

// funcKey yields a comparable identity for an observer function. Go
// functions are not comparable, so removal matches on the code pointer;
// distinct closures over the same literal compare equal, in which case
// RemoveObserver drops the first registration. Callers that register
// same-code closures and need exact removal use AddObserverHandle.
func funcKey(fn ObserverFunc) uintptr {
	return reflect.ValueOf(fn).Pointer()
}
