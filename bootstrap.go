package xmlstream

import "sync"

type bootstrap struct {
	selector string
	fn       ObserverFunc
}

// Bootstraps holds an ordered list of (selector, observer) pairs that can
// be applied to any dispatcher-capable target. Installing is a
// copy-application: the list survives and can be reapplied, typically once
// per protocol instance a factory builds. The zero value is ready to use;
// embed it in factories.
type Bootstraps struct {
	mu   sync.Mutex
	list []bootstrap
}

// AddBootstrap appends a pair to the list.
func (b *Bootstraps) AddBootstrap(selector string, fn ObserverFunc) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.list = append(b.list, bootstrap{selector: selector, fn: fn})
	b.mu.Unlock()
}

// RemoveBootstrap removes the first pair matching selector and fn.
// Removing a pair that is not in the list is a no-op.
func (b *Bootstraps) RemoveBootstrap(selector string, fn ObserverFunc) {
	if fn == nil {
		return
	}
	key := funcKey(fn)
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.list {
		if b.list[i].selector == selector && funcKey(b.list[i].fn) == key {
			b.list = append(b.list[:i:i], b.list[i+1:]...)
			return
		}
	}
}

// InstallBootstraps registers every pair on target, in list order. Pure
// side effect on target; the list is not consumed. Installing twice on the
// same target registers everything twice, consistent with the
// dispatcher's no-dedup contract.
func (b *Bootstraps) InstallBootstraps(target Dispatcher) {
	b.mu.Lock()
	pairs := make([]bootstrap, len(b.list))
	copy(pairs, b.list)
	b.mu.Unlock()

	for _, p := range pairs {
		target.AddObserver(p.selector, p.fn)
	}
}

// Len reports the number of bootstrap pairs.
func (b *Bootstraps) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.list)
}
