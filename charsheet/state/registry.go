package state

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/arthur-debert/charsheet/charsheet/record"
)

// Callback receives a change notification for one path.
type Callback func(newValue, oldValue any, path string)

type subscription struct {
	id uint64
	cb Callback
}

// registry holds path-keyed callbacks in subscription order.
type registry struct {
	subs   map[string][]subscription
	nextID uint64
	logger *slog.Logger
}

func newRegistry(logger *slog.Logger) *registry {
	return &registry{
		subs:   make(map[string][]subscription),
		logger: logger,
	}
}

func (r *registry) add(path string, cb Callback) func() {
	r.nextID++
	id := r.nextID
	r.subs[path] = append(r.subs[path], subscription{id: id, cb: cb})

	return func() {
		list := r.subs[path]
		for i, sub := range list {
			if sub.id != id {
				continue
			}
			rest := make([]subscription, 0, len(list)-1)
			rest = append(rest, list[:i]...)
			rest = append(rest, list[i+1:]...)
			if len(rest) == 0 {
				delete(r.subs, path)
			} else {
				r.subs[path] = rest
			}
			return
		}
	}
}

func (r *registry) count(path string) int {
	return len(r.subs[path])
}

// below returns the subscribed paths strictly under prefix, sorted.
func (r *registry) below(prefix string) []string {
	var paths []string
	for path := range r.subs {
		if path != prefix && record.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

func (r *registry) size() int {
	return len(r.subs)
}

// notify calls every subscriber of path. A failing subscriber is logged and
// does not stop the others.
func (r *registry) notify(path string, newValue, oldValue any) {
	list := r.subs[path]
	if len(list) == 0 {
		return
	}
	// Subscribers may unsubscribe while we iterate; the copy keeps the
	// current round stable.
	snapshot := append([]subscription(nil), list...)
	for _, sub := range snapshot {
		if err := invoke(sub.cb, newValue, oldValue, path); err != nil {
			r.logger.Error("state listener failed", "path", path, "error", err)
		}
	}
}

func invoke(cb Callback, newValue, oldValue any, path string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	cb(newValue, oldValue, path)
	return nil
}
