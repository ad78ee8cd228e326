package registry

import (
	"sort"
	"sync"
	"time"

	"RatePulse/internal/domain/models"
)

// Registry tracks which clients want which symbols and categories. It is
// one mutual-exclusion domain; the hub and connection handlers all mutate
// it concurrently.
type Registry struct {
	mu   sync.RWMutex
	subs map[string][]*models.Subscription // clientID -> subscriptions
}

func New() *Registry {
	return &Registry{subs: make(map[string][]*models.Subscription)}
}

// Subscribe records or refreshes a client's interest. Re-subscribing with
// the same (category, store) replaces the previous symbol set.
func (r *Registry) Subscribe(clientID string, symbols []string, category models.SubscriptionCategory, storeID string) {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if s != "" && s != "all" {
			set[s] = struct{}{}
		}
	}

	sub := &models.Subscription{
		ClientID:     clientID,
		Symbols:      set,
		Category:     category,
		StoreID:      storeID,
		LastActivity: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.subs[clientID]
	for i, e := range existing {
		if e.Category == category && e.StoreID == storeID {
			existing[i] = sub
			return
		}
	}
	r.subs[clientID] = append(existing, sub)
}

// Unsubscribe removes subscriptions for the client. With all=true every
// subscription goes regardless of filters; otherwise only the listed
// symbols (and optionally the category) are removed.
func (r *Registry) Unsubscribe(clientID string, symbols []string, category models.SubscriptionCategory, all bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if all {
		delete(r.subs, clientID)
		return
	}

	kept := r.subs[clientID][:0]
	for _, sub := range r.subs[clientID] {
		if category != "" && sub.Category != category {
			kept = append(kept, sub)
			continue
		}
		if len(symbols) == 0 {
			// no symbol filter: drop the whole subscription
			continue
		}
		for _, s := range symbols {
			delete(sub.Symbols, s)
		}
		if len(sub.Symbols) > 0 {
			kept = append(kept, sub)
		}
	}
	if len(kept) == 0 {
		delete(r.subs, clientID)
	} else {
		r.subs[clientID] = kept
	}
}

// Drop removes every subscription owned by the client. Used on disconnect.
func (r *Registry) Drop(clientID string) {
	r.mu.Lock()
	delete(r.subs, clientID)
	r.mu.Unlock()
}

// Matches returns the ids of clients whose subscriptions cover the event:
// category matches (or sub is "all"), symbol set covers the pair (or is
// empty), and store scope matches (a global event reaches store-scoped
// subscribers too).
func (r *Registry) Matches(ev *models.ChangeEvent) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for clientID, subs := range r.subs {
		for _, sub := range subs {
			if sub.Category != models.CategoryAll && sub.Category != ev.Category {
				continue
			}
			if !sub.WantsSymbol(ev.Pair) {
				continue
			}
			if ev.StoreID != "" && sub.StoreID != "" && sub.StoreID != ev.StoreID {
				continue
			}
			out = append(out, clientID)
			break
		}
	}
	sort.Strings(out)
	return out
}

// Count reports the total number of live subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, subs := range r.subs {
		n += len(subs)
	}
	return n
}

// HasClient reports whether the client holds any subscription.
func (r *Registry) HasClient(clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[clientID]) > 0
}
