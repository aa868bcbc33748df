package satori

import (
	"sort"
	"sync"

	"github.com/nonebot/adapter-satori/wire"
)

// Registry maps login identities to bots and tracks which connection
// each bot belongs to. Connect and disconnect hooks run outside the lock.
type Registry struct {
	mu    sync.RWMutex
	bots  map[string]*Bot
	owner map[string]string
	conns map[string]map[string]struct{}

	onConnect    func(*Bot)
	onDisconnect func(*Bot)
}

// NewRegistry returns an empty registry. Either hook may be nil.
func NewRegistry(onConnect, onDisconnect func(*Bot)) *Registry {
	return &Registry{
		bots:         make(map[string]*Bot),
		owner:        make(map[string]string),
		conns:        make(map[string]map[string]struct{}),
		onConnect:    onConnect,
		onDisconnect: onDisconnect,
	}
}

// Register adds bot under connection conn. If a bot with the same
// identity already exists it is updated in place and returned with
// created == false; the connect hook fires only for new bots.
func (r *Registry) Register(conn string, bot *Bot) (registered *Bot, created bool) {
	id := bot.Identity()

	r.mu.Lock()
	if existing, ok := r.bots[id]; ok {
		existing.update(bot.Login())
		existing.setProxyURLs(bot.ProxyURLs())
		r.attach(conn, id)
		r.mu.Unlock()
		return existing, false
	}
	r.bots[id] = bot
	r.attach(conn, id)
	r.mu.Unlock()

	if r.onConnect != nil {
		r.onConnect(bot)
	}
	return bot, true
}

// attach must be called with mu held.
func (r *Registry) attach(conn, id string) {
	if prev, ok := r.owner[id]; ok && prev != conn {
		delete(r.conns[prev], id)
	}
	r.owner[id] = conn
	if r.conns[conn] == nil {
		r.conns[conn] = make(map[string]struct{})
	}
	r.conns[conn][id] = struct{}{}
}

// detach must be called with mu held.
func (r *Registry) detach(id string) *Bot {
	bot, ok := r.bots[id]
	if !ok {
		return nil
	}
	delete(r.bots, id)
	if conn, ok := r.owner[id]; ok {
		delete(r.conns[conn], id)
		if len(r.conns[conn]) == 0 {
			delete(r.conns, conn)
		}
	}
	delete(r.owner, id)
	return bot
}

// Unregister removes the bot with identity id from conn and fires the
// disconnect hook. It reports false when the bot is unknown or owned by
// another connection.
func (r *Registry) Unregister(conn, id string) (*Bot, bool) {
	r.mu.Lock()
	if owner, ok := r.owner[id]; !ok || owner != conn {
		r.mu.Unlock()
		return nil, false
	}
	bot := r.detach(id)
	r.mu.Unlock()

	if bot != nil && r.onDisconnect != nil {
		r.onDisconnect(bot)
	}
	return bot, bot != nil
}

// Update replaces the login data of a registered bot. It reports false
// when the login is incomplete or unknown.
func (r *Registry) Update(login wire.Login) bool {
	id, err := login.Identity()
	if err != nil {
		return false
	}
	r.mu.RLock()
	bot, ok := r.bots[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	bot.update(login)
	return true
}

// SetProxyURLs updates the proxy prefixes of every bot on conn.
func (r *Registry) SetProxyURLs(conn string, urls []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id := range r.conns[conn] {
		r.bots[id].setProxyURLs(urls)
	}
}

// Clear removes every bot on conn, firing the disconnect hook for each,
// and returns them.
func (r *Registry) Clear(conn string) []*Bot {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns[conn]))
	for id := range r.conns[conn] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	removed := make([]*Bot, 0, len(ids))
	for _, id := range ids {
		if bot := r.detach(id); bot != nil {
			removed = append(removed, bot)
		}
	}
	r.mu.Unlock()

	if r.onDisconnect != nil {
		for _, bot := range removed {
			r.onDisconnect(bot)
		}
	}
	return removed
}

// Reset drops every entry without firing hooks.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.bots)
	clear(r.owner)
	clear(r.conns)
}

// Bot returns the bot registered under id, or nil.
func (r *Registry) Bot(id string) *Bot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bots[id]
}

// Bots returns all registered bots ordered by identity.
func (r *Registry) Bots() []*Bot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Bot, 0, len(r.bots))
	for _, b := range r.bots {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity() < out[j].Identity() })
	return out
}

// Connection returns the connection owning id.
func (r *Registry) Connection(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.owner[id]
	return conn, ok
}

// Logins returns the identities registered on conn, sorted.
func (r *Registry) Logins(conn string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.conns[conn]))
	for id := range r.conns[conn] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered bots.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bots)
}
