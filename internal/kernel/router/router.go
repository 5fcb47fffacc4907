// Package router implements path -> handler matching with parameter
// extraction and scope-aware permission wrapping. Matching uses a
// segment trie instead of regex scanning: every pattern that matches a
// concrete path is collected, and the one with the most literal (non-
// {param}) segments wins, ties broken by registration order, with a
// bounded LRU cache on the hot path.
package router

import (
	"container/list"
	"fmt"
	"strings"
	"sync"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/message"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/permission"
)

// HandlerFunc is the contract a registered route fulfills.
// Handlers must be idempotent for message.TypeQuery messages; other
// types are the caller's responsibility.
type HandlerFunc func(msg *message.Message, params map[string]string, opts RouteOptions) (interface{}, error)

// Metadata is the caller-visible route metadata schema.
type Metadata struct {
	Required permission.Requirement
	Scope    string
	Method   string
	User     map[string]interface{}
}

// RouteEntry is a registered (pattern, handler, metadata) triple.
type RouteEntry struct {
	Pattern  string
	Handler  HandlerFunc
	Metadata Metadata
}

// Guard lets a handler perform Layer-2 RWS checks against a resource it
// is about to act on, using the caller identity already validated by the
// router/kernel at dispatch time.
type Guard struct {
	store  *permission.Store
	caller permission.Key
}

func (g Guard) CanRead(owner permission.Key) bool  { return g.store.RWS.CanRead(owner, g.caller) }
func (g Guard) CanWrite(owner permission.Key) bool { return g.store.RWS.CanWrite(owner, g.caller) }
func (g Guard) CanGrant(owner permission.Key) bool { return g.store.RWS.CanGrant(owner, g.caller) }

// RouteOptions is passed through to a dispatched handler.
type RouteOptions struct {
	CallerID      interface{}
	CallerIDSetBy interface{}
	Guard         Guard
	Passthrough   map[string]interface{}
}

// MatchResult is the outcome of a successful pattern match.
type MatchResult struct {
	Entry  *RouteEntry
	Params map[string]string
}

// MatchOptions configures Match's optional scope check.
type MatchOptions struct {
	CallerID interface{}
	// Role resolves the caller's role name for the Layer-1 scope check.
	// Left nil (or returning "", false), scope checks always fail closed
	// when the route declares a requirement.
	Role func(callerID interface{}) (string, bool)
}

var (
	// ErrDuplicateRoute is returned by Register for an already-registered pattern.
	ErrDuplicateRoute = fmt.Errorf("router: duplicate route pattern")
	// ErrRouteNotFound means no pattern matched the path at all.
	ErrRouteNotFound = fmt.Errorf("router: no route matches path")
)

// node is one segment level of the route trie.
type node struct {
	literal map[string]*node
	param   *node
	name    string // param name, valid only when this node is reached via a param edge
	entry   *RouteEntry
}

func newNode() *node {
	return &node{literal: make(map[string]*node)}
}

// Router holds one subsystem's route table, trie, and match cache.
type Router struct {
	mu      sync.RWMutex
	root    *node
	order   []string // patterns in registration order, for GetRoutes
	perms   *permission.Store
	cache   *lru
}

// New constructs a router. perms may be nil for subsystems with no
// scope-gated routes.
func New(perms *permission.Store, cacheCapacity int) *Router {
	if cacheCapacity <= 0 {
		cacheCapacity = 256
	}
	return &Router{
		root:  newNode(),
		perms: perms,
		cache: newLRU(cacheCapacity),
	}
}

func splitPattern(pattern string) []string {
	return strings.Split(strings.Trim(pattern, "/"), "/")
}

// RegisterRoute adds a pattern to the trie. Duplicate patterns are rejected.
func (r *Router) RegisterRoute(pattern string, handler HandlerFunc, md Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	segs := splitPattern(pattern)
	cur := r.root
	for _, seg := range segs {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := seg[1 : len(seg)-1]
			if cur.param == nil {
				cur.param = newNode()
				cur.param.name = name
			}
			cur = cur.param
		} else {
			next, ok := cur.literal[seg]
			if !ok {
				next = newNode()
				cur.literal[seg] = next
			}
			cur = next
		}
	}
	if cur.entry != nil {
		return ErrDuplicateRoute
	}
	cur.entry = &RouteEntry{Pattern: pattern, Handler: handler, Metadata: md}
	r.order = append(r.order, pattern)
	r.cache.clear()
	return nil
}

// UnregisterRoute removes a pattern from the trie.
func (r *Router) UnregisterRoute(pattern string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	segs := splitPattern(pattern)
	cur := r.root
	for _, seg := range segs {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if cur.param == nil {
				return false
			}
			cur = cur.param
		} else {
			next, ok := cur.literal[seg]
			if !ok {
				return false
			}
			cur = next
		}
	}
	if cur.entry == nil {
		return false
	}
	cur.entry = nil
	for i, p := range r.order {
		if p == pattern {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.cache.clear()
	return true
}

// HasRoute reports whether pattern is currently registered.
func (r *Router) HasRoute(pattern string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	segs := splitPattern(pattern)
	cur := r.root
	for _, seg := range segs {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if cur.param == nil {
				return false
			}
			cur = cur.param
		} else {
			next, ok := cur.literal[seg]
			if !ok {
				return false
			}
			cur = next
		}
	}
	return cur.entry != nil
}

// GetRoutes returns registered patterns in registration order.
func (r *Router) GetRoutes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// candidate is one complete trie match against a concrete path, together
// with the params that walk extracted.
type candidate struct {
	entry  *RouteEntry
	params map[string]string
}

// collectEntries walks every literal/param branch that matches segs,
// instead of stopping at the first complete match. A path can satisfy
// more than one registered pattern (e.g. "b/{c}/{d}" and "{a}/x/y" both
// match "b/x/y"), and spec §4.3 picks among them by literal-segment
// count rather than by which branch the walk happens to try first.
func collectEntries(n *node, segs []string, params map[string]string, out *[]candidate) {
	if len(segs) == 0 {
		if n.entry != nil {
			snapshot := make(map[string]string, len(params))
			for k, v := range params {
				snapshot[k] = v
			}
			*out = append(*out, candidate{entry: n.entry, params: snapshot})
		}
		return
	}
	seg, rest := segs[0], segs[1:]

	if next, ok := n.literal[seg]; ok {
		collectEntries(next, rest, params, out)
	}
	if n.param != nil {
		params[n.param.name] = seg
		collectEntries(n.param, rest, params, out)
		delete(params, n.param.name)
	}
}

// literalSegmentCount counts a pattern's non-{param} segments.
func literalSegmentCount(pattern string) int {
	count := 0
	for _, seg := range splitPattern(pattern) {
		if !(strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}")) {
			count++
		}
	}
	return count
}

// findEntry resolves the winning match among every pattern that matches
// segs: highest literal-segment count first, ties broken by registration
// order (spec §4.3).
func findEntry(order []string, n *node, segs []string) (*RouteEntry, map[string]string, bool) {
	var candidates []candidate
	collectEntries(n, segs, make(map[string]string), &candidates)
	if len(candidates) == 0 {
		return nil, nil, false
	}

	orderIndex := func(pattern string) int {
		for i, p := range order {
			if p == pattern {
				return i
			}
		}
		return len(order)
	}

	best := candidates[0]
	bestCount := literalSegmentCount(best.entry.Pattern)
	bestIdx := orderIndex(best.entry.Pattern)
	for _, c := range candidates[1:] {
		count := literalSegmentCount(c.entry.Pattern)
		idx := orderIndex(c.entry.Pattern)
		if count > bestCount || (count == bestCount && idx < bestIdx) {
			best, bestCount, bestIdx = c, count, idx
		}
	}
	return best.entry, best.params, true
}

// ErrScopeDenied distinguishes a scope-check failure from a plain
// route-not-found, "distinguished by an out-of-band flag".
var ErrScopeDenied = fmt.Errorf("router: scope check denied")

// Match resolves path to a route entry and extracted params. It returns
// ErrRouteNotFound if nothing in the trie matches, or ErrScopeDenied (with
// a DenyReason) if the matched entry declares scope/required and the
// caller's profile does not satisfy it.
func (r *Router) Match(path string, opts MatchOptions) (*MatchResult, *permission.DenyReason, error) {
	if cached, ok := r.cache.get(path); ok {
		return r.checkScope(cached, opts)
	}

	segs := strings.Split(strings.Trim(pathAfterScheme(path), "/"), "/")

	r.mu.RLock()
	entry, params, ok := findEntry(r.order, r.root, segs)
	r.mu.RUnlock()

	if !ok {
		return nil, nil, ErrRouteNotFound
	}

	result := &MatchResult{Entry: entry, Params: params}
	r.cache.put(path, result)
	return r.checkScope(result, opts)
}

func pathAfterScheme(path string) string {
	if idx := strings.Index(path, "://"); idx >= 0 {
		return path[idx+3:]
	}
	return path
}

func (r *Router) checkScope(result *MatchResult, opts MatchOptions) (*MatchResult, *permission.DenyReason, error) {
	md := result.Entry.Metadata
	if md.Scope == "" || md.Required == "" || opts.CallerID == nil || r.perms == nil {
		return result, nil, nil
	}

	var role string
	if opts.Role != nil {
		role, _ = opts.Role(opts.CallerID)
	}
	ok, reason := r.perms.CheckRoute(role, md.Scope, md.Required)
	if !ok {
		return nil, reason, ErrScopeDenied
	}
	return result, nil, nil
}

// Route matches path and invokes the handler with route options built
// from callerID/callerIDSetBy, wiring a permission Guard bound to the
// caller for Layer-2 checks inside the handler.
func (r *Router) Route(msg *message.Message, callerID, callerIDSetBy interface{}, roleOf func(interface{}) (string, bool), passthrough map[string]interface{}) (interface{}, error) {
	result, reason, err := r.Match(msg.Path, MatchOptions{CallerID: callerID, Role: roleOf})
	if err != nil {
		if err == ErrScopeDenied {
			return nil, &PermissionError{Reason: reason}
		}
		return nil, err
	}

	opts := RouteOptions{
		CallerID:      callerID,
		CallerIDSetBy: callerIDSetBy,
		Passthrough:   passthrough,
	}
	if r.perms != nil {
		opts.Guard = Guard{store: r.perms, caller: callerID}
	}
	return result.Entry.Handler(msg, result.Params, opts)
}

// PermissionError wraps a Layer-1 scope denial for callers of Route.
type PermissionError struct {
	Reason *permission.DenyReason
}

func (e *PermissionError) Error() string {
	if e.Reason == nil {
		return "router: permission denied"
	}
	return fmt.Sprintf("router: permission denied: %s (scope=%s required=%s)", e.Reason.Reason, e.Reason.Scope, e.Reason.Required)
}

// lru is a small fixed-capacity LRU cache of path -> MatchResult.
type lru struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type lruEntry struct {
	key   string
	value *MatchResult
}

func newLRU(capacity int) *lru {
	return &lru{capacity: capacity, ll: list.New(), items: make(map[string]*list.Element)}
}

func (c *lru) get(key string) (*MatchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruEntry).value, true
}

func (c *lru) put(key string, value *MatchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry).value = value
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&lruEntry{key: key, value: value})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		back := c.ll.Back()
		if back != nil {
			c.ll.Remove(back)
			delete(c.items, back.Value.(*lruEntry).key)
		}
	}
}

func (c *lru) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}
