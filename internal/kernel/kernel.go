// Package kernel implements the trusted mediator described in spec §4.5:
// bootstrap, subsystem registration, and sendProtected, the single secure
// entry point every cross-subsystem message passes through.
package kernel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/config"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/breaker"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/channel"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/errormgr"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/message"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/permission"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/principal"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/queue"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/ratelimit"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/response"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/router"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/scheduler"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/subsystem"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/logging"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/metrics"
)

// Reserved subsystem names. Attempting to register a subsystem under any
// of these is rejected (spec §4.5, §6).
var reservedSubsystemNames = map[string]bool{
	"kernel": true, "query": true, "command": true, "event": true, "channel": true,
}

var (
	// ErrReservedName is returned by RegisterSubsystem for a reserved name.
	ErrReservedName = fmt.Errorf("kernel: subsystem name is reserved")
	// ErrDuplicateSubsystem is returned for an already-registered name.
	ErrDuplicateSubsystem = fmt.Errorf("kernel: subsystem already registered")
	// ErrUnknownPrincipal surfaces principal.ErrUnknownPrincipal at the kernel boundary.
	ErrUnknownPrincipal = principal.ErrUnknownPrincipal
	// ErrUnknownDestination means the message path's scheme names no registered subsystem.
	ErrUnknownDestination = fmt.Errorf("kernel: no subsystem registered for destination scheme")
	// ErrUnknownSubsystem is returned by DisposeSubsystem for a name never registered.
	ErrUnknownSubsystem = fmt.Errorf("kernel: no such subsystem")
	// ErrRateLimited is returned by SendProtected when the caller's token bucket is empty.
	ErrRateLimited = fmt.Errorf("kernel: caller is rate-limited")
)

// metaCallerPKR carries the originating caller's PKR through a channel
// fan-out dispatch. It is kernel-internal and never surfaced to callers,
// so it is deliberately not one of message.Meta's exported reserved keys.
const metaCallerPKR = "_kernel.callerPKR"

// metaEnqueueCallerPKR carries the resolved caller PKR alongside a queued
// entry so the scheduler's drain loop (runEntry), which only otherwise
// sees the caller's private key, can still resolve a role for the
// Layer-1 scope check.
const metaEnqueueCallerPKR = "_kernel.enqueueCallerPKR"

// Passthrough keys the kernel injects into router.RouteOptions.Passthrough
// so a handler can itself call back into sendProtected (e.g. to deliver an
// explicit response, per scenario 3 of spec §8) without importing this
// package (which would cycle).
const (
	PassthroughSend       = "kernel.sendProtected"
	PassthroughGetReplyTo = "kernel.getReplyTo"
)

// SendFunc is the type handlers receive via PassthroughSend.
type SendFunc func(caller principal.PKR, msg *message.Message, opts SendOptions) (interface{}, error)

// GetReplyToFunc is the type handlers receive via PassthroughGetReplyTo.
type GetReplyToFunc func(messageID string) (replyChannel string, requester principal.PKR, ok bool)

// ResponseRequired marks a send as a one-shot request awaiting a reply.
type ResponseRequired struct {
	Timeout time.Duration
}

// SendOptions configures one sendProtected call.
type SendOptions struct {
	ResponseRequired *ResponseRequired
	Passthrough      map[string]interface{}
}

// SubsystemOptions configures RegisterSubsystem.
type SubsystemOptions struct {
	Synchronous   bool
	Priority      int
	QueueCapacity int
	QueuePolicy   queue.OverflowPolicy
	Routes        []RouteDef
}

// RouteDef declares one route to install on a subsystem's router at
// registration time.
type RouteDef struct {
	Pattern  string
	Handler  router.HandlerFunc
	Metadata router.Metadata
}

// registeredSubsystem is the kernel's internal handle on one subsystem.
type registeredSubsystem struct {
	name       string
	pkr        principal.PKR
	lifecycle  *subsystem.Lifecycle
	router     *router.Router
	queue      *queue.Queue
	sched      *scheduler.Subsystem
	breaker    *breaker.Breaker
	synchronous bool
}

// Event is a kernel-reserved lifecycle notification (spec §6).
type Event struct {
	Path      string
	Body      interface{}
	Timestamp time.Time
}

// Kernel is the trusted mediator (spec §4.5).
type Kernel struct {
	cfg    *config.Config
	logger *logging.Logger

	principals *principal.Registry
	perms      *permission.Store
	errs       *errormgr.Manager
	responses  *response.Manager
	channels   *channel.Manager
	rateLimit  *ratelimit.Limiter
	breakers   *breaker.Registry
	global     *scheduler.Global
	metrics    *metrics.Metrics

	kernelPKR principal.PKR

	mu          sync.RWMutex
	subsystems  map[string]*registeredSubsystem
	nameByPubKey map[string]string

	eventsMu sync.Mutex
	events   []Event

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// New bootstraps the kernel: creates the kernel principal and the global
// scheduler. The error, response, channel, rate-limit and breaker
// managers are plain components of the Kernel; New allocates no child
// principals for them. Reserved routes/commands are installed but the
// scheduler is not started; call Start to begin ticking.
func New(cfg *config.Config, logger *logging.Logger) (*Kernel, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.NewDefault()
	}

	principals := principal.NewRegistry()
	kernelPKR, err := principals.CreatePrincipal(principal.KindKernel, principal.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("kernel: failed to create kernel principal: %w", err)
	}

	budget := scheduler.Budget{Duration: cfg.Scheduler.SliceDuration, MaxMessages: cfg.Scheduler.MaxMessages}
	m := metrics.New()

	k := &Kernel{
		cfg:        cfg,
		logger:     logger,
		principals: principals,
		perms:      permission.NewStore(),
		errs:       errormgr.NewManager(cfg.ErrorsCfg.RingCapacity),
		responses:  response.NewManager(),
		rateLimit:  ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.RateLimit.RequestsPerSecond, Burst: cfg.RateLimit.Burst}),
		global:     scheduler.New(budget),
		metrics:    m,
		kernelPKR:  kernelPKR,
		subsystems: make(map[string]*registeredSubsystem),
		nameByPubKey: make(map[string]string),
	}
	k.breakers = breaker.NewRegistry(breaker.Settings{
		OnStateChange: func(subsystem string, from, to breaker.State) {
			k.metrics.SetBreakerState(subsystem, int(to))
			k.logger.Info("breaker state changed", logging.Subsystem(subsystem), zap.Int("from", int(from)), zap.Int("to", int(to)))
		},
	})
	k.channels = channel.NewManager(k.dispatchToParticipant)

	if !k.global.SetStrategy(cfg.Scheduler.Strategy) {
		logger.Warn("unknown scheduler strategy, keeping default", zap.String("strategy", cfg.Scheduler.Strategy))
	}

	k.logger.Info("kernel bootstrapped", zap.String("kernel_pkr", kernelPKR.PublicKey))
	return k, nil
}

// Start begins the global scheduler's tick loop and a reply-binding reaper
// goroutine. Both stop when ctx is cancelled or Stop is called.
func (k *Kernel) Start(ctx context.Context) {
	k.global.Start(ctx)

	k.reaperStop = make(chan struct{})
	k.reaperDone = make(chan struct{})
	interval := k.cfg.Response.ReapInterval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	go func() {
		defer close(k.reaperDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-k.reaperStop:
				return
			case <-ticker.C:
				if n := k.responses.Reap(time.Now()); n > 0 {
					for i := 0; i < n; i++ {
						k.metrics.IncResponseTimeouts()
					}
					k.logger.Debug("reaped expired reply bindings", zap.Int("count", n))
				}
				k.metrics.SetResponsesPending(k.responses.Pending())
			}
		}
	}()
}

// Stop halts the global scheduler and the reaper goroutine, then drains
// every subsystem's queue with a bounded grace deadline (spec §5 graceful
// shutdown).
func (k *Kernel) Stop() {
	defer k.metrics.Close()
	k.global.Stop()
	if k.reaperStop != nil {
		close(k.reaperStop)
		<-k.reaperDone
	}

	k.mu.RLock()
	subs := make([]*registeredSubsystem, 0, len(k.subsystems))
	for _, s := range k.subsystems {
		subs = append(subs, s)
	}
	k.mu.RUnlock()

	deadline := time.Now().Add(500 * time.Millisecond)
	for _, s := range subs {
		for s.queue.Len() > 0 && time.Now().Before(deadline) {
			s.sched.RunSlice(scheduler.Budget{Duration: 5 * time.Millisecond, MaxMessages: s.queue.Len()})
		}
	}
}

// RegisterSubsystem builds and registers a new subsystem, allocating it a
// top-level principal owned by the kernel (spec §4.5: "top-level
// subsystems therefore also have kernel authority"). Equivalent to
// sending kernel://command/register-subsystem.
func (k *Kernel) RegisterSubsystem(name string, opts SubsystemOptions) (principal.PKR, error) {
	if reservedSubsystemNames[name] {
		return principal.PKR{}, ErrReservedName
	}

	k.mu.Lock()
	if _, exists := k.subsystems[name]; exists {
		k.mu.Unlock()
		return principal.PKR{}, ErrDuplicateSubsystem
	}
	k.mu.Unlock()

	lc := subsystem.NewLifecycle()

	capacity := opts.QueueCapacity
	if capacity == 0 {
		capacity = k.cfg.Queue.Capacity
	}
	policy := opts.QueuePolicy
	if policy == "" {
		policy = k.cfg.Queue.Policy
	}
	q := queue.New(capacity, policy)
	rtr := router.New(k.perms, 256)
	for _, rd := range opts.Routes {
		if err := rtr.RegisterRoute(rd.Pattern, rd.Handler, rd.Metadata); err != nil {
			return principal.PKR{}, fmt.Errorf("kernel: registering route %s for %s: %w", rd.Pattern, name, err)
		}
	}

	sub := &registeredSubsystem{
		name:        name,
		router:      rtr,
		queue:       q,
		breaker:     k.breakers.For(name),
		synchronous: opts.Synchronous,
		lifecycle:   lc,
	}
	if err := lc.Advance(subsystem.StateBuilt); err != nil {
		return principal.PKR{}, err
	}

	pkr, err := k.principals.CreatePrincipal(principal.KindTopLevel, principal.CreateOptions{
		Owner:    &k.kernelPKR,
		Metadata: map[string]interface{}{"subsystem": name},
	})
	if err != nil {
		return principal.PKR{}, fmt.Errorf("kernel: allocating principal for %s: %w", name, err)
	}
	sub.pkr = pkr

	sub.sched = scheduler.NewSubsystem(name, opts.Priority, q, func(entry queue.Entry) {
		k.runEntry(sub, entry)
		k.metrics.RecordSchedulerSlice(name, 1)
	})

	if err := lc.Advance(subsystem.StateRegistered); err != nil {
		return principal.PKR{}, err
	}

	k.mu.Lock()
	k.subsystems[name] = sub
	k.nameByPubKey[pkr.PublicKey] = name
	k.mu.Unlock()

	k.global.Register(sub.sched)

	k.emitEvent("kernel://event/subsystem-registered", map[string]interface{}{
		"subsystem":     name,
		"subsystemName": name,
		"options":       opts,
		"timestamp":     time.Now(),
	})
	k.logger.Info("subsystem registered", logging.Subsystem(name), zap.String("pkr", pkr.PublicKey))
	return pkr, nil
}

// DisposeSubsystem stops the named subsystem's scheduling, drains its
// queue, and removes it from the kernel's subsystem and public-key
// indexes (spec §4.5 Registered->Disposed). Its principal is not removed
// from the principal registry: the PKR still resolves there afterwards.
func (k *Kernel) DisposeSubsystem(name string) error {
	k.mu.Lock()
	sub, ok := k.subsystems[name]
	if !ok {
		k.mu.Unlock()
		return ErrUnknownSubsystem
	}
	delete(k.subsystems, name)
	delete(k.nameByPubKey, sub.pkr.PublicKey)
	k.mu.Unlock()

	k.global.Unregister(name)
	for sub.queue.Len() > 0 {
		if sub.sched.RunSlice(scheduler.Budget{Duration: 50 * time.Millisecond, MaxMessages: sub.queue.Len()}) == 0 {
			break
		}
	}
	if err := sub.lifecycle.Advance(subsystem.StateDisposed); err != nil {
		return err
	}

	k.emitEvent("kernel://event/subsystem-disposed", map[string]interface{}{
		"subsystem": name,
		"timestamp": time.Now(),
	})
	k.logger.Info("subsystem disposed", logging.Subsystem(name))
	return nil
}

// SendProtected is the single secure entry point (spec §4.5). It
// resolves caller authority, determines the destination subsystem,
// optionally tracks a reply binding, routes to the destination (directly
// for synchronous/process-immediate subsystems, via its queue otherwise),
// and — on handler completion — auto-delivers the result to any pending
// reply binding.
func (k *Kernel) SendProtected(caller principal.PKR, msg *message.Message, opts SendOptions) (interface{}, error) {
	priv, err := k.principals.ResolvePKR(caller)
	if err != nil {
		k.errs.Add("kernel", errormgr.KindUnknownPrincipal, msg.Path, "", nil)
		return nil, ErrUnknownPrincipal
	}

	if k.cfg.RateLimit.Enabled && !k.rateLimit.Allow(priv) {
		return nil, ErrRateLimited
	}

	// A response-type message settles a pending one-shot instead of being
	// routed to a destination's accept path.
	if msg.Type == message.TypeResponse {
		if err := k.responses.DeliverResponse(msg); err != nil {
			return nil, err
		}
		return nil, nil
	}

	scheme := msg.Scheme()
	if scheme == "kernel" {
		return k.handleKernelCommand(msg)
	}

	k.mu.RLock()
	sub, ok := k.subsystems[scheme]
	k.mu.RUnlock()
	if !ok {
		k.errs.Add("kernel", errormgr.KindUnknownDestination, msg.Path, "", nil)
		return nil, ErrUnknownDestination
	}

	var binding *response.Binding
	if opts.ResponseRequired != nil {
		binding = k.responses.RegisterReply(msg.ID, fmt.Sprintf("reply://%s", msg.ID), caller, opts.ResponseRequired.Timeout)
	}

	msg.Meta[metaEnqueueCallerPKR] = caller
	entry := queue.Entry{
		Message: msg,
		AcceptOptions: queue.AcceptOptions{
			CallerID:      priv,
			CallerIDSetBy: k.kernelPrivateKey(),
		},
	}

	processImmediate := msg.Meta.Bool(message.MetaProcessImmediately) || sub.synchronous

	if processImmediate {
		result, rerr := k.invoke(sub, caller, entry)
		if binding == nil {
			return result, rerr
		}
		k.autoDeliver(msg.ID, result, rerr)
		return k.awaitBinding(binding)
	}

	before := sub.queue.StatsSnapshot()
	enqErr := sub.queue.Enqueue(entry)
	after := sub.queue.StatsSnapshot()
	switch {
	case enqErr != nil:
		k.metrics.RecordQueueReject(sub.name)
		k.errs.Add(sub.name, errormgr.KindQueueFull, msg.Path, "", nil)
		return nil, enqErr
	case after.Dropped > before.Dropped && after.Enqueued == before.Enqueued:
		// drop-newest: the incoming entry itself was discarded.
		k.metrics.RecordQueueDrop(sub.name, string(sub.queue.Policy()))
	case after.Dropped > before.Dropped:
		// drop-oldest: the front of the queue was evicted to make room.
		k.metrics.RecordQueueDrop(sub.name, string(sub.queue.Policy()))
		k.metrics.RecordQueueAccept(sub.name, sub.queue.Len())
	default:
		k.metrics.RecordQueueAccept(sub.name, sub.queue.Len())
	}
	if binding == nil {
		return nil, nil
	}
	return k.awaitBinding(binding)
}

// awaitBinding blocks on a one-shot reply binding and unwraps it into the
// (result, error) shape SendProtected's other paths return (spec §8
// scenarios 3/4: the caller's awaited promise settles with either the
// responder's result or a ResponseTimeout error).
func (k *Kernel) awaitBinding(binding *response.Binding) (interface{}, error) {
	resp, err := binding.Wait()
	if err != nil {
		k.errs.Add("kernel", errormgr.KindResponseTimeout, "", "", nil)
		return nil, err
	}
	return resp.Body, nil
}

// RegisterSubsystemCommand is the body expected on
// kernel://command/register-subsystem.
type RegisterSubsystemCommand struct {
	Name    string
	Options SubsystemOptions
}

// DisposeSubsystemCommand is the body expected on
// kernel://command/dispose-subsystem.
type DisposeSubsystemCommand struct {
	Name string
}

var errUnknownKernelCommand = fmt.Errorf("kernel: no such kernel:// route")

// handleKernelCommand serves the reserved kernel:// routes named in spec
// §6, letting register/dispose be driven through sendProtected the same
// way any other subsystem operation is, instead of only as Go methods.
func (k *Kernel) handleKernelCommand(msg *message.Message) (interface{}, error) {
	switch msg.Path {
	case "kernel://command/register-subsystem":
		cmd, ok := msg.Body.(RegisterSubsystemCommand)
		if !ok {
			return nil, fmt.Errorf("kernel: register-subsystem command body must be a RegisterSubsystemCommand")
		}
		return k.RegisterSubsystem(cmd.Name, cmd.Options)
	case "kernel://command/dispose-subsystem":
		cmd, ok := msg.Body.(DisposeSubsystemCommand)
		if !ok {
			return nil, fmt.Errorf("kernel: dispose-subsystem command body must be a DisposeSubsystemCommand")
		}
		return nil, k.DisposeSubsystem(cmd.Name)
	default:
		return nil, errUnknownKernelCommand
	}
}

// runEntry is the scheduler.Processor installed for every subsystem: it
// invokes the handler for a dequeued entry and, if a reply binding is
// still pending for that message, auto-delivers the result.
func (k *Kernel) runEntry(sub *registeredSubsystem, entry queue.Entry) {
	var caller principal.PKR
	if v, ok := entry.Message.Meta.Get(metaEnqueueCallerPKR); ok {
		caller, _ = v.(principal.PKR)
	}
	result, err := k.invoke(sub, caller, entry)
	k.autoDeliver(entry.Message.ID, result, err)
}

// invoke wraps the router dispatch in the subsystem's circuit breaker and
// classifies handler failures into the error manager.
func (k *Kernel) invoke(sub *registeredSubsystem, caller principal.PKR, entry queue.Entry) (interface{}, error) {
	roleOf := func(interface{}) (string, bool) {
		return k.principals.GetRoleForPKR(caller)
	}

	var result interface{}
	start := time.Now()
	callErr := sub.breaker.Call(func() error {
		var herr error
		result, herr = sub.router.Route(entry.Message, entry.AcceptOptions.CallerID, entry.AcceptOptions.CallerIDSetBy, roleOf, k.passthroughFor(sub))
		return herr
	})
	duration := time.Since(start)

	outcome := "ok"
	if callErr != nil {
		if _, ok := callErr.(*router.PermissionError); ok {
			outcome = "permission-denied"
			k.metrics.RecordPermissionDenial(sub.name, "route")
			k.errs.Add(sub.name, errormgr.KindPermissionDenied, entry.Message.Path, "", nil)
		} else if callErr == router.ErrRouteNotFound {
			outcome = "route-not-found"
			k.errs.Add(sub.name, errormgr.KindRouteNotFound, entry.Message.Path, "", nil)
		} else {
			outcome = "handler-error"
			k.errs.Add(sub.name, errormgr.KindHandlerFailure, entry.Message.Path, "", map[string]interface{}{"error": callErr.Error()})
		}
	}
	k.metrics.RecordDispatch(sub.name, outcome, duration)
	return result, callErr
}

func (k *Kernel) passthroughFor(sub *registeredSubsystem) map[string]interface{} {
	return map[string]interface{}{
		PassthroughSend:       SendFunc(k.SendProtected),
		PassthroughGetReplyTo: GetReplyToFunc(k.responses.GetReplyTo),
	}
}

// autoDeliver settles a pending reply binding with a handler's result
// (spec §4.5 step 6). A no-op if no binding is pending (most sends never
// register one); DeliverResponse's idempotent settle means a subsequent
// explicit response send from within the handler does not double-settle.
func (k *Kernel) autoDeliver(messageID string, result interface{}, err error) {
	replyChannel, requester, ok := k.responses.GetReplyTo(messageID)
	if !ok {
		return
	}
	resp, merr := message.NewWithType(replyChannel, result, message.TypeResponse)
	if merr != nil {
		return
	}
	resp.Meta[message.MetaInReplyTo] = messageID
	resp.Meta[message.MetaSuccess] = err == nil
	if err != nil {
		resp.Meta[message.MetaError] = err.Error()
	}
	_ = requester
	_ = k.responses.DeliverResponse(resp)
}

// dispatchToParticipant is the channel.Dispatcher: it re-routes a channel
// send to one participant's own subsystem accept path, preserving the
// original caller's identity (carried via metaCallerPKR) so "each
// participant sees the original caller" (spec §4.5 Channel manager).
func (k *Kernel) dispatchToParticipant(participant principal.PKR, msg *message.Message) (interface{}, error) {
	k.mu.RLock()
	name, ok := k.nameByPubKey[participant.PublicKey]
	k.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownDestination
	}

	caller, _ := msg.Meta.Get(metaCallerPKR)
	callerPKR, _ := caller.(principal.PKR)

	retargeted := *msg
	retargeted.Path = fmt.Sprintf("%s://%s", name, trimScheme(msg.Path))
	return k.SendProtected(callerPKR, &retargeted, SendOptions{})
}

func trimScheme(path string) string {
	for i := 0; i+2 < len(path); i++ {
		if path[i] == ':' && path[i+1] == '/' && path[i+2] == '/' {
			return path[i+3:]
		}
	}
	return path
}

// SendToChannel fans msg out to every participant of the channel at
// route, on behalf of caller.
func (k *Kernel) SendToChannel(caller principal.PKR, route string, msg *message.Message) ([]channel.FanOutResult, error) {
	msg.Meta[metaCallerPKR] = caller
	return k.channels.Send(route, msg)
}

// CreateChannel creates a channel owned by owner's subsystem.
func (k *Kernel) CreateChannel(owner string, localName string, opts channel.CreateOptions) (*channel.Channel, error) {
	return k.channels.Create(owner, localName, opts)
}

// DestroyChannel removes a channel (SPEC_FULL supplementary feature,
// symmetric with CreateChannel).
func (k *Kernel) DestroyChannel(route string) error {
	return k.channels.Destroy(route)
}

// GetChannel returns the channel registered at route, if any.
func (k *Kernel) GetChannel(route string) (*channel.Channel, bool) {
	return k.channels.Get(route)
}

// AddChannelParticipant appends a participant to an existing channel.
func (k *Kernel) AddChannelParticipant(route string, p principal.PKR) error {
	return k.channels.AddParticipant(route, p)
}

// emitEvent records a kernel-reserved event (spec §6) in a small bounded
// in-memory log and logs it structurally.
func (k *Kernel) emitEvent(path string, body interface{}) {
	k.eventsMu.Lock()
	k.events = append(k.events, Event{Path: path, Body: body, Timestamp: time.Now()})
	if len(k.events) > 256 {
		k.events = k.events[len(k.events)-256:]
	}
	k.eventsMu.Unlock()
	k.logger.Info("kernel event", logging.Path(path))
}

// RecentEvents returns up to n most-recently emitted kernel events,
// newest first.
func (k *Kernel) RecentEvents(n int) []Event {
	k.eventsMu.Lock()
	defer k.eventsMu.Unlock()
	if n > len(k.events) {
		n = len(k.events)
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		out[i] = k.events[len(k.events)-1-i]
	}
	return out
}

// GetStatistics returns aggregate global scheduler statistics.
func (k *Kernel) GetStatistics() scheduler.GlobalStats {
	return k.global.GetStatistics()
}

// GetSubsystemStatistics returns per-subsystem scheduling statistics.
func (k *Kernel) GetSubsystemStatistics(name string) (scheduler.SubStats, bool) {
	return k.global.GetSubsystemStatistics(name)
}

// KernelPKR returns the kernel principal's public handle, for tests and
// diagnostics that need to assert kernel-child shared authority
// (spec §8 scenario 6).
func (k *Kernel) KernelPKR() principal.PKR { return k.kernelPKR }

// IsKernel reports whether pkr shares the kernel's authority.
func (k *Kernel) IsKernel(pkr principal.PKR) bool { return k.principals.IsKernel(pkr) }

// Principals exposes the principal registry for callers that need to
// create friend/resource principals outside the subsystem-registration
// path (e.g. per-request caller identities for a feeder).
func (k *Kernel) Principals() *principal.Registry { return k.principals }

// Permissions exposes the two-layer permission store.
func (k *Kernel) Permissions() *permission.Store { return k.perms }

// Errors exposes the bounded per-subsystem error manager.
func (k *Kernel) Errors() *errormgr.Manager { return k.errs }

// Metrics exposes the kernel's Prometheus collectors, e.g. for mounting
// a /metrics scrape endpoint alongside a feeder.
func (k *Kernel) Metrics() *metrics.Metrics { return k.metrics }

func (k *Kernel) kernelPrivateKey() interface{} {
	priv, _ := k.principals.ResolvePKR(k.kernelPKR)
	return priv
}

