// Package hub is the process-local registry of open per-project connections and the broadcast over them.
package hub

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"project-canvas-hub/internal/telemetry/metrics"
)

// DefaultSendTimeout bounds one delivery to one endpoint when the registry is built with a zero timeout.
const DefaultSendTimeout = 5 * time.Second

// BroadcastResult counts the outcome of one broadcast.
type BroadcastResult struct {
	Delivered int
	Dropped   int
}

// Registry maps project ids to the endpoints subscribed to them.
// mu guards only the map; each subscriberSet has its own locks, so projects never contend with each other.
// Lock order is Registry.mu then subscriberSet.mu.
type Registry struct {
	mu          sync.RWMutex
	projects    map[string]*subscriberSet
	closed      bool
	done        chan struct{}
	sendTimeout time.Duration
}

type subscriberSet struct {
	// broadcastMu serializes broadcasts within a project so every subscriber sees them in issue order.
	broadcastMu sync.Mutex

	mu      sync.Mutex
	members map[string]Endpoint
	// dead is set once the set emptied and is about to leave the map; Register replaces a dead set.
	dead bool
}

// NewRegistry returns an empty registry. sendTimeout <= 0 uses DefaultSendTimeout.
func NewRegistry(sendTimeout time.Duration) *Registry {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Registry{
		projects:    make(map[string]*subscriberSet),
		done:        make(chan struct{}),
		sendTimeout: sendTimeout,
	}
}

// Register adds ep to projectID's subscribers, creating the set on first use.
// Registering the same endpoint again is a no-op. Once registered, ep is unregistered as soon as it closes.
func (r *Registry) Register(projectID string, ep Endpoint) error {
	if ep.ProjectID() != projectID {
		return ErrProjectMismatch
	}
	if ep.State() != StateOpen {
		return ErrEndpointNotOpen
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistryClosed
	}
	// dead is written under set.mu only, so it is read under set.mu too. A set that died here is still in
	// the map and still counted; its Unregister sees the replacement and leaves both alone.
	set := r.projects[projectID]
	if set != nil {
		set.mu.Lock()
		if set.dead {
			set.mu.Unlock()
			set = &subscriberSet{members: make(map[string]Endpoint)}
			r.projects[projectID] = set
			set.mu.Lock()
		}
	} else {
		set = &subscriberSet{members: make(map[string]Endpoint)}
		r.projects[projectID] = set
		metrics.HubProjects.Inc()
		set.mu.Lock()
	}
	_, exists := set.members[ep.ID()]
	if !exists {
		set.members[ep.ID()] = ep
	}
	set.mu.Unlock()
	r.mu.Unlock()

	if exists {
		return nil
	}
	metrics.HubConnections.Inc()
	go r.watch(projectID, ep)
	return nil
}

func (r *Registry) watch(projectID string, ep Endpoint) {
	select {
	case <-ep.Done():
		r.Unregister(projectID, ep)
	case <-r.done:
	}
}

// Unregister removes ep from projectID. The project entry is dropped when its set becomes empty.
// Reports whether ep was registered.
func (r *Registry) Unregister(projectID string, ep Endpoint) bool {
	r.mu.RLock()
	set := r.projects[projectID]
	r.mu.RUnlock()
	if set == nil {
		return false
	}

	ok, empty := set.remove(ep.ID())
	if !ok {
		return false
	}
	metrics.HubConnections.Dec()
	if empty {
		r.drop(projectID, set)
	}
	return true
}

// remove deletes id from the set and marks the set dead when that leaves it empty.
func (s *subscriberSet) remove(id string) (ok, empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok = s.members[id]; !ok {
		return false, false
	}
	delete(s.members, id)
	if len(s.members) == 0 {
		s.dead = true
	}
	return true, s.dead
}

// drop removes a dead set from the map unless Register already replaced it.
func (r *Registry) drop(projectID string, set *subscriberSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.projects[projectID] == set {
		delete(r.projects, projectID)
		metrics.HubProjects.Dec()
	}
}

// Broadcast delivers msg to every endpoint subscribed to projectID.
func (r *Registry) Broadcast(ctx context.Context, projectID string, msg []byte) BroadcastResult {
	return r.BroadcastExcept(ctx, projectID, msg, "")
}

// BroadcastExcept delivers msg to every endpoint subscribed to projectID other than excludeID.
// Each delivery runs in its own goroutine bounded by the send timeout; a failed, stalled or closed endpoint
// is unregistered and closed without affecting the others. Delivery is bounded by the send timeout only,
// so cancelling ctx does not drop healthy subscribers.
func (r *Registry) BroadcastExcept(ctx context.Context, projectID string, msg []byte, excludeID string) BroadcastResult {
	r.mu.RLock()
	set := r.projects[projectID]
	r.mu.RUnlock()
	if set == nil {
		return BroadcastResult{}
	}

	set.broadcastMu.Lock()
	defer set.broadcastMu.Unlock()

	set.mu.Lock()
	targets := make([]Endpoint, 0, len(set.members))
	for id, ep := range set.members {
		if id != excludeID {
			targets = append(targets, ep)
		}
	}
	set.mu.Unlock()
	if len(targets) == 0 {
		return BroadcastResult{}
	}

	start := time.Now()
	ctx = context.WithoutCancel(ctx)
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, ep := range targets {
		wg.Add(1)
		go func(i int, ep Endpoint) {
			defer wg.Done()
			errs[i] = r.deliver(ctx, ep, msg)
		}(i, ep)
	}
	wg.Wait()
	metrics.HubBroadcastDuration.Observe(time.Since(start).Seconds())

	var res BroadcastResult
	for i, err := range errs {
		if err == nil {
			res.Delivered++
			continue
		}
		res.Dropped++
		ep := targets[i]
		log.Printf("hub: %v; dropping endpoint", &DeliveryError{ProjectID: projectID, EndpointID: ep.ID(), Err: err})
		r.Unregister(projectID, ep)
		_ = ep.Close()
	}
	metrics.HubDeliveries.WithLabelValues("delivered").Add(float64(res.Delivered))
	metrics.HubDeliveries.WithLabelValues("dropped").Add(float64(res.Dropped))
	return res
}

// deliver returns once ep.Send finishes or the send timeout passes, whichever is first,
// so an endpoint that ignores its context cannot stall the broadcast.
func (r *Registry) deliver(ctx context.Context, ep Endpoint, msg []byte) error {
	if ep.State() == StateClosed {
		return ErrEndpointClosed
	}
	ctx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- ep.Send(ctx, msg) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count returns the number of endpoints subscribed to projectID.
func (r *Registry) Count(projectID string) int {
	r.mu.RLock()
	set := r.projects[projectID]
	r.mu.RUnlock()
	if set == nil {
		return 0
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.members)
}

// Projects returns the ids of projects with at least one subscriber, sorted.
func (r *Registry) Projects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.projects))
	for id := range r.projects {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close closes every registered endpoint and rejects further registrations. Used at process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.done)
	var all []Endpoint
	for id, set := range r.projects {
		set.mu.Lock()
		for _, ep := range set.members {
			all = append(all, ep)
		}
		set.members = map[string]Endpoint{}
		set.dead = true
		set.mu.Unlock()
		delete(r.projects, id)
	}
	r.mu.Unlock()

	metrics.HubConnections.Sub(float64(len(all)))
	metrics.HubProjects.Set(0)
	for _, ep := range all {
		_ = ep.Close()
	}
}
