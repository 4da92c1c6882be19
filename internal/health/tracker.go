// Package health tracks per-component liveness and publishes it over the
// standard gRPC health protocol and the HTTP status endpoint.
package health

import (
	"slices"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// State is one component's latest reported liveness.
type State struct {
	Component string    `json:"component"`
	Serving   bool      `json:"serving"`
	Since     time.Time `json:"since"`
}

// Tracker records SetServing transitions. The overall service (empty name
// in gRPC terms) is SERVING only while every known component is.
type Tracker struct {
	mu     sync.Mutex
	states map[string]State
	grpc   *grpchealth.Server
	now    func() time.Time
}

// NewTracker starts every named component as NOT_SERVING.
func NewTracker(components ...string) *Tracker {
	t := &Tracker{
		states: make(map[string]State, len(components)),
		grpc:   grpchealth.NewServer(),
		now:    time.Now,
	}
	start := t.now().UTC()
	for _, c := range components {
		t.states[c] = State{Component: c, Since: start}
		t.grpc.SetServingStatus(c, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	t.publishOverall()
	return t
}

func (t *Tracker) SetServing(component string, serving bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.states[component]
	if ok && prev.Serving == serving {
		return
	}
	t.states[component] = State{Component: component, Serving: serving, Since: t.now().UTC()}
	t.grpc.SetServingStatus(component, servingStatus(serving))
	t.publishOverallLocked()
}

// Snapshot returns every component ordered by name.
func (t *Tracker) Snapshot() []State {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]State, 0, len(t.states))
	for _, s := range t.states {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b State) int { return strings.Compare(a.Component, b.Component) })
	return out
}

func (t *Tracker) Healthy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.healthyLocked()
}

// Register exposes the tracker as grpc.health.v1.Health on s.
func (t *Tracker) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, t.grpc)
}

// HealthServer returns the underlying gRPC health implementation.
func (t *Tracker) HealthServer() healthpb.HealthServer {
	return t.grpc
}

// Shutdown flips every status to NOT_SERVING and ignores later updates.
func (t *Tracker) Shutdown() {
	t.grpc.Shutdown()
}

func (t *Tracker) publishOverall() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.publishOverallLocked()
}

func (t *Tracker) publishOverallLocked() {
	t.grpc.SetServingStatus("", servingStatus(t.healthyLocked()))
}

func (t *Tracker) healthyLocked() bool {
	if len(t.states) == 0 {
		return false
	}
	for _, s := range t.states {
		if !s.Serving {
			return false
		}
	}
	return true
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
