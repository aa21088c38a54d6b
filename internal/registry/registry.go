// Package registry manages sink lifecycle: registration, start-up in
// registration order, event subscription, health reporting and shutdown in
// reverse order.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/HerbHall/turbinewatch/pkg/plugin"
	"go.uber.org/zap"
)

// Registry manages the lifecycle of all registered sinks.
type Registry struct {
	mu       sync.RWMutex
	sinks    map[string]plugin.Sink
	order    []string
	disabled map[string]bool
	unsubs   map[string][]func()
	logger   *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		sinks:    make(map[string]plugin.Sink),
		disabled: make(map[string]bool),
		unsubs:   make(map[string][]func()),
		logger:   logger,
	}
}

// Register adds a sink. Must be called before StartAll.
func (r *Registry) Register(s plugin.Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Info().Name
	if name == "" {
		return fmt.Errorf("sink has empty name")
	}
	if _, exists := r.sinks[name]; exists {
		return fmt.Errorf("sink %q already registered", name)
	}
	r.sinks[name] = s
	r.order = append(r.order, name)
	r.logger.Info("sink registered", zap.String("name", name))
	return nil
}

// StartAll starts every sink in registration order and subscribes its
// handlers on bus. An optional sink that fails to start is disabled; a
// required one aborts start-up after the sinks already started are stopped.
func (r *Registry) StartAll(ctx context.Context, bus plugin.Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, name := range r.order {
		s := r.sinks[name]
		r.logger.Info("starting sink", zap.String("name", name))
		if err := s.Start(ctx); err != nil {
			if s.Info().Required {
				r.stopLocked(ctx, r.order[:i])
				return fmt.Errorf("required sink %q failed to start: %w", name, err)
			}
			r.logger.Error("optional sink failed to start, disabling",
				zap.String("name", name),
				zap.Error(err),
			)
			r.disabled[name] = true
			continue
		}
		if sub, ok := s.(plugin.EventSubscriber); ok {
			for _, subscription := range sub.Subscriptions() {
				r.unsubs[name] = append(r.unsubs[name], bus.Subscribe(subscription.Topic, subscription.Handler))
			}
		}
	}
	return nil
}

// StopAll unsubscribes and stops every active sink in reverse order.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked(ctx, r.order)
}

func (r *Registry) stopLocked(ctx context.Context, names []string) {
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		if r.disabled[name] {
			continue
		}
		for _, unsub := range r.unsubs[name] {
			unsub()
		}
		delete(r.unsubs, name)

		r.logger.Info("stopping sink", zap.String("name", name))
		if err := r.sinks[name].Stop(ctx); err != nil {
			r.logger.Error("failed to stop sink", zap.String("name", name), zap.Error(err))
		}
	}
}

// Get returns a sink by name.
func (r *Registry) Get(name string) (plugin.Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sinks[name]
	return s, ok
}

// IsDisabled reports whether a sink was disabled during start-up.
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disabled[name]
}

// Health collects the health of every sink. Disabled sinks report
// unhealthy; sinks without a HealthChecker report healthy.
func (r *Registry) Health(ctx context.Context) map[string]plugin.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]plugin.HealthStatus, len(r.order))
	for _, name := range r.order {
		switch hc, ok := r.sinks[name].(plugin.HealthChecker); {
		case r.disabled[name]:
			out[name] = plugin.HealthStatus{Status: plugin.StatusUnhealthy, Message: "disabled at start-up"}
		case ok:
			out[name] = hc.Health(ctx)
		default:
			out[name] = plugin.HealthStatus{Status: plugin.StatusHealthy}
		}
	}
	return out
}
