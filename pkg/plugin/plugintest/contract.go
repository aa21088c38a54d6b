// Package plugintest provides shared contract tests that verify any
// plugin.Sink implementation behaves correctly.
package plugintest

import (
	"context"
	"testing"

	"github.com/HerbHall/turbinewatch/pkg/plugin"
)

// TestSinkContract runs behavioural contract tests against a sink. The
// factory must return a sink whose Start succeeds in the test environment:
//
//	func TestContract(t *testing.T) {
//	    plugintest.TestSinkContract(t, func() plugin.Sink { return newTestSink(t) })
//	}
func TestSinkContract(t *testing.T, factory func() plugin.Sink) {
	t.Helper()

	t.Run("Info_returns_valid_metadata", func(t *testing.T) {
		info := factory().Info()
		if info.Name == "" {
			t.Error("Info().Name must not be empty")
		}
	})

	t.Run("Start_then_Stop", func(t *testing.T) {
		s := factory()
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := s.Stop(context.Background()); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	})

	t.Run("Stop_without_Start_does_not_panic", func(t *testing.T) {
		if err := factory().Stop(context.Background()); err != nil {
			t.Fatalf("Stop() without Start error = %v", err)
		}
	})

	t.Run("Subscriptions_have_topics_and_handlers", func(t *testing.T) {
		sub, ok := factory().(plugin.EventSubscriber)
		if !ok {
			return
		}
		for i, s := range sub.Subscriptions() {
			if s.Topic == "" || s.Handler == nil {
				t.Errorf("subscription %d is incomplete: %+v", i, s)
			}
		}
	})
}
