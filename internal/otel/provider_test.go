package otel_test

import (
	"context"
	"testing"

	"github.com/ItsCrafted/blooket-hacks/internal/otel"
)

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	t.Setenv(otel.EndpointEnv, "")
	t.Setenv(otel.EnabledEnv, "")

	shutdown, err := otel.Setup(context.Background(), "relay-test")
	if err != nil {
		t.Fatalf("Setup error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Errorf("noop shutdown error = %v", err)
	}
}

func TestSetupDisabled(t *testing.T) {
	t.Setenv(otel.EndpointEnv, "http://localhost:4318")
	t.Setenv(otel.EnabledEnv, "FALSE")

	shutdown, err := otel.Setup(context.Background(), "relay-test")
	if err != nil {
		t.Fatalf("Setup error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown error = %v", err)
	}
}

func TestSetupWithEndpoint(t *testing.T) {
	// Non-routable: nothing is exported before shutdown.
	t.Setenv(otel.EndpointEnv, "http://192.0.2.1:4318")
	t.Setenv(otel.EnabledEnv, "")

	shutdown, err := otel.Setup(context.Background(), "relay-test")
	if err != nil {
		t.Fatalf("Setup error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown error = %v", err)
	}
}
