package providers

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		r := NewRegistry()
		mock := NewMockCaller()

		r.Register("test", mock)

		c, err := r.Get("test")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if c != mock {
			t.Error("got different caller than registered")
		}
	})

	t.Run("get nonexistent", func(t *testing.T) {
		r := NewRegistry()
		if _, err := r.Get("nonexistent"); err == nil {
			t.Error("expected error for nonexistent provider")
		}
	})

	t.Run("default follows preference order", func(t *testing.T) {
		r := NewRegistry()
		gemini := NewMockCaller()
		claude := NewMockCaller()
		r.Register(GeminiName, gemini)
		r.Register(AnthropicName, claude)

		c, err := r.Default()
		if err != nil {
			t.Fatalf("Default() error = %v", err)
		}
		if c != claude {
			t.Error("expected claude to be preferred")
		}

		c, err = r.Resolve(GeminiName)
		if err != nil || c != gemini {
			t.Errorf("Resolve(gemini) = %v, %v", c, err)
		}
	})

	t.Run("default falls back to unordered providers", func(t *testing.T) {
		r := NewRegistry()
		m := NewMockCaller()
		r.Register("custom", m)

		c, err := r.Default()
		if err != nil || c != m {
			t.Errorf("Default() = %v, %v", c, err)
		}
	})

	t.Run("default with no providers", func(t *testing.T) {
		r := NewRegistry()
		if _, err := r.Default(); err == nil {
			t.Error("expected error with empty registry")
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		r := NewRegistry()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				r.Register("mock", NewMockCaller())
			}()
			go func() {
				defer wg.Done()
				r.List()
				r.Default()
			}()
		}
		wg.Wait()
	})
}

func TestRegistry_Reload(t *testing.T) {
	r := NewRegistry()

	r.Reload(RegistryConfig{Providers: map[string]ProviderConfig{
		"local":    {Type: "mock", Enabled: true},
		"disabled": {Type: "mock", Enabled: false},
		"nokey":    {Type: OpenAIName, Enabled: true},
	}})
	if got := r.List(); len(got) != 1 || got[0] != "local" {
		t.Fatalf("List() = %v, want [local]", got)
	}
	first, _ := r.Get("local")

	// Unchanged config keeps the same instance.
	r.Reload(RegistryConfig{Providers: map[string]ProviderConfig{
		"local": {Type: "mock", Enabled: true},
	}})
	second, _ := r.Get("local")
	if first != second {
		t.Error("unchanged provider should not be rebuilt")
	}

	// Rate limit change rebuilds and wraps.
	r.Reload(RegistryConfig{Providers: map[string]ProviderConfig{
		"local": {Type: "mock", Enabled: true, RateLimit: 5},
	}})
	third, _ := r.Get("local")
	if _, ok := third.(*RateLimited); !ok {
		t.Errorf("expected rate limited caller, got %T", third)
	}

	r.Reload(RegistryConfig{})
	if got := r.List(); len(got) != 0 {
		t.Errorf("List() = %v, want empty after removal", got)
	}
}

func TestRateLimited(t *testing.T) {
	m := NewMockCaller()
	rl := NewRateLimited(m, 1)

	ctx := context.Background()
	if _, err := rl.Call(ctx, &Request{}); err != nil {
		t.Fatalf("first call error = %v", err)
	}

	// The bucket is empty; a short deadline cannot be met.
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err := rl.Call(short, &Request{})
	if !IsTransient(err) {
		t.Errorf("expected transient timeout, got %v", err)
	}

	cancelled, cancel2 := context.WithCancel(ctx)
	cancel2()
	if _, err := rl.Call(cancelled, &Request{}); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if m.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1", m.Calls())
	}
}

func TestMockCaller_FailWith(t *testing.T) {
	m := NewMockCaller()
	m.Response = "ok"
	m.FailWith(&Error{Provider: "mock", Kind: KindServerError})

	if _, err := m.Call(context.Background(), &Request{}); !IsTransient(err) {
		t.Errorf("first call should fail transiently, got %v", err)
	}
	got, err := m.Call(context.Background(), &Request{})
	if err != nil || got != "ok" {
		t.Errorf("second call = %q, %v", got, err)
	}
	if m.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", m.Calls())
	}
}

func TestRegistry_Bind(t *testing.T) {
	r := NewRegistry()
	bound := r.Bind("claude")

	_, err := bound.Call(context.Background(), &Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error before the provider is registered")
	}
	if IsTransient(err) {
		t.Errorf("unavailable provider should be permanent, got %v", err)
	}
	if bound.Name() != "claude" {
		t.Errorf("Name() = %q, want claude", bound.Name())
	}

	first := NewMockCaller()
	first.Response = "first"
	r.Register("claude", first)
	if got, err := bound.Call(context.Background(), &Request{Prompt: "x"}); err != nil || got != "first" {
		t.Fatalf("Call() = %q, %v; want first", got, err)
	}

	second := NewMockCaller()
	second.Response = "second"
	second.ModelName = "claude-2"
	r.Register("claude", NewRateLimited(second, 100))
	if got, _ := bound.Call(context.Background(), &Request{Prompt: "x"}); got != "second" {
		t.Errorf("Call() after re-register = %q, want second", got)
	}
	if got := ModelOf(bound); got != "claude-2" {
		t.Errorf("ModelOf(bound) = %q, want claude-2", got)
	}
}
