package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/linkforensics/internal/cache"
)

func staticProvider(name, value string, err error) Provider[string, string] {
	return Provider[string, string]{
		Name: name,
		Lookup: func(context.Context, string) (string, error) {
			return value, err
		},
	}
}

// TestBounded tests the deadline wrapper.
func TestBounded(t *testing.T) {
	t.Parallel()

	t.Run("returns the value when fast enough", func(t *testing.T) {
		t.Parallel()

		v, err := Bounded(context.Background(), time.Second, func(context.Context) (int, error) {
			return 42, nil
		})
		if err != nil || v != 42 {
			t.Errorf("Bounded() = %d, %v", v, err)
		}
	})

	t.Run("times out a hung probe", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		defer close(release)

		start := time.Now()
		_, err := Bounded(context.Background(), 20*time.Millisecond, func(context.Context) (int, error) {
			<-release
			return 1, nil
		})
		if !errors.Is(err, ErrProbeTimeout) {
			t.Errorf("expected ErrProbeTimeout, got %v", err)
		}
		if time.Since(start) > time.Second {
			t.Error("Bounded did not return promptly")
		}
	})

	t.Run("probe honoring its context reports timeout", func(t *testing.T) {
		t.Parallel()

		_, err := Bounded(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})
		if !errors.Is(err, ErrProbeTimeout) {
			t.Errorf("expected ErrProbeTimeout, got %v", err)
		}
	})

	t.Run("panic becomes an error", func(t *testing.T) {
		t.Parallel()

		_, err := Bounded(context.Background(), time.Second, func(context.Context) (int, error) {
			panic("boom")
		})
		if !errors.Is(err, ErrProbePanic) {
			t.Errorf("expected ErrProbePanic, got %v", err)
		}
	})

	t.Run("cancelled parent is not a timeout", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Bounded(ctx, time.Second, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})
		if errors.Is(err, ErrProbeTimeout) {
			t.Error("cancellation must not be reported as timeout")
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

// TestChainLookup tests ordering, fallback and exhaustion.
func TestChainLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	errDown := errors.New("service down")

	t.Run("first success wins", func(t *testing.T) {
		t.Parallel()

		c := NewChain("test", []Provider[string, string]{
			staticProvider("a", "", errDown),
			staticProvider("b", "from-b", nil),
			staticProvider("c", "from-c", nil),
		})
		res, err := c.Lookup(ctx, "req")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Value != "from-b" || res.Provider != "b" || res.Cached {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("accept rejects empty answers", func(t *testing.T) {
		t.Parallel()

		c := NewChain("test", []Provider[string, string]{
			staticProvider("a", "", nil),
			staticProvider("b", "ok", nil),
		}).Accept(func(s string) bool { return s != "" })

		res, err := c.Lookup(ctx, "req")
		if err != nil || res.Provider != "b" {
			t.Errorf("Lookup() = %+v, %v", res, err)
		}
	})

	t.Run("exhaustion joins every provider error", func(t *testing.T) {
		t.Parallel()

		c := NewChain("identity", []Provider[string, string]{
			staticProvider("a", "", errDown),
			staticProvider("b", "", ErrUnexpectedStatus),
		})
		_, err := c.Lookup(ctx, "req")
		if !errors.Is(err, ErrAllProvidersExhausted) {
			t.Fatalf("expected ErrAllProvidersExhausted, got %v", err)
		}
		if !errors.Is(err, errDown) || !errors.Is(err, ErrUnexpectedStatus) {
			t.Errorf("expected provider errors to be joined, got %v", err)
		}
		if !strings.HasPrefix(err.Error(), "identity: ") {
			t.Errorf("expected chain name prefix, got %q", err.Error())
		}
	})

	t.Run("ineligible providers are skipped", func(t *testing.T) {
		t.Parallel()

		var called atomic.Bool
		c := NewChain("test", []Provider[string, string]{
			{
				Name:     "needs-ip",
				Eligible: func(req string) bool { return req != "" },
				Lookup: func(context.Context, string) (string, error) {
					called.Store(true)
					return "x", nil
				},
			},
		})
		_, err := c.Lookup(ctx, "")
		if !errors.Is(err, ErrNoEligibleProvider) {
			t.Errorf("expected ErrNoEligibleProvider, got %v", err)
		}
		if called.Load() {
			t.Error("ineligible provider was called")
		}
	})

	t.Run("slow provider is abandoned", func(t *testing.T) {
		t.Parallel()

		c := NewChain("test", []Provider[string, string]{
			{
				Name: "slow",
				Lookup: func(ctx context.Context, _ string) (string, error) {
					<-ctx.Done()
					return "", ctx.Err()
				},
			},
			staticProvider("fast", "ok", nil),
		}, WithTimeout(10*time.Millisecond))

		res, err := c.Lookup(ctx, "req")
		if err != nil || res.Provider != "fast" {
			t.Errorf("Lookup() = %+v, %v", res, err)
		}
	})

	t.Run("rate limited chain still answers", func(t *testing.T) {
		t.Parallel()

		c := NewChain("test", []Provider[string, string]{
			staticProvider("a", "ok", nil),
		}, WithRateLimit(1000, 1))
		for range 3 {
			if _, err := c.Lookup(ctx, "req"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
	})
}

// TestChainCache tests that cached answers skip the providers.
func TestChainCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var calls atomic.Int32
	c := NewChain("geo", []Provider[string, string]{
		{
			Name: "counting",
			Lookup: func(context.Context, string) (string, error) {
				calls.Add(1)
				return "madrid", nil
			},
		},
	}).WithCache(cache.NewMemory(), time.Minute, func(req string) string { return req })

	first, err := c.Lookup(ctx, "198.51.100.7")
	if err != nil || first.Cached {
		t.Fatalf("first Lookup() = %+v, %v", first, err)
	}
	second, err := c.Lookup(ctx, "198.51.100.7")
	if err != nil {
		t.Fatalf("second Lookup() error: %v", err)
	}
	if !second.Cached || second.Value != "madrid" {
		t.Errorf("expected cached madrid, got %+v", second)
	}
	if calls.Load() != 1 {
		t.Errorf("expected one provider call, got %d", calls.Load())
	}

	if _, err := c.Lookup(ctx, "203.0.113.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected a miss for a different key, got %d calls", calls.Load())
	}
}

// TestHTTPHelpers tests GetJSON, PostJSON and header injection.
func TestHTTPHelpers(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/get":
			_ = json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck // test server
				"ua":  r.Header.Get("User-Agent"),
				"key": r.Header.Get("X-Key"),
			})
		case "/post":
			var in map[string]any
			_ = json.NewDecoder(r.Body).Decode(&in) //nolint:errcheck // test server
			_ = json.NewEncoder(w).Encode(in)       //nolint:errcheck // test server
		default:
			http.Error(w, "nope", http.StatusTooManyRequests)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient(WithUserAgent("test-agent"))
	if err != nil {
		t.Fatalf("NewHTTPClient() error: %v", err)
	}
	ctx := context.Background()

	t.Run("get", func(t *testing.T) {
		t.Parallel()

		var out map[string]string
		if err := GetJSON(ctx, client, srv.URL+"/get", map[string]string{"X-Key": "k1"}, &out); err != nil {
			t.Fatalf("GetJSON() error: %v", err)
		}
		if out["ua"] != "test-agent" || out["key"] != "k1" {
			t.Errorf("unexpected echo %v", out)
		}
	})

	t.Run("post", func(t *testing.T) {
		t.Parallel()

		var out map[string]any
		if err := PostJSON(ctx, client, srv.URL+"/post", nil, map[string]any{"considerIp": false}, &out); err != nil {
			t.Fatalf("PostJSON() error: %v", err)
		}
		if out["considerIp"] != false {
			t.Errorf("unexpected echo %v", out)
		}
	})

	t.Run("non-2xx status", func(t *testing.T) {
		t.Parallel()

		var out map[string]any
		err := GetJSON(ctx, client, srv.URL+"/missing", nil, &out)
		if !errors.Is(err, ErrUnexpectedStatus) {
			t.Errorf("expected ErrUnexpectedStatus, got %v", err)
		}
	})
}

// TestNewHTTPClientProxy tests proxy address validation.
func TestNewHTTPClientProxy(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		address string
		valid   bool
	}{
		{"127.0.0.1:9050", true},
		{"localhost:1080", true},
		{"[::1]:9050", true},
		{"", true}, // no proxy
		{"127.0.0.1", false},
		{":9050", false},
		{"127.0.0.1:0", false},
		{"127.0.0.1:70000", false},
		{"127.0.0.1:abc", false},
	}

	for _, tc := range testCases {
		t.Run(tc.address, func(t *testing.T) {
			t.Parallel()

			_, err := NewHTTPClient(WithProxy(tc.address))
			if tc.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.valid && !errors.Is(err, ErrInvalidProxyAddress) {
				t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
			}
		})
	}
}

// TestExpandURL tests placeholder substitution.
func TestExpandURL(t *testing.T) {
	t.Parallel()

	got := ExpandURL("https://ipapi.co/{ip}/json/", map[string]string{"ip": "2001:db8::1"})
	if got != "https://ipapi.co/2001:db8::1/json/" {
		t.Errorf("ExpandURL() = %q", got)
	}
	if !HasPlaceholder("https://x/{bssid}", "bssid") || HasPlaceholder("https://x/", "ip") {
		t.Error("unexpected HasPlaceholder result")
	}
}

// TestDocument tests tolerant field access.
func TestDocument(t *testing.T) {
	t.Parallel()

	var d Document
	raw := `{"query":"198.51.100.7","as":"AS9009 M247","asn":9009,"lat":"40.4","security":{"vpn":true},"hosting":"no","ip":""}`
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := d.String("ip", "query"); got != "198.51.100.7" {
		t.Errorf("String() = %q, expected fallback to query", got)
	}
	if got := d.String("asn"); got != "9009" {
		t.Errorf("String(asn) = %q", got)
	}
	if f, ok := d.Float("latitude", "lat"); !ok || f != 40.4 {
		t.Errorf("Float() = %v, %v", f, ok)
	}
	if _, ok := d.Float("missing"); ok {
		t.Error("expected missing float")
	}
	if !d.Bool("proxy", "security.vpn") {
		t.Error("expected nested bool true")
	}
	if d.Bool("hosting") {
		t.Error("expected hosting=no to be false")
	}
}

// TestAuthHeaders tests basic auth header construction.
func TestAuthHeaders(t *testing.T) {
	t.Parallel()

	base := map[string]string{"X-Client": "lf"}

	if got := AuthHeaders(base, "", ""); len(got) != 1 {
		t.Errorf("expected headers unchanged without username, got %v", got)
	}

	got := AuthHeaders(base, "user", "pass")
	if got["Authorization"] != "Basic dXNlcjpwYXNz" {
		t.Errorf("Authorization = %q", got["Authorization"])
	}
	if got["X-Client"] != "lf" {
		t.Error("expected existing headers to be kept")
	}
	if _, ok := base["Authorization"]; ok {
		t.Error("input map must not be modified")
	}
}
