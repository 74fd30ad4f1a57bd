package cli

import (
	"fmt"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func redisConfig(t *testing.T, mr *miniredis.Miniredis) string {
	t.Helper()
	return writeConfig(t, fmt.Sprintf("[distributed]\nbackend = \"redis\"\naddr = %q\nprefix = \"test:\"\n", mr.Addr()))
}

func TestCacheInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	for _, k := range []string{"test:trending:books:20", "test:author:octavia-butler", "test:custom"} {
		mr.Set(k, "{}")
	}
	mr.Set("test:author:ursula-k-le-guin", "{}")

	tc := newTestCLI(t)
	err := tc.run(t, "--config", redisConfig(t, mr), "cache", "invalidate", "--trending", "--author", "Octavia Butler", "custom")
	if err != nil {
		t.Fatalf("cache invalidate: %v", err)
	}

	for _, k := range []string{"test:trending:books:20", "test:author:octavia-butler", "test:custom"} {
		if mr.Exists(k) {
			t.Errorf("%s still present", k)
		}
	}
	if !mr.Exists("test:author:ursula-k-le-guin") {
		t.Error("unrelated key was deleted")
	}
	if !strings.Contains(tc.out.String(), "Invalidated author:octavia-butler") {
		t.Errorf("output = %q", tc.out.String())
	}
}

func TestCacheInvalidateRequiresKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	tc := newTestCLI(t)
	if err := tc.run(t, "--config", redisConfig(t, mr), "cache", "invalidate"); err == nil {
		t.Error("expected error without keys")
	}
	if err := tc.run(t, "--config", redisConfig(t, mr), "cache", "invalidate", "bad key"); err == nil {
		t.Error("expected error for key with whitespace")
	}
}

func TestCacheInvalidateUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	path := redisConfig(t, mr)
	mr.Close()

	tc := newTestCLI(t)
	if err := tc.run(t, "--config", path, "cache", "invalidate", "--trending"); err == nil {
		t.Error("expected error when redis is down")
	}
}

func TestCachePing(t *testing.T) {
	mr := miniredis.RunT(t)
	tc := newTestCLI(t)
	if err := tc.run(t, "--config", redisConfig(t, mr), "cache", "ping"); err != nil {
		t.Fatalf("cache ping: %v", err)
	}
	if !strings.Contains(tc.out.String(), "is reachable") {
		t.Errorf("output = %q", tc.out.String())
	}
}

func TestCachePingDisabled(t *testing.T) {
	tc := newTestCLI(t)
	path := writeConfig(t, "[distributed]\nbackend = \"none\"\n")
	if err := tc.run(t, "--config", path, "cache", "ping"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(tc.out.String(), "disabled") {
		t.Errorf("output = %q", tc.out.String())
	}
}

func TestCacheKey(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"trending"}, "trending:books:20"},
		{[]string{"author", "Ursula K. Le Guin"}, "author:ursula-k-le-guin"},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			tc := newTestCLI(t)
			path := writeConfig(t, "[distributed]\nbackend = \"none\"\nprefix = \"test:\"\n")
			if err := tc.run(t, append([]string{"--config", path, "cache", "key"}, tt.args...)...); err != nil {
				t.Fatal(err)
			}
			out := tc.out.String()
			if !strings.Contains(out, tt.want) || !strings.Contains(out, "test:"+tt.want) {
				t.Errorf("output = %q, want key %q", out, tt.want)
			}
		})
	}

	tc := newTestCLI(t)
	if err := tc.run(t, "cache", "key", "shelves"); err == nil {
		t.Error("expected error for unknown lookup")
	}
}
