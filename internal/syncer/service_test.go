package syncer_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/eapproval/internal/cache"
	"github.com/rafaeljc/eapproval/internal/ruleengine"
	"github.com/rafaeljc/eapproval/internal/rulestore"
	"github.com/rafaeljc/eapproval/internal/syncer"
)

const testChannel = "test:rules:reloaded"

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// rulesFixture writes the shared test ruleset to a temp file and loads it.
func rulesFixture(t *testing.T) (*rulestore.Store, string, string) {
	t.Helper()

	raw, err := os.ReadFile("../ruleengine/testdata/rules.json")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	rules := rulestore.New(rulestore.NewFileSource(path), discard)
	_, err = rules.Reload(context.Background(), rulestore.TriggerStartup)
	require.NoError(t, err)
	return rules, path, string(raw)
}

// bumpVersion rewrites the ruleset file with a new version string.
func bumpVersion(t *testing.T, path, raw, version string) {
	t.Helper()
	updated := strings.Replace(raw, `"version": "2025.10.1"`, `"version": "`+version+`"`, 1)
	require.NotEqual(t, raw, updated)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
}

func runService(t *testing.T, svc *syncer.Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("syncer did not stop")
		}
	})
}

func newBus(t *testing.T, mr *miniredis.Miniredis, origin string) *cache.ReloadBus {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewReloadBus(client, testChannel, origin, discard)
}

func TestWatcher_ReloadsChangedFile(t *testing.T) {
	t.Parallel()

	// Arrange
	rules, path, raw := rulesFixture(t)
	svc := syncer.New(discard, syncer.Config{WatchEnabled: true, WatchInterval: 20 * time.Millisecond}, rules, nil)
	runService(t, svc)

	// Act
	bumpVersion(t, path, raw, "2025.11.0")

	// Assert
	assert.Eventually(t, func() bool {
		return rules.Current().Version == "2025.11.0"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_KeepsRulesetOnBrokenFile(t *testing.T) {
	t.Parallel()

	rules, path, _ := rulesFixture(t)
	before := rules.Current()
	svc := syncer.New(discard, syncer.Config{WatchEnabled: true, WatchInterval: 20 * time.Millisecond}, rules, nil)
	runService(t, svc)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	assert.Never(t, func() bool {
		return rules.Current() != before
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestListener_ReloadsOnPeerBroadcast(t *testing.T) {
	t.Parallel()

	// Arrange
	mr := miniredis.RunT(t)
	rules, path, raw := rulesFixture(t)
	svc := syncer.New(discard, syncer.Config{}, rules, newBus(t, mr, "instance-b"))
	runService(t, svc)

	select {
	case <-svc.Subscribed():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was not confirmed")
	}

	// Act: the peer rewrote the shared file and announces it.
	bumpVersion(t, path, raw, "2025.12.0")
	peer := newBus(t, mr, "instance-a")
	require.NoError(t, peer.Publish(context.Background(), "2025.12.0", "peer-digest"))

	// Assert
	assert.Eventually(t, func() bool {
		return rules.Current().Version == "2025.12.0"
	}, 2*time.Second, 20*time.Millisecond)
}

// fakeRules counts reload attempts.
type fakeRules struct {
	current *ruleengine.Ruleset
	reloads atomic.Int32
	err     error
}

func (f *fakeRules) Current() *ruleengine.Ruleset { return f.current }

func (f *fakeRules) ReloadIfChanged(context.Context, rulestore.Trigger) (bool, error) {
	f.reloads.Add(1)
	return f.err == nil, f.err
}

func TestListener_SkipsAlreadyActiveDigest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		digest      string
		wantReloads int32
	}{
		{name: "same digest", digest: "abc", wantReloads: 0},
		{name: "different digest", digest: "def", wantReloads: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			mr := miniredis.RunT(t)
			rules := &fakeRules{current: &ruleengine.Ruleset{Version: "1", Digest: "abc"}}
			svc := syncer.New(discard, syncer.Config{}, rules, newBus(t, mr, "self"))
			runService(t, svc)
			<-svc.Subscribed()

			// Act
			require.NoError(t, newBus(t, mr, "peer").Publish(context.Background(), "2", tt.digest))

			// Assert
			if tt.wantReloads == 0 {
				assert.Never(t, func() bool { return rules.reloads.Load() > 0 }, 200*time.Millisecond, 20*time.Millisecond)
				return
			}
			assert.Eventually(t, func() bool { return rules.reloads.Load() == tt.wantReloads }, 2*time.Second, 20*time.Millisecond)
		})
	}
}

func TestListener_SurvivesReloadErrors(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rules := &fakeRules{err: errors.New("file vanished")}
	svc := syncer.New(discard, syncer.Config{}, rules, newBus(t, mr, "self"))
	runService(t, svc)
	<-svc.Subscribed()

	peer := newBus(t, mr, "peer")
	require.NoError(t, peer.Publish(context.Background(), "2", "x"))
	require.NoError(t, peer.Publish(context.Background(), "3", "y"))

	assert.Eventually(t, func() bool { return rules.reloads.Load() == 2 }, 2*time.Second, 20*time.Millisecond)
}

func TestListener_ResubscribesAfterFailure(t *testing.T) {
	t.Parallel()

	// Arrange: Redis is down when the listener starts.
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	rules := &fakeRules{current: &ruleengine.Ruleset{Digest: "abc"}}
	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	bus := cache.NewReloadBus(client, testChannel, "self", discard)

	svc := syncer.New(discard, syncer.Config{ResubscribeDelay: 20 * time.Millisecond}, rules, bus)
	runService(t, svc)

	// Act
	require.NoError(t, mr.StartAddr(addr))

	// Assert
	select {
	case <-svc.Subscribed():
	case <-time.After(3 * time.Second):
		t.Fatal("listener did not resubscribe")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	rules, _, _ := rulesFixture(t)
	svc := syncer.New(discard, syncer.Config{WatchEnabled: true, WatchInterval: time.Hour}, rules, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNew_NilRulesPanics(t *testing.T) {
	t.Parallel()

	assert.PanicsWithValue(t, "syncer: rule store cannot be nil", func() {
		syncer.New(nil, syncer.Config{}, nil, nil)
	})
}
