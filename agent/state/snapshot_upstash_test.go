package state

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeRedis struct {
	mu       sync.Mutex
	data     map[string]string
	commands [][]any
}

func (f *fakeRedis) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("Authorization = %q", got)
		}

		var cmd []any
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			t.Errorf("decode command: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		f.commands = append(f.commands, cmd)

		name, _ := cmd[0].(string)
		key, _ := cmd[1].(string)
		switch name {
		case "SET":
			f.data[key], _ = cmd[2].(string)
			_, _ = w.Write([]byte(`{"result":"OK"}`))
		case "GET":
			val, ok := f.data[key]
			if !ok {
				_, _ = w.Write([]byte(`{"result":null}`))
				return
			}
			encoded, _ := json.Marshal(val)
			_, _ = w.Write([]byte(`{"result":` + string(encoded) + `}`))
		case "DEL":
			delete(f.data, key)
			_, _ = w.Write([]byte(`{"result":1}`))
		default:
			_, _ = w.Write([]byte(`{"error":"ERR unknown command"}`))
		}
	}
}

func newTestSnapshotStore(t *testing.T, cfg UpstashRedisConfig) (*UpstashSnapshots, *fakeRedis) {
	t.Helper()

	redis := &fakeRedis{data: map[string]string{}}
	srv := httptest.NewServer(redis.handler(t))
	t.Cleanup(srv.Close)

	cfg.URL = srv.URL
	cfg.Token = "token"
	store, err := NewUpstashSnapshots(cfg)
	if err != nil {
		t.Fatalf("NewUpstashSnapshots() error = %v", err)
	}
	return store, redis
}

func TestUpstashSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	store, redis := newTestSnapshotStore(t, UpstashRedisConfig{KeyPrefix: "test:", TTL: 90 * time.Second})
	ctx := context.Background()

	st := NewCallState("call-9", time.Now())
	if err := st.SetIntent(IntentRent, time.Now()); err != nil {
		t.Fatalf("SetIntent() error = %v", err)
	}
	st.AppendTurn("looking to rent", "how many bedrooms?", time.Now())
	st.MergeFields(map[string]any{"bedrooms": 2}, time.Now())

	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	set := redis.commands[0]
	if set[1] != "test:call-9" {
		t.Fatalf("key = %v, want test:call-9", set[1])
	}
	if len(set) != 5 || set[3] != "EX" || set[4] != float64(90) {
		t.Fatalf("SET command = %#v, want EX 90", set)
	}

	loaded, err := store.Load(ctx, "call-9")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.ActiveIntent != IntentRent || len(loaded.History) != 1 {
		t.Fatalf("loaded = %#v", loaded)
	}
	if loaded.CollectedFields["bedrooms"] != float64(2) {
		t.Fatalf("bedrooms = %#v", loaded.CollectedFields["bedrooms"])
	}

	if err := store.Delete(ctx, "call-9"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "call-9"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() after delete error = %v, want ErrStateNotFound", err)
	}
}

func TestUpstashSnapshotRejectsEmptyCallID(t *testing.T) {
	t.Parallel()

	store, redis := newTestSnapshotStore(t, UpstashRedisConfig{})
	if _, err := store.Load(context.Background(), " "); !errors.Is(err, ErrInvalidCall) {
		t.Fatalf("Load() error = %v, want ErrInvalidCall", err)
	}
	if err := store.Save(context.Background(), nil); !errors.Is(err, ErrNilCallState) {
		t.Fatalf("Save(nil) error = %v, want ErrNilCallState", err)
	}
	if len(redis.commands) != 0 {
		t.Fatalf("unexpected redis commands: %#v", redis.commands)
	}
}

func TestUpstashSnapshotSurfacesRedisError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"WRONGPASS"}`))
	}))
	t.Cleanup(srv.Close)

	store, err := NewUpstashSnapshots(UpstashRedisConfig{URL: srv.URL, Token: "bad"})
	if err != nil {
		t.Fatalf("NewUpstashSnapshots() error = %v", err)
	}
	if _, err := store.Load(context.Background(), "call-1"); err == nil || !strings.Contains(err.Error(), "WRONGPASS") {
		t.Fatalf("Load() error = %v, want WRONGPASS", err)
	}
}

func TestNewUpstashSnapshotsValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewUpstashSnapshots(UpstashRedisConfig{Token: "t"}); err == nil {
		t.Fatal("expected error for missing url")
	}
	if _, err := NewUpstashSnapshots(UpstashRedisConfig{URL: "https://example.upstash.io"}); err == nil {
		t.Fatal("expected error for missing token")
	}
	if _, err := NewUpstashSnapshots(UpstashRedisConfig{URL: "https://example.upstash.io", Token: "t", TTL: -time.Second}); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}

func TestUpstashSnapshotWithoutTTLNeverExpires(t *testing.T) {
	t.Parallel()

	store, redis := newTestSnapshotStore(t, UpstashRedisConfig{})
	if err := store.Save(context.Background(), NewCallState("call-2", time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	set := redis.commands[0]
	if len(set) != 3 || set[1] != "callagent:call:call-2" {
		t.Fatalf("SET command = %#v, want default prefix and no EX", set)
	}
}
