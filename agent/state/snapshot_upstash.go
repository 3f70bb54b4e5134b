package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxSnapshotResponseBytes = 2 << 20

type UpstashRedisConfig struct {
	URL       string        `envconfig:"URL" split_words:"true" required:"true"`
	Token     string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout   time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"2s"`
	KeyPrefix string        `envconfig:"KEY_PREFIX" split_words:"true" default:"callagent:call:"`
	// TTL of a snapshot after its last commit. Zero keeps snapshots until the call ends.
	TTL time.Duration `envconfig:"TTL" split_words:"true" default:"2h"`
}

// UpstashSnapshots keeps committed call states in Upstash Redis through its
// REST API, one JSON string per call.
type UpstashSnapshots struct {
	endpoint  string
	token     string
	keyPrefix string
	ttl       time.Duration
	client    *http.Client
}

var _ Snapshotter = (*UpstashSnapshots)(nil)

func NewUpstashSnapshots(cfg UpstashRedisConfig) (*UpstashSnapshots, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if endpoint == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid upstash redis url: %w", err)
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}
	if cfg.TTL < 0 {
		return nil, errors.New("snapshot ttl must be >= 0")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = "callagent:call:"
	}

	return &UpstashSnapshots{
		endpoint:  endpoint,
		token:     token,
		keyPrefix: prefix,
		ttl:       cfg.TTL,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// Load returns ErrStateNotFound when the call has no snapshot.
func (u *UpstashSnapshots) Load(ctx context.Context, callID string) (*CallState, error) {
	key, err := u.key(callID)
	if err != nil {
		return nil, err
	}

	result, err := u.do(ctx, "GET", key)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrStateNotFound
	}

	// GET answers with the stored value as a JSON string.
	var payload string
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("decode snapshot call_id=%s: %w", callID, err)
	}
	st := new(CallState)
	if err := json.Unmarshal([]byte(payload), st); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot call_id=%s: %w", callID, err)
	}
	st.EnsureFieldsMap()
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot call_id=%s: %w", callID, err)
	}
	return st, nil
}

func (u *UpstashSnapshots) Save(ctx context.Context, st *CallState) error {
	if st == nil {
		return ErrNilCallState
	}
	key, err := u.key(st.CallID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal snapshot call_id=%s: %w", st.CallID, err)
	}

	args := []any{key, string(payload)}
	if u.ttl > 0 {
		args = append(args, "EX", int64((u.ttl+time.Second-1)/time.Second))
	}
	_, err = u.do(ctx, "SET", args...)
	return err
}

func (u *UpstashSnapshots) Delete(ctx context.Context, callID string) error {
	key, err := u.key(callID)
	if err != nil {
		return err
	}
	_, err = u.do(ctx, "DEL", key)
	return err
}

func (u *UpstashSnapshots) key(callID string) (string, error) {
	callID, err := normalizeCallID(callID)
	if err != nil {
		return "", err
	}
	return u.keyPrefix + callID, nil
}

// do sends one command and returns its result field.
func (u *UpstashSnapshots) do(ctx context.Context, command string, args ...any) (json.RawMessage, error) {
	body, err := json.Marshal(append([]any{command}, args...))
	if err != nil {
		return nil, fmt.Errorf("marshal redis %s: %w", command, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis %s: %w", command, err)
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("redis %s: %w", command, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis %s response: %w", command, err)
	}

	var parsed struct {
		Result json.RawMessage `json:"result"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("redis %s: http status=%d body=%s", command, resp.StatusCode, string(raw))
		}
		return nil, fmt.Errorf("decode redis %s response: %w", command, err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("redis %s: %s", command, parsed.Error)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis %s: http status=%d", command, resp.StatusCode)
	}
	return bytes.TrimSpace(parsed.Result), nil
}
