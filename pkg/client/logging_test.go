package client

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Sternrassler/resilient-fetch/internal/testutil"
	"github.com/Sternrassler/resilient-fetch/pkg/cache"
	"github.com/Sternrassler/resilient-fetch/pkg/logging"
	"github.com/rs/zerolog"
)

func TestGet_LogLinesCarryRequestFields(t *testing.T) {
	buf := &bytes.Buffer{}
	env := newTestEnv(t, func(cfg *Config) {
		logger := zerolog.New(buf).Level(zerolog.WarnLevel)
		cfg.Logger = &logger
	})
	env.server.SetSequence("/orders",
		testutil.NewStatusResponse(503),
		testutil.NewJSONResponse(`{"count":3}`),
	)

	mustGet(t, env.client, "/orders", nil)

	url := env.server.URL() + "/orders"
	wantKey := cache.Key{URL: url}.String()

	var retry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		if m["message"] == "Retrying request after backoff" {
			retry = m
		}
	}
	if retry == nil {
		t.Fatalf("no retry line in %q", buf.String())
	}

	if retry[logging.FieldURL] != url {
		t.Errorf("url = %v, want %s", retry[logging.FieldURL], url)
	}
	if retry[logging.FieldCacheKey] != wantKey {
		t.Errorf("cache_key = %v, want %s", retry[logging.FieldCacheKey], wantKey)
	}
	if retry[logging.FieldAttempt] != float64(0) {
		t.Errorf("attempt = %v, want 0", retry[logging.FieldAttempt])
	}
	if retry[logging.FieldErrorClass] != string(ErrorClassServer) {
		t.Errorf("error_class = %v, want %s", retry[logging.FieldErrorClass], ErrorClassServer)
	}
}
