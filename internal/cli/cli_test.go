package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kailas-cloud/cvcontext/internal/app"
	"github.com/kailas-cloud/cvcontext/internal/config"
	"github.com/kailas-cloud/cvcontext/internal/domain"
)

const testYAML = `
http:
  port: 8080
store:
  target: memory://cli
embedding:
  default_model: mini
  providers:
    local:
      kind: hashing
  models:
    mini:
      provider: local
      dimensions: 64
retrieval:
  default_k: 2
  workers: 1
  queue_size: 4
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(testYAML), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", writeConfig(t), "--env", "test"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPrewarmCommand(t *testing.T) {
	out, err := run(t, "prewarm", "--model", "mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Prewarmed 1 model(s)") || !strings.Contains(out, "mini") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestPrewarmCommand_UnknownModel(t *testing.T) {
	_, err := run(t, "prewarm", "--model", "missing")
	var mle *domain.ModelLoadError
	if err == nil || !errors.As(err, &mle) {
		t.Fatalf("expected *ModelLoadError, got %v", err)
	}
}

func TestQueryCommand_EmptyCollection(t *testing.T) {
	out, err := run(t, "query", "--k", "3", "--json=false", "Python")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No fragments found") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestQueryCommand_JSON(t *testing.T) {
	out, err := run(t, "query", "--k", "0", "--json", "Go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var fragments []domain.Fragment
	if err := json.Unmarshal([]byte(out), &fragments); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, out)
	}
	if len(fragments) != 0 {
		t.Errorf("expected no fragments, got %d", len(fragments))
	}
}

func TestQueryCommand_RequiresArgs(t *testing.T) {
	if _, err := run(t, "query"); err == nil {
		t.Fatal("expected error without query text")
	}
}

func TestIngestCommand(t *testing.T) {
	resume := filepath.Join(t.TempDir(), "alice.txt")
	text := "Senior Python developer\n\nMSc Computer Science\n\n\n\n"
	if err := os.WriteFile(resume, []byte(text), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := run(t, "ingest", "--source", "", "--file", resume)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Ingested 2 chunk(s)") || !strings.Contains(out, "alice.txt") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestIngestCommand_StdinNeedsSource(t *testing.T) {
	rootCmd.SetIn(strings.NewReader("Go engineer"))
	defer rootCmd.SetIn(nil)

	_, err := run(t, "ingest", "--source", "", "--file", "-")
	if err == nil || !strings.Contains(err.Error(), "--source") {
		t.Fatalf("expected --source error, got %v", err)
	}
}

func TestIngestCommand_Stdin(t *testing.T) {
	rootCmd.SetIn(strings.NewReader("Go engineer\n\nKubernetes operators"))
	defer rootCmd.SetIn(nil)

	out, err := run(t, "ingest", "--source", "bob.pdf", "--file", "-")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Ingested 2 chunk(s) from bob.pdf") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestBench(t *testing.T) {
	cfg, err := config.Parse([]byte(testYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rt := app.New(cfg, nil)
	ctx := context.Background()
	if err := rt.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = rt.Close(closeTimeout) }()

	report, err := Bench(ctx, rt, benchQueries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Hot) != len(benchQueries) {
		t.Errorf("hot samples = %d, want %d", len(report.Hot), len(benchQueries))
	}
	if report.Cold <= 0 || report.Prewarm <= 0 || report.Miss <= 0 || report.Hit <= 0 {
		t.Errorf("expected positive latencies, got %+v", report)
	}
	if report.Fastest() > report.Average() {
		t.Errorf("fastest %s exceeds average %s", report.Fastest(), report.Average())
	}
	if !rt.Prewarm.Prewarmed() {
		t.Error("runtime should stay prewarmed after bench")
	}

	var out bytes.Buffer
	printBench(&out, report)
	if !strings.Contains(out.String(), "hot average") {
		t.Errorf("unexpected bench output: %q", out.String())
	}
}

func TestBench_Empty(t *testing.T) {
	report, err := Bench(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Fastest() != 0 || report.Average() != 0 {
		t.Errorf("expected zero report, got %+v", report)
	}
}

func TestResetServer(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		status  int
		body    string
		wantErr string
	}{
		{name: "ok", apiKey: "secret", status: http.StatusOK, body: `{"prewarmed":false}`},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"code":"unauthorized","message":"missing bearer token"}`, wantErr: "unauthorized: missing bearer token"},
		{name: "no body", status: http.StatusBadGateway, wantErr: "unexpected status 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/v1/admin/reset" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				if tt.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+tt.apiKey {
					t.Errorf("missing bearer header")
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := ResetServer(context.Background(), srv.Client(), srv.URL+"/", tt.apiKey)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %q, got %v", tt.wantErr, err)
			}
		})
	}
}
