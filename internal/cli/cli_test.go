package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenIssueAndVerify(t *testing.T) {
	t.Setenv("APP_ENV_FILE", "")
	t.Chdir(t.TempDir())

	token, err := runCLI(t, "token", "issue", "alice", "--secret", "s3cret", "--ttl", "1m")
	if err != nil {
		t.Fatalf("token issue error = %v", err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		t.Fatalf("token issue printed nothing")
	}

	subject, err := runCLI(t, "token", "verify", token, "--secret", "s3cret", "--ttl", "1m")
	if err != nil {
		t.Fatalf("token verify error = %v", err)
	}
	if strings.TrimSpace(subject) != "alice" {
		t.Fatalf("verify printed %q, want alice", subject)
	}

	if _, err := runCLI(t, "token", "verify", token, "--secret", "other", "--ttl", "1m"); err == nil {
		t.Fatalf("verify with a different secret should fail")
	}
}

func TestTokenIssueUsesAuthSecretFromEnv(t *testing.T) {
	t.Setenv("APP_ENV_FILE", "")
	t.Setenv("AUTH_SECRET", "from-env")
	t.Chdir(t.TempDir())

	token, err := runCLI(t, "token", "issue", "bob")
	if err != nil {
		t.Fatalf("token issue error = %v", err)
	}
	subject, err := runCLI(t, "token", "verify", strings.TrimSpace(token), "--secret", "from-env")
	if err != nil || strings.TrimSpace(subject) != "bob" {
		t.Fatalf("verify = %q, %v", subject, err)
	}
}

func TestLatestQueriesServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"valid token required","code":"unauthorized"}`))
			return
		}
		switch r.URL.Path {
		case "/v1/subjects/alice":
			_, _ = w.Write([]byte(`{"subject":"alice","emotion":"happy","emotion_timestamp":"2024-01-02T03:04:05Z"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"no observation for subject","code":"subject_not_found"}`))
		}
	}))
	defer srv.Close()

	out, err := runCLI(t, "latest", "alice", "--server", srv.URL, "--token", "tok")
	if err != nil {
		t.Fatalf("latest error = %v", err)
	}
	if !strings.Contains(out, "alice\thappy\t2024-01-02T03:04:05") {
		t.Fatalf("latest output = %q", out)
	}

	_, err = runCLI(t, "latest", "bob", "--server", srv.URL, "--token", "tok")
	if err == nil || !strings.Contains(err.Error(), "subject_not_found") {
		t.Fatalf("latest unknown error = %v", err)
	}
	_, err = runCLI(t, "latest", "alice", "--server", srv.URL, "--token", "")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("latest without token error = %v", err)
	}
}

func TestRecentAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/observations":
			if r.URL.Query().Get("limit") != "5" {
				t.Errorf("limit = %q, want 5", r.URL.Query().Get("limit"))
			}
			_, _ = w.Write([]byte(`{"observations":[{"emotion":"sad","emotion_timestamp":"2024-01-02T03:04:05Z"}]}`))
		case "/v1/status":
			_, _ = w.Write([]byte(`{"backends":{"classifier":"mock","detector":"full","store":"memory"},"persist_mode":"latest","active_sessions":2,"checks":[{"id":"store","status":"warn","detail":"in-memory only","fix":"Set DATABASE_URL"}]}`))
		}
	}))
	defer srv.Close()

	out, err := runCLI(t, "recent", "--limit", "5", "--server", srv.URL)
	if err != nil {
		t.Fatalf("recent error = %v", err)
	}
	if !strings.Contains(out, "sad") || !strings.Contains(out, "\t-\n") {
		t.Fatalf("recent output = %q", out)
	}

	out, err = runCLI(t, "status", "--server", srv.URL)
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(out, "classifier=mock") || !strings.Contains(out, "fix: Set DATABASE_URL") {
		t.Fatalf("status output = %q", out)
	}
}
