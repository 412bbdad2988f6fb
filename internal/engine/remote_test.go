package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRemoteDetect(t *testing.T) {
	const fileContent = "MIT License\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/detect" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sekret" {
			t.Errorf("authorization = %q, want bearer token", got)
		}

		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Filename != "LICENSE" {
			t.Errorf("filename = %q, want LICENSE", req.Filename)
		}
		decoded, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil || string(decoded) != fileContent {
			t.Errorf("content roundtrip failed: %q, %v", decoded, err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"matches": []map[string]any{
				{"license_id": "mit", "confidence": 98.2, "excerpt": "MIT License"},
				{"license_id": "x11", "confidence": 12.0},
			},
		})
	}))
	defer srv.Close()

	eng := NewRemote(RemoteConfig{BaseURL: srv.URL, APIKey: "sekret"})
	matches, err := eng.Detect(context.Background(), writeTempFile(t, "LICENSE", fileContent))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].LicenseID != "mit" || matches[0].Confidence != 98.2 || matches[0].Excerpt != "MIT License" {
		t.Errorf("matches[0] = %+v", matches[0])
	}
}

func TestRemoteDetectServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "detector unavailable"})
	}))
	defer srv.Close()

	eng := NewRemote(RemoteConfig{BaseURL: srv.URL})
	if _, err := eng.Detect(context.Background(), writeTempFile(t, "f.py", "pass\n")); err == nil {
		t.Error("expected an error on HTTP 500")
	}
}

func TestRemoteDetectMissingFile(t *testing.T) {
	eng := NewRemote(RemoteConfig{BaseURL: "http://localhost:1"})
	if _, err := eng.Detect(context.Background(), filepath.Join(t.TempDir(), "absent.py")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestRemoteEndpointNormalization(t *testing.T) {
	eng := NewRemote(RemoteConfig{BaseURL: "http://detector:9000/"})
	if eng.endpoint != "http://detector:9000/v1/detect" {
		t.Errorf("endpoint = %q", eng.endpoint)
	}
	eng = NewRemote(RemoteConfig{})
	if eng.endpoint != "http://localhost:8081/v1/detect" {
		t.Errorf("default endpoint = %q", eng.endpoint)
	}
}
