package answer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/dataghost/internal/core"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL + "/", Timeout: 2 * time.Second})
}

func TestClient_Ask(t *testing.T) {
	var got QueryRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ask" {
			t.Errorf("request = %s %s, want POST /ask", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"answer":"42","confidence":0.85,"sources":[]}`)
	})

	resp, err := client.Ask(context.Background(), QueryRequest{Question: "What is the total?", Context: `{"headers":["a"]}`})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Answer != "42" {
		t.Errorf("Answer = %q, want %q", resp.Answer, "42")
	}
	if resp.Confidence == nil || *resp.Confidence != 0.85 {
		t.Errorf("Confidence = %v, want 0.85", resp.Confidence)
	}
	if got.Question != "What is the total?" || got.Context != `{"headers":["a"]}` {
		t.Errorf("server received %+v", got)
	}
}

func TestClient_Ask_Failures(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantDecode bool
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"detail":"boom"}`, http.StatusInternalServerError)
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"answer":`)
			},
			wantDecode: true,
		},
		{
			name: "missing answer",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"confidence":0.9}`)
			},
			wantDecode: true,
		},
		{
			name: "answer wrong type",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"answer":42}`)
			},
			wantDecode: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			_, err := client.Ask(context.Background(), QueryRequest{Question: "q"})
			if err == nil {
				t.Fatal("Ask() expected error")
			}

			if tt.wantDecode {
				var decodeErr *core.DecodeError
				if !errors.As(err, &decodeErr) {
					t.Errorf("error = %T %v, want *core.DecodeError", err, err)
				}
				return
			}

			var reqErr *core.RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("error = %T %v, want *core.RequestError", err, err)
			}
			if reqErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", reqErr.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestClient_Ask_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(Options{BaseURL: url, Timeout: time.Second})
	_, err := client.Ask(context.Background(), QueryRequest{Question: "q"})

	var reqErr *core.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %T %v, want *core.RequestError", err, err)
	}
	if reqErr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", reqErr.StatusCode)
	}
}

func TestClient_Ask_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := client.Ask(context.Background(), QueryRequest{Question: "q"})

	var reqErr *core.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %T %v, want *core.RequestError", err, err)
	}
	if !reqErr.Timeout() {
		t.Errorf("Timeout() = false for %v", err)
	}
	if core.FailureCategory(err) != "timeout" {
		t.Errorf("FailureCategory = %q, want timeout", core.FailureCategory(err))
	}
}

func TestClient_Health(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health/" {
			t.Errorf("path = %q, want /health/", r.URL.Path)
		}
		io.WriteString(w, `{"status":"healthy","service":"Data Ghost Backend","version":"0.1.0","environment":"test"}`)
	})

	status, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if status.Status != StatusHealthy || status.Version != "0.1.0" {
		t.Errorf("Health() = %+v", status)
	}
}

func TestClient_Upload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload" {
			t.Errorf("path = %q, want /upload", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		if header.Filename != "sales.csv" || string(body) != "a,b\n1,2\n" {
			t.Errorf("received %q = %q", header.Filename, body)
		}
		json.NewEncoder(w).Encode(UploadResponse{
			Success:     true,
			Message:     "File uploaded and processed successfully",
			FileID:      "abc",
			FileName:    "sales.csv",
			FileSize:    int64(len(body)),
			DataSummary: &DataSummary{TotalRows: 1, TotalColumns: 2, Headers: []string{"a", "b"}},
		})
	})

	resp, err := client.Upload(context.Background(), "sales.csv", strings.NewReader("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !resp.Success || resp.FileID != "abc" || resp.DataSummary == nil || resp.DataSummary.TotalRows != 1 {
		t.Errorf("Upload() = %+v", resp)
	}
}

func TestClient_Files(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/upload/files":
			io.WriteString(w, `{"files":[{"file_id":"f1","file_name":"a.csv","file_size":10}],"total_count":1}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/upload/files/f1":
			io.WriteString(w, `{"message":"File f1 deleted successfully"}`)
		case r.Method == http.MethodDelete:
			http.Error(w, `{"error":"file not found"}`, http.StatusNotFound)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	list, err := client.ListFiles(context.Background())
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if list.TotalCount != 1 || list.Files[0].FileID != "f1" {
		t.Errorf("ListFiles() = %+v", list)
	}

	if err := client.DeleteFile(context.Background(), "f1"); err != nil {
		t.Errorf("DeleteFile(f1) error = %v", err)
	}

	err = client.DeleteFile(context.Background(), "missing")
	var reqErr *core.RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusNotFound {
		t.Errorf("DeleteFile(missing) error = %v, want 404 RequestError", err)
	}
}
