package tracking_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opst/trackfab/pkg/tracking"
	"github.com/opst/trackfab/pkg/utils/try"
)

func TestProxiedPath(t *testing.T) {
	for name, testcase := range map[string]struct {
		artifactUri string
		expected    string
		wantErr     bool
	}{
		"run artifact root": {
			artifactUri: "mlflow-artifacts:/3/run-a/artifacts",
			expected:    "3/run-a/artifacts",
		},
		"experiment root": {
			artifactUri: "mlflow-artifacts:/3",
			expected:    "3",
		},
		"bare scheme": {
			artifactUri: "mlflow-artifacts:",
			wantErr:     true,
		},
		"scheme with empty path": {
			artifactUri: "mlflow-artifacts:/",
			wantErr:     true,
		},
		"foreign scheme": {
			artifactUri: "s3://bucket/3/run-a/artifacts",
			wantErr:     true,
		},
		"local directory": {
			artifactUri: "./artifacts/3/run-a",
			wantErr:     true,
		},
	} {
		t.Run(name, func(t *testing.T) {
			actual, err := tracking.ProxiedPath(testcase.artifactUri)
			if testcase.wantErr {
				if !errors.Is(err, tracking.ErrNotProxiedArtifact) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if actual != testcase.expected {
				t.Errorf(
					"path is not equal (actual,expected): %s,%s",
					actual, testcase.expected,
				)
			}
		})
	}
}

func TestPutArtifact(t *testing.T) {
	t.Run("it puts the content to the artifact api", func(t *testing.T) {
		payload := []byte(`{"n_estimators": 100}`)

		var gotMethod, gotPath, gotContentType string
		var gotBody []byte
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotPath = r.URL.Path
			gotContentType = r.Header.Get("Content-Type")
			gotBody = try.To(io.ReadAll(r.Body)).OrFatal(t)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		testee := try.To(tracking.NewClient(server.URL)).OrFatal(t)

		err := testee.PutArtifact(
			context.Background(),
			"mlflow-artifacts:/3/run-a/artifacts", "model.json",
			bytes.NewReader(payload),
		)
		if err != nil {
			t.Fatal(err)
		}

		if gotMethod != http.MethodPut {
			t.Errorf("request is not PUT (actual = %s)", gotMethod)
		}
		if expected := "/api/2.0/mlflow-artifacts/artifacts/3/run-a/artifacts/model.json"; gotPath != expected {
			t.Errorf("path is not equal (actual,expected): %s,%s", gotPath, expected)
		}
		if gotContentType != "application/octet-stream" {
			t.Errorf("unexpected content type: %s", gotContentType)
		}
		if !bytes.Equal(gotBody, payload) {
			t.Errorf("body is not equal (actual,expected): %s,%s", gotBody, payload)
		}
	})

	t.Run("it rejects artifact uris it cannot proxy, without requesting", func(t *testing.T) {
		requested := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requested = true
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		testee := try.To(tracking.NewClient(server.URL)).OrFatal(t)

		err := testee.PutArtifact(
			context.Background(),
			"s3://bucket/3/run-a/artifacts", "model.json",
			bytes.NewReader([]byte("...")),
		)
		if !errors.Is(err, tracking.ErrNotProxiedArtifact) {
			t.Errorf("unexpected error: %v", err)
		}
		if requested {
			t.Error("it should not request")
		}
	})

	t.Run("it returns error when server rejects the upload", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInsufficientStorage)
		}))
		defer server.Close()

		testee := try.To(tracking.NewClient(server.URL)).OrFatal(t)

		err := testee.PutArtifact(
			context.Background(),
			"mlflow-artifacts:/3/run-a/artifacts", "model.json",
			bytes.NewReader([]byte("...")),
		)
		if err == nil {
			t.Error("no error occured")
		}
	})
}

func TestGetArtifact(t *testing.T) {
	t.Run("it streams the content into the handler", func(t *testing.T) {
		payload := []byte(`{"n_estimators": 100}`)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected := "/api/2.0/mlflow-artifacts/artifacts/3/run-a/artifacts/model.json"; r.URL.Path != expected {
				t.Errorf("path is not equal (actual,expected): %s,%s", r.URL.Path, expected)
			}
			w.WriteHeader(http.StatusOK)
			w.Write(payload)
		}))
		defer server.Close()

		testee := try.To(tracking.NewClient(server.URL)).OrFatal(t)

		var actual []byte
		err := testee.GetArtifact(
			context.Background(),
			"mlflow-artifacts:/3/run-a/artifacts", "model.json",
			func(r io.Reader) error {
				var err error
				actual, err = io.ReadAll(r)
				return err
			},
		)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(actual, payload) {
			t.Errorf("content is not equal (actual,expected): %s,%s", actual, payload)
		}
	})

	t.Run("it returns error when the artifact is missing, not calling handler", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		testee := try.To(tracking.NewClient(server.URL)).OrFatal(t)

		handlerCalled := false
		err := testee.GetArtifact(
			context.Background(),
			"mlflow-artifacts:/3/run-a/artifacts", "model.json",
			func(r io.Reader) error {
				handlerCalled = true
				return nil
			},
		)
		if err == nil {
			t.Error("no error occured")
		}
		if handlerCalled {
			t.Error("handler should not be called")
		}
	})
}

func TestHealth(t *testing.T) {
	t.Run("it accepts a healthy server", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/health" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		}))
		defer server.Close()

		testee := try.To(tracking.NewClient(server.URL)).OrFatal(t)
		if err := testee.Health(context.Background()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it reports an unhealthy server", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		testee := try.To(tracking.NewClient(server.URL)).OrFatal(t)
		if err := testee.Health(context.Background()); err == nil {
			t.Error("no error occured")
		}
	})
}
