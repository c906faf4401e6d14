package gateway_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/opst/trackfab/pkg/gateway"
	"github.com/opst/trackfab/pkg/utils/try"
	"github.com/prometheus/common/expfmt"
)

func TestPush(t *testing.T) {
	t.Run("it puts gauges of a run to the gateway", func(t *testing.T) {
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

		testee := try.To(gateway.New(server.URL)).OrFatal(t)

		err := testee.Push(context.Background(), gateway.RunMetrics{
			Experiment: "iris_classification",
			RunId:      "run-a",
			Accuracy:   0.9333,
			Loss:       0.21,
		})
		if err != nil {
			t.Fatal(err)
		}

		if gotMethod != http.MethodPut {
			t.Errorf("push is not PUT (actual = %s)", gotMethod)
		}
		if expected := "/metrics/job/mlflow_experiments"; gotPath != expected {
			t.Errorf("path is not equal (actual,expected): %s,%s", gotPath, expected)
		}
		if !strings.HasPrefix(gotContentType, "text/plain") {
			t.Errorf("unexpected content type: %s", gotContentType)
		}

		var p expfmt.TextParser
		families := try.To(p.TextToMetricFamilies(strings.NewReader(string(gotBody)))).OrFatal(t)

		for name, expectedValue := range map[string]float64{
			gateway.MetricAccuracy: 0.9333,
			gateway.MetricLoss:     0.21,
		} {
			mf, ok := families[name]
			if !ok {
				t.Errorf("%s is not pushed", name)
				continue
			}
			if len(mf.Metric) != 1 {
				t.Errorf("unexpected series of %s: %v", name, mf.Metric)
				continue
			}
			m := mf.Metric[0]
			if actual := m.GetGauge().GetValue(); actual != expectedValue {
				t.Errorf(
					"value of %s is not equal (actual,expected): %f,%f",
					name, actual, expectedValue,
				)
			}
			labels := map[string]string{}
			for _, l := range m.Label {
				labels[l.GetName()] = l.GetValue()
			}
			if labels[gateway.LabelRunId] != "run-a" ||
				labels[gateway.LabelExperiment] != "iris_classification" {
				t.Errorf("unexpected labels of %s: %v", name, labels)
			}
		}
	})

	t.Run("it returns error when the gateway rejects the push", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("pushed metrics are invalid"))
		}))
		defer server.Close()

		testee := try.To(gateway.New(server.URL)).OrFatal(t)

		err := testee.Push(context.Background(), gateway.RunMetrics{
			Experiment: "iris_classification", RunId: "run-a",
		})
		if err == nil {
			t.Error("no error occured")
		}
	})
}

func TestVerify(t *testing.T) {
	exposition := `# HELP mlflow_accuracy Accuracy of the model
# TYPE mlflow_accuracy gauge
mlflow_accuracy{experiment="iris_classification",instance="",job="mlflow_experiments",run_id="run-a"} 0.9333
# HELP mlflow_loss Log loss of the model
# TYPE mlflow_loss gauge
mlflow_loss{experiment="iris_classification",instance="",job="mlflow_experiments",run_id="run-a"} 0.21
# HELP push_time_seconds Last Unix time when changing this group in the Pushgateway succeeded.
# TYPE push_time_seconds gauge
push_time_seconds{instance="",job="mlflow_experiments"} 1.7119746e+09
`

	t.Run("it accepts a run whose series are exposed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/metrics" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(exposition))
		}))
		defer server.Close()

		testee := try.To(gateway.New(server.URL)).OrFatal(t)

		err := testee.Verify(context.Background(), gateway.RunMetrics{
			Experiment: "iris_classification", RunId: "run-a",
		})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it rejects a run whose series are not exposed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(exposition))
		}))
		defer server.Close()

		testee := try.To(gateway.New(server.URL)).OrFatal(t)

		err := testee.Verify(context.Background(), gateway.RunMetrics{
			Experiment: "iris_classification", RunId: "run-b",
		})
		if !errors.Is(err, gateway.ErrNotExposed) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it rejects an empty gateway", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		testee := try.To(gateway.New(server.URL)).OrFatal(t)

		err := testee.Verify(context.Background(), gateway.RunMetrics{
			Experiment: "iris_classification", RunId: "run-a",
		})
		if !errors.Is(err, gateway.ErrNotExposed) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it reports a gateway not serving metrics", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		testee := try.To(gateway.New(server.URL)).OrFatal(t)

		err := testee.Verify(context.Background(), gateway.RunMetrics{
			Experiment: "iris_classification", RunId: "run-a",
		})
		if err == nil {
			t.Error("no error occured")
		}
		if errors.Is(err, gateway.ErrNotExposed) {
			t.Errorf("unreachable gateway should not read as missing series: %v", err)
		}
	})
}

func TestReady(t *testing.T) {
	t.Run("it accepts a ready gateway", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/-/ready" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		testee := try.To(gateway.New(server.URL)).OrFatal(t)

		if err := testee.Ready(context.Background()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it reports a gateway which is not ready", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		testee := try.To(gateway.New(server.URL)).OrFatal(t)

		if err := testee.Ready(context.Background()); err == nil {
			t.Error("no error occured")
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("it rejects an empty url", func(t *testing.T) {
		if _, err := gateway.New(""); !errors.Is(err, gateway.ErrGatewayInvalid) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
