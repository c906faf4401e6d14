package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const (
	// Job groups everything the training sweep pushes.
	Job = "mlflow_experiments"

	MetricAccuracy = "mlflow_accuracy"
	MetricLoss     = "mlflow_loss"

	LabelRunId      = "run_id"
	LabelExperiment = "experiment"
)

var ErrGatewayInvalid = errors.New("metrics gateway url is invalid")

// ErrNotExposed means series expected on the gateway are not there.
var ErrNotExposed = errors.New("series are not exposed by the metrics gateway")

// RunMetrics is the evaluation result of a single training run.
type RunMetrics struct {
	Experiment string
	RunId      string
	Accuracy   float64
	Loss       float64
}

type Gateway interface {
	// Ready reports whether the gateway is accepting requests.
	//
	// # Returns
	//
	// - error: when the gateway is unreachable or not ready.
	Ready(ctx context.Context) error

	// Push publishes the gauges of a training run.
	//
	// # Args
	//
	// - context.Context
	//
	// - RunMetrics: values to be published.
	//
	// # Returns
	//
	// - error: when the gateway does not accept the push.
	Push(ctx context.Context, m RunMetrics) error

	// Verify confirms that the gauges of a run are exposed by the gateway.
	//
	// Pushes share the job grouping and each one replaces the last,
	// so only the most recently pushed run is expected to verify.
	//
	// # Args
	//
	// - context.Context
	//
	// - RunMetrics: the run whose series are expected. Values are not
	// compared, only the series identity (name + labels).
	//
	// # Returns
	//
	// - error: ErrNotExposed when the series are missing.
	Verify(ctx context.Context, m RunMetrics) error
}

type gateway struct {
	url        string
	httpclient *http.Client
}

// New creates a client for a prometheus pushgateway.
//
// # Args
//
// - url: base URL of the gateway, like "http://localhost:9091"
//
// # Returns
//
// - Gateway
//
// - error: ErrGatewayInvalid when url is empty.
func New(url string) (Gateway, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrGatewayInvalid
	}
	return &gateway{
		url:        strings.TrimSuffix(url, "/"),
		httpclient: new(http.Client),
	}, nil
}

func (g *gateway) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url+"/-/ready", nil)
	if err != nil {
		return err
	}
	resp, err := g.httpclient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("metrics gateway is not ready (status code = %d)", resp.StatusCode)
	}
	return nil
}

func (g *gateway) Push(ctx context.Context, m RunMetrics) error {
	registry := prometheus.NewRegistry()

	accuracy := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: MetricAccuracy, Help: "Accuracy of the model"},
		[]string{LabelRunId, LabelExperiment},
	)
	loss := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: MetricLoss, Help: "Log loss of the model"},
		[]string{LabelRunId, LabelExperiment},
	)
	registry.MustRegister(accuracy, loss)

	accuracy.WithLabelValues(m.RunId, m.Experiment).Set(m.Accuracy)
	loss.WithLabelValues(m.RunId, m.Experiment).Set(m.Loss)

	err := push.New(g.url, Job).
		Gatherer(registry).
		Client(g.httpclient).
		Format(expfmt.NewFormat(expfmt.TypeTextPlain)).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("cannot push metrics of run %s: %w", m.RunId, err)
	}
	return nil
}

func (g *gateway) Verify(ctx context.Context, m RunMetrics) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url+"/metrics", nil)
	if err != nil {
		return err
	}
	resp, err := g.httpclient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(
			"metrics gateway does not expose metrics (status code = %d)",
			resp.StatusCode,
		)
	}

	var p expfmt.TextParser
	families, err := p.TextToMetricFamilies(resp.Body)
	if err != nil {
		return err
	}

	wanted := map[string]string{
		LabelRunId:      m.RunId,
		LabelExperiment: m.Experiment,
	}
	for _, name := range []string{MetricAccuracy, MetricLoss} {
		if !hasSeries(families[name], wanted) {
			return fmt.Errorf("%w: %s of run %s", ErrNotExposed, name, m.RunId)
		}
	}
	return nil
}

// hasSeries scans a family for a metric carrying all of the wanted labels.
func hasSeries(mf *io_prometheus_client.MetricFamily, wanted map[string]string) bool {
	if mf == nil {
		return false
	}

METRIC:
	for _, m := range mf.Metric {
		for name, value := range wanted {
			if !hasLabel(m, name, value) {
				continue METRIC
			}
		}
		return true
	}
	return false
}

func hasLabel(m *io_prometheus_client.Metric, name string, value string) bool {
	for _, l := range m.Label {
		if l.GetName() == name && l.GetValue() == value {
			return true
		}
	}
	return false
}
