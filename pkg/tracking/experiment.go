package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	apierr "github.com/opst/trackfab-api-types/errors"
	"github.com/opst/trackfab-api-types/experiments"
)

func (c *client) EnsureExperiment(ctx context.Context, name string) (experiments.Detail, error) {
	body, err := json.Marshal(experiments.CreateRequest{Name: name})
	if err != nil {
		return experiments.Detail{}, err
	}

	resp, err := c.postJson(ctx, c.mlflow("experiments", "create"), bytes.NewReader(body))
	if err != nil {
		return experiments.Detail{}, err
	}
	defer resp.Body.Close()

	created := experiments.CreateResponse{}
	if err := unmarshalJsonResponse(
		resp, &created,
		MessageFor{
			Status4xx: fmt.Sprintf("experiment '%s' cannot be created", name),
			Status5xx: fmt.Sprintf("server error (status code = %d)", resp.StatusCode),
		},
	); err != nil {
		var eresp *apierr.ErrorResponse
		if !errors.As(err, &eresp) || eresp.ErrorCode != apierr.CodeResourceAlreadyExists {
			return experiments.Detail{}, err
		}
		// someone has created it already. take that one.
	}

	return c.GetExperiment(ctx, name)
}

func (c *client) GetExperiment(ctx context.Context, name string) (experiments.Detail, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.mlflow("experiments", "get-by-name"), nil,
	)
	if err != nil {
		return experiments.Detail{}, err
	}
	q := req.URL.Query()
	q.Add("experiment_name", name)
	req.URL.RawQuery = q.Encode()

	resp, err := c.do(req)
	if err != nil {
		return experiments.Detail{}, err
	}
	defer resp.Body.Close()

	envelope := experiments.GetResponse{}
	if err := unmarshalJsonResponse(
		resp, &envelope,
		MessageFor{
			Status4xx: fmt.Sprintf("experiment '%s' is not found", name),
			Status5xx: fmt.Sprintf("server error (status code = %d)", resp.StatusCode),
		},
	); err != nil {
		return experiments.Detail{}, err
	}
	return envelope.Experiment, nil
}
