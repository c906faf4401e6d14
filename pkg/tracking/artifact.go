package tracking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ArtifactScheme marks artifact locations served by the tracking server
// itself. Other schemes point at stores the client cannot reach directly.
const ArtifactScheme = "mlflow-artifacts:"

var ErrNotProxiedArtifact = errors.New("artifact uri is not proxied by the tracking server")

// ProxiedPath resolves an artifact uri into the path of the tracking
// server's artifact API.
//
// "mlflow-artifacts:/1/abc/artifacts" resolves to "1/abc/artifacts";
// uris of any other scheme are rejected with ErrNotProxiedArtifact.
func ProxiedPath(artifactUri string) (string, error) {
	if !strings.HasPrefix(artifactUri, ArtifactScheme) {
		return "", fmt.Errorf("%w: %s", ErrNotProxiedArtifact, artifactUri)
	}
	rel := strings.TrimPrefix(artifactUri, ArtifactScheme)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return "", fmt.Errorf("%w: %s", ErrNotProxiedArtifact, artifactUri)
	}
	return rel, nil
}

func (c *client) PutArtifact(ctx context.Context, artifactUri string, name string, content io.Reader) error {
	rel, err := ProxiedPath(artifactUri)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPut, c.artifact(rel, name), content,
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return unmarshalResponseDiscardingPayload(
		resp,
		MessageFor{
			Status4xx: fmt.Sprintf("artifact %s cannot be put to %s", name, artifactUri),
			Status5xx: fmt.Sprintf("server error (status code = %d)", resp.StatusCode),
		},
	)
}

func (c *client) GetArtifact(ctx context.Context, artifactUri string, name string, handler func(io.Reader) error) error {
	rel, err := ProxiedPath(artifactUri)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.artifact(rel, name), nil,
	)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}

	r, err := unmarshalStreamResponse(
		resp,
		MessageFor{
			Status4xx: fmt.Sprintf("artifact %s is not found at %s", name, artifactUri),
			Status5xx: fmt.Sprintf("server error (status code = %d)", resp.StatusCode),
		},
	)
	if err != nil {
		resp.Body.Close()
		return err
	}
	defer r.Close()

	return handler(r)
}
