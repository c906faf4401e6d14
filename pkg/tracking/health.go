package tracking

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

func (c *client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apipath("health"), nil)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if scr := StatusCodeRangeOf(resp); scr != Status2xx {
		return fmt.Errorf(
			"tracking server is not healthy: %s (status code = %d)",
			scr, resp.StatusCode,
		)
	}
	return nil
}
