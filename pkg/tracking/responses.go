package tracking

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apierr "github.com/opst/trackfab-api-types/errors"
)

type MessageFor map[StatusCodeRange]string

// unmarshal http response which has json content.
//
// args:
//   - resp: http response to be processed.
//   - v: value which response should be.
//   - messageFor: title of error message for HTTP status code range.
//
// return:
//
//	error if...
//	- can not read response body
//	- response body is not shaped of v
//	- status code is in 4xx or 5xx. When the body carries a tracking API
//	  error, the returned error wraps *apierr.ErrorResponse, so callers
//	  can pick the error code out with errors.As.
func unmarshalJsonResponse[T any](resp *http.Response, v *T, messageFor MessageFor) error {
	scr := StatusCodeRangeOf(resp)
	if scr <= Status2xx {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf(
				"unexpected error: %w (status code = %d)", err, resp.StatusCode,
			)
		}
		return nil
	}

	message, ok := messageFor[scr]
	if !ok {
		message = scr.String()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s\ncannot read server message: %w", message, err)
	}

	if eresp, err := jsonUnmarshal[apierr.ErrorResponse](body); err == nil {
		return fmt.Errorf("%s: %w", message, eresp)
	}

	return fmt.Errorf("%s: %s", message, string(body))
}

func jsonUnmarshal[T any](buf []byte) (*T, error) {
	ret := new(T)
	if err := json.Unmarshal(buf, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func unmarshalStreamResponse(resp *http.Response, messageFor MessageFor) (io.ReadCloser, error) {
	scr := StatusCodeRangeOf(resp)
	if scr <= Status2xx {
		return resp.Body, nil
	}

	message, ok := messageFor[scr]
	if !ok {
		message = scr.String()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s\ncannot read server message: %w", message, err)
	}

	if eresp, err := jsonUnmarshal[apierr.ErrorResponse](body); err == nil {
		return nil, fmt.Errorf("%s: %w", message, eresp)
	}

	return nil, fmt.Errorf("%s: %s", message, string(body))
}

func unmarshalResponseDiscardingPayload(resp *http.Response, messageFor MessageFor) error {
	rc, err := unmarshalStreamResponse(resp, messageFor)
	if rc != nil {
		io.ReadAll(rc)
		rc.Close()
	}
	return err
}
