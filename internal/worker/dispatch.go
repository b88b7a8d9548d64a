package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/rampline/rampline/internal/auth"
	"github.com/rampline/rampline/internal/config"
	"github.com/rampline/rampline/internal/httpclient"
	"github.com/rampline/rampline/internal/stats"
	"github.com/rampline/rampline/internal/wsclient"
)

// ErrUnsupportedMethod is returned when a descriptor names an HTTP method
// outside the supported set.
var ErrUnsupportedMethod = errors.New("unsupported HTTP method")

// ErrNotImplemented is returned when a custom request descriptor has no
// invocation handle bound to it.
var ErrNotImplemented = errors.New("request not implemented")

// maxBodyBytes caps how much of a response body is read for expectation
// checks.
const maxBodyBytes = 1 << 20

// Dispatch is the result of one unit of work. Attempted is false when
// nothing was sent on the wire, in which case no envelope is produced.
type Dispatch struct {
	Outcome   int
	Start     time.Time
	End       time.Time
	Err       error
	Attempted bool
}

// Dispatcher routes a request descriptor to its protocol executor. One
// dispatcher is shared by all tasks in a ramp-up batch; it holds no
// per-dispatch state.
type Dispatcher struct {
	HTTPClient *http.Client
	Auth       *auth.Registry
	Sockets    *wsclient.Registry
	Logger     *zap.Logger
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Dispatcher) Dispatch(ctx context.Context, req *config.Request, params map[string]any) Dispatch {
	switch req.Kind {
	case config.KindHTTP:
		return d.dispatchHTTP(ctx, req, params)
	case config.KindWebSocket:
		return d.dispatchWebSocket(ctx, req, params)
	case config.KindCustom:
		return d.dispatchCustom(ctx, req)
	default:
		return Dispatch{Err: fmt.Errorf("%w: unknown request kind %q", ErrNotImplemented, req.Kind)}
	}
}

func supportedMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func (d *Dispatcher) dispatchHTTP(ctx context.Context, req *config.Request, params map[string]any) Dispatch {
	if !supportedMethod(req.Method) {
		return Dispatch{Err: fmt.Errorf("%w: %q", ErrUnsupportedMethod, req.Method)}
	}

	provider, err := d.Auth.Lookup(req.Auth)
	if err != nil {
		// Skip rather than fail: the environment simply cannot issue
		// credentials for this request.
		d.logger().Warn("skipping request, auth scheme unavailable",
			zap.String("request", req.Name),
			zap.String("auth", req.Auth))
		return Dispatch{Err: err}
	}

	httpReq, err := httpclient.BuildRequest(ctx, req.Method, req.URL, params, provider)
	if err != nil {
		return Dispatch{Err: err}
	}

	start := time.Now()
	resp, err := d.HTTPClient.Do(httpReq)
	if err != nil {
		return Dispatch{Err: err}
	}
	end := time.Now()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()

	out := Dispatch{Outcome: resp.StatusCode, Start: start, End: end, Attempted: true}
	if readErr != nil {
		out.Err = fmt.Errorf("read response body: %w", readErr)
		return out
	}
	if err := checkExpectation(body, req.Expect); err != nil {
		out.Err = err
	}
	return out
}

// checkExpectation verifies a response-body field against the descriptor's
// expected value.
func checkExpectation(body []byte, ex *config.Expectation) error {
	if ex == nil {
		return nil
	}
	got := gjson.GetBytes(body, ex.Path)
	if !got.Exists() {
		return fmt.Errorf("expectation failed: %q not found in response", ex.Path)
	}
	if got.String() != ex.Value {
		return fmt.Errorf("expectation failed: %q = %q, want %q", ex.Path, got.String(), ex.Value)
	}
	return nil
}

func (d *Dispatcher) dispatchWebSocket(ctx context.Context, req *config.Request, params map[string]any) Dispatch {
	client, err := d.Sockets.Get(ctx, req.URL)
	if err != nil {
		return Dispatch{Err: err}
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return Dispatch{Err: fmt.Errorf("encode websocket payload: %w", err)}
	}

	start := time.Now()
	_, err = client.Exchange(ctx, payload)
	end := time.Now()

	out := Dispatch{Start: start, End: end, Attempted: true}
	switch {
	case err == nil:
		out.Outcome = http.StatusOK
	default:
		out.Err = err
		var sendErr *wsclient.SendError
		if errors.As(err, &sendErr) {
			out.Outcome = stats.OutcomeSendFailed
		} else {
			out.Outcome = stats.OutcomeReceiveFailed
		}
	}
	return out
}

func (d *Dispatcher) dispatchCustom(ctx context.Context, req *config.Request) Dispatch {
	if req.Invoke == nil {
		return Dispatch{Err: fmt.Errorf("%w: request %q has no invocation handle", ErrNotImplemented, req.Name)}
	}

	start := time.Now()
	err := req.Invoke(ctx)
	end := time.Now()

	out := Dispatch{Start: start, End: end, Attempted: true}
	if err != nil {
		out.Outcome = stats.OutcomeInvokeFailed
		out.Err = err
	} else {
		out.Outcome = http.StatusOK
	}

	if req.OnComplete != nil {
		req.OnComplete()
	}
	return out
}
