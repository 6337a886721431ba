package twofactor

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	autherrors "github.com/NovuntFinance/authgate/errors"
)

// CodeHeader carries the step-up code to the backend.
const CodeHeader = "X-2FA-Code"

// maxErrorBody bounds how much of an error response the transport reads
// when sniffing for the backend's 2FA error code.
const maxErrorBody = 8 << 10

// Transport gates outbound requests on the two-factor prompt. It works
// proactively (classify, prompt, attach the code header) and reactively:
// when the backend still answers with a "code required" error, it prompts
// and retries the request exactly once.
type Transport struct {
	base http.RoundTripper
	gate *Gate
}

// NewTransport wraps base with 2FA gating.
func NewTransport(base http.RoundTripper, gate *Gate) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, gate: gate}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	code, _, err := t.gate.Code(req.Context(), req.Method, req.URL.String())
	if err != nil {
		return nil, err
	}

	out, err := withCode(req, code)
	if err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	errCode, ok := sniffAuthCode(resp)
	if !ok {
		return resp, nil
	}

	switch errCode {
	case autherrors.TwoFARequired, autherrors.TwoFAInvalid:
		if req.Body != nil && req.GetBody == nil {
			return resp, nil
		}
		drain(resp)

		retryCode, perr := t.gate.Reprompt(req.Context(), req.Method, req.URL.String(), errCode == autherrors.TwoFAInvalid)
		if perr != nil {
			return nil, perr
		}
		retry, rerr := withCode(req, retryCode)
		if rerr != nil {
			return nil, rerr
		}
		return t.base.RoundTrip(retry)
	default:
		return resp, nil
	}
}

// withCode clones req, rewinding the body and attaching the code header
// when a code is present.
func withCode(req *http.Request, code string) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	if code != "" {
		out.Header.Set(CodeHeader, code)
	}
	return out, nil
}

// sniffAuthCode inspects an error response for the backend's error
// envelope. The body is restored so undisturbed responses flow through to
// the caller.
func sniffAuthCode(resp *http.Response) (string, bool) {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusPreconditionRequired {
		return "", false
	}
	if resp.Body == nil {
		return "", false
	}

	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(buf))
	if err != nil {
		return "", false
	}

	var envelope struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(buf, &envelope); err != nil {
		return "", false
	}
	if envelope.Code != "" {
		return envelope.Code, true
	}
	if envelope.Error != "" {
		return envelope.Error, true
	}
	return "", false
}

func drain(resp *http.Response) {
	if resp.Body != nil {
		resp.Body.Close()
	}
}

var _ http.RoundTripper = (*Transport)(nil)
