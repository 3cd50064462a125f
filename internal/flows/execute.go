package flows

import (
	"context"
	"net/http"

	"github.com/studyclub/authpipe/transport"
)

// Outcome classifies one executed attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeExpired means the attempt carried an access token, had not been
	// retried, and the server answered 401 (or the token was about to expire).
	OutcomeExpired
	// OutcomeFailure is any other HTTP status, passed through unchanged.
	OutcomeFailure
	// OutcomeTransport is a network-level failure.
	OutcomeTransport
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeExpired:
		return "expired"
	case OutcomeFailure:
		return "failure"
	case OutcomeTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Attempt pairs an immutable request with its retry marker. A retried
// attempt is never classified as expired. RequestID survives the retry so
// both sends correlate.
type Attempt struct {
	Request   transport.Request
	RequestID string
	Retried   bool
}

// Retry returns the post-refresh attempt for a.
func (a Attempt) Retry() Attempt {
	return Attempt{Request: a.Request, RequestID: a.RequestID, Retried: true}
}

// ExecuteDeps captures request execution dependencies.
type ExecuteDeps struct {
	AccessToken func() string
	Transport   transport.Transport
	// ExpiresSoon reports whether token should be treated as expired before
	// sending. Nil disables proactive expiry.
	ExpiresSoon func(token string) bool
}

// ExecuteResult carries the classified outcome of one attempt.
type ExecuteResult struct {
	Outcome  Outcome
	Response *transport.Response
	Err      error
	// Token is the access token attached to the attempt ("" if anonymous).
	Token string
	// Proactive is set when expiry was decided locally without a network call.
	Proactive bool
	// RetryExhausted is set when a retried attempt was rejected with 401.
	RetryExhausted bool
}

// RunExecute sends one attempt and classifies the result. It never mutates
// session state.
func RunExecute(ctx context.Context, attempt Attempt, deps ExecuteDeps) ExecuteResult {
	token := ""
	if deps.AccessToken != nil {
		token = deps.AccessToken()
	}

	if token != "" && !attempt.Retried && deps.ExpiresSoon != nil && deps.ExpiresSoon(token) {
		return ExecuteResult{
			Outcome:   OutcomeExpired,
			Token:     token,
			Proactive: true,
		}
	}

	resp, err := deps.Transport.Do(ctx, attempt.Request, token)
	if err != nil {
		return ExecuteResult{
			Outcome: OutcomeTransport,
			Err:     err,
			Token:   token,
		}
	}

	if resp.StatusCode < http.StatusBadRequest {
		return ExecuteResult{
			Outcome:  OutcomeOK,
			Response: resp,
			Token:    token,
		}
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		if attempt.Retried {
			return ExecuteResult{
				Outcome:        OutcomeFailure,
				Response:       resp,
				Token:          token,
				RetryExhausted: true,
			}
		}
		return ExecuteResult{
			Outcome:  OutcomeExpired,
			Response: resp,
			Token:    token,
		}
	}

	return ExecuteResult{
		Outcome:  OutcomeFailure,
		Response: resp,
		Token:    token,
	}
}
