package billing

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrMissingID is returned when a create call answers without an id.
	ErrMissingID = errors.New("billing: provider response has no id")
	// ErrMissingSession is returned when login answers without a session id.
	ErrMissingSession = errors.New("billing: provider login returned no session")
	// ErrUnparseableResponse is returned for non-JSON provider bodies.
	ErrUnparseableResponse = errors.New("billing: provider response is not JSON")
)

// envelope covers every reply shape the provider has used. The v3 API answers
// with top-level fields; older gateways nest the payload under data or
// response_data.
type envelope struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`

	Data         *envelopeBody `json:"data"`
	ResponseData *envelopeBody `json:"response_data"`

	ResponseMessage string        `json:"response_message"`
	Error           *errorDetail  `json:"error"`
	Errors          []errorDetail `json:"errors"`
}

type envelopeBody struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_message"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// reply is the canonical shape every provider response is reduced to.
type reply struct {
	ID        string
	SessionID string
	Message   string
}

// parseReply reduces a provider body to its canonical reply.
func parseReply(body []byte) (reply, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		// v3 error replies are a bare array of error objects
		var errs []errorDetail
		if err := json.Unmarshal(trimmed, &errs); err != nil {
			return reply{}, ErrUnparseableResponse
		}
		return reply{Message: joinErrors(errs)}, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return reply{}, ErrUnparseableResponse
	}
	r := reply{ID: env.ID, SessionID: env.SessionID, Message: env.Message}
	for _, nested := range []*envelopeBody{env.Data, env.ResponseData} {
		if nested == nil {
			continue
		}
		if r.ID == "" {
			r.ID = nested.ID
		}
		if r.SessionID == "" {
			r.SessionID = nested.SessionID
		}
		if r.Message == "" && nested.ErrorMsg != "" {
			r.Message = joinCode(nested.ErrorCode, nested.ErrorMsg)
		}
	}
	if r.Message == "" && env.Error != nil {
		r.Message = joinCode(env.Error.Code, env.Error.Message)
	}
	if r.Message == "" && len(env.Errors) > 0 {
		r.Message = joinErrors(env.Errors)
	}
	if r.Message == "" {
		r.Message = env.ResponseMessage
	}
	r.ID = strings.TrimSpace(r.ID)
	r.SessionID = strings.TrimSpace(r.SessionID)
	return r, nil
}

// parseCreatedID extracts the id of a created provider object.
func parseCreatedID(body []byte) (string, error) {
	r, err := parseReply(body)
	if err != nil {
		return "", err
	}
	if r.ID == "" {
		if r.Message != "" {
			return "", errors.Join(ErrMissingID, errors.New(r.Message))
		}
		return "", ErrMissingID
	}
	return r.ID, nil
}

// parseSessionID extracts the session token from a login reply.
func parseSessionID(body []byte) (string, error) {
	r, err := parseReply(body)
	if err != nil {
		return "", err
	}
	if r.SessionID == "" {
		return "", ErrMissingSession
	}
	return r.SessionID, nil
}

// errorMessage returns the provider's explanation of a failed call, or "".
func errorMessage(body []byte) string {
	r, err := parseReply(body)
	if err != nil {
		return strings.TrimSpace(truncate(string(body), 200))
	}
	return r.Message
}

func joinErrors(errs []errorDetail) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, joinCode(e.Code, e.Message))
	}
	return strings.Join(parts, "; ")
}

func joinCode(code, msg string) string {
	if code == "" {
		return msg
	}
	if msg == "" {
		return code
	}
	return code + ": " + msg
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
