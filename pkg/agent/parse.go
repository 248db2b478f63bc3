package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MalformedReplyError reports a model reply that could not be parsed into the
// role's expected schema, after the local format-correction attempt. It also
// covers exchange timeouts and transport failures, which the workflow treats
// identically for retry/bound purposes.
type MalformedReplyError struct {
	Agent    string
	Attempts int
	Raw      string
	Err      error
}

func (e *MalformedReplyError) Error() string {
	return fmt.Sprintf("[%s] malformed reply after %d attempt(s): %v", e.Agent, e.Attempts, e.Err)
}

func (e *MalformedReplyError) Unwrap() error {
	return e.Err
}

const formatCorrection = "Your previous reply could not be parsed. " +
	"Respond again with ONLY a single valid JSON object matching the schema from your instructions. " +
	"No prose, no markdown fences, no additional keys."

// SendParsed performs one exchange and parses the reply as strict JSON into T.
// On a parse failure it sends exactly one format-correction turn before giving
// up with a *MalformedReplyError. Transport failures and timeouts are not
// re-prompted; they surface as a *MalformedReplyError immediately.
func SendParsed[T any](ctx context.Context, a *Agent, input string) (*T, error) {
	raw, err := a.Send(ctx, input)
	if err != nil {
		return nil, &MalformedReplyError{Agent: a.Name(), Attempts: 1, Err: err}
	}

	out, parseErr := decodeStrict[T](raw)
	if parseErr == nil {
		return out, nil
	}

	raw, err = a.Send(ctx, formatCorrection)
	if err != nil {
		return nil, &MalformedReplyError{Agent: a.Name(), Attempts: 2, Err: err}
	}

	out, parseErr = decodeStrict[T](raw)
	if parseErr != nil {
		return nil, &MalformedReplyError{Agent: a.Name(), Attempts: 2, Raw: raw, Err: parseErr}
	}
	return out, nil
}

// decodeStrict parses a JSON object reply. Markdown fences are tolerated
// because models add them even when told not to; unknown fields are not.
func decodeStrict[T any](raw string) (*T, error) {
	cleaned := stripFences(raw)

	decoder := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	decoder.DisallowUnknownFields()

	out := new(T)
	if err := decoder.Decode(out); err != nil {
		return nil, fmt.Errorf("invalid JSON reply: %w", err)
	}

	if v, ok := any(out).(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("reply failed schema validation: %w", err)
		}
	}
	return out, nil
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
