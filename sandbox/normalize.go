package sandbox

import (
	"context"
	"errors"
	"fmt"
)

// Normalize converts a completed execution into the single string handed
// back to the conversation layer, prefixed with the backend's marker.
func Normalize(desc Descriptor, res Result) string {
	marker := desc.Marker
	if marker == "" {
		marker = fmt.Sprintf("[%s]", backendLabel(desc.Type))
	}

	if res.Outcome == OutcomeSuccess {
		text := res.Stdout
		if text == "" {
			text = res.ReturnValue
		}
		if text == "" {
			text = "(no output)"
		}
		return marker + "\n" + text
	}

	// Non-success results carry the code's own stderr, which is safe to show.
	if res.Stderr != "" {
		return fmt.Sprintf("⚠️ %s Error:\n%s", backendLabel(desc.Type), res.Stderr)
	}
	return fmt.Sprintf("⚠️ %s Error (%s)", backendLabel(desc.Type), res.Outcome)
}

// NormalizeError converts an internal failure into a short, user-safe
// diagnostic string. Full detail stays in the logs; raw response bodies and
// credentials never appear here. This is the last line of defense: the
// caller always receives a string.
func NormalizeError(desc Descriptor, err error) string {
	label := backendLabel(desc.Type)

	var e *Error
	if errors.As(err, &e) {
		switch e.Outcome {
		case OutcomeConfigError:
			return fmt.Sprintf("⚠️ Configuration error: %s", e.Message)
		case OutcomeAuthFailure:
			return fmt.Sprintf("⚠️ %s authentication failed: %s", label, e.Message)
		case OutcomeTimeout:
			return fmt.Sprintf("⚠️ %s execution timed out", label)
		default:
			return fmt.Sprintf("⚠️ %s Error: %s", label, e.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("⚠️ %s execution timed out", label)
	}
	return fmt.Sprintf("⚠️ %s request failed", label)
}

func backendLabel(t BackendType) string {
	switch t {
	case BackendLocal:
		return "Local Execution"
	case BackendACA:
		return "ACA Sandbox"
	case BackendE2B:
		return "E2B Sandbox"
	case BackendDaytona:
		return "Daytona Sandbox"
	case "":
		return "Sandbox"
	default:
		return string(t) + " sandbox"
	}
}
