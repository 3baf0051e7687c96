package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	desc := Descriptor{Type: BackendACA, Marker: "☁️ [Azure Container Apps Sandbox]"}

	t.Run("SuccessWithStdout", func(t *testing.T) {
		out := Normalize(desc, Result{Stdout: "sunny, 21C\n", Outcome: OutcomeSuccess})
		assert.Equal(t, "☁️ [Azure Container Apps Sandbox]\nsunny, 21C\n", out)
	})

	t.Run("FallsBackToReturnValue", func(t *testing.T) {
		out := Normalize(desc, Result{ReturnValue: "42", Outcome: OutcomeSuccess})
		assert.Equal(t, "☁️ [Azure Container Apps Sandbox]\n42", out)
	})

	t.Run("EmptyOutput", func(t *testing.T) {
		out := Normalize(desc, Result{Outcome: OutcomeSuccess})
		assert.Contains(t, out, "(no output)")
	})

	t.Run("FailureShowsStderr", func(t *testing.T) {
		out := Normalize(desc, Result{Stderr: "NameError: x", Outcome: OutcomeBackendError})
		assert.Equal(t, "⚠️ ACA Sandbox Error:\nNameError: x", out)
	})

	t.Run("FailureWithoutStderr", func(t *testing.T) {
		out := Normalize(desc, Result{Outcome: OutcomeBackendError})
		assert.Contains(t, out, string(OutcomeBackendError))
	})

	t.Run("MarkerFallback", func(t *testing.T) {
		out := Normalize(Descriptor{Type: BackendLocal}, Result{Stdout: "hi", Outcome: OutcomeSuccess})
		assert.Equal(t, "[Local Execution]\nhi", out)
	})
}

func TestNormalizeError(t *testing.T) {
	desc := Descriptor{Type: BackendE2B}

	t.Run("ConfigError", func(t *testing.T) {
		out := NormalizeError(Descriptor{}, ConfigErrorf("unknown sandbox type %q", "bogus"))
		assert.Equal(t, `⚠️ Configuration error: unknown sandbox type "bogus"`, out)
	})

	t.Run("AuthFailure", func(t *testing.T) {
		out := NormalizeError(desc, AuthFailuref("backend rejected credentials (HTTP 401)"))
		assert.Equal(t, "⚠️ E2B Sandbox authentication failed: backend rejected credentials (HTTP 401)", out)
	})

	t.Run("Timeout", func(t *testing.T) {
		out := NormalizeError(desc, Timeoutf("execution timed out"))
		assert.Equal(t, "⚠️ E2B Sandbox execution timed out", out)
	})

	t.Run("DetailNeverLeaks", func(t *testing.T) {
		err := BackendErrorf("backend error (HTTP 500)").
			WithDetail(`{"stack":"secret-internal-trace","token":"eyJ"}`)
		out := NormalizeError(desc, err)
		assert.Contains(t, out, "backend error (HTTP 500)")
		assert.NotContains(t, out, "secret-internal-trace")
		assert.NotContains(t, out, "eyJ")
	})

	t.Run("PlainDeadline", func(t *testing.T) {
		out := NormalizeError(desc, context.DeadlineExceeded)
		assert.Equal(t, "⚠️ E2B Sandbox execution timed out", out)
	})

	t.Run("UnknownError", func(t *testing.T) {
		out := NormalizeError(desc, errors.New("surprise"))
		assert.Equal(t, "⚠️ E2B Sandbox request failed", out)
		assert.NotContains(t, out, "surprise")
	})
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, OutcomeAuthFailure, Classify(AuthFailuref("no")))
	assert.Equal(t, OutcomeConfigError, Classify(ConfigErrorf("bad")))
	assert.Equal(t, OutcomeBackendError, Classify(errors.New("other")))
}
