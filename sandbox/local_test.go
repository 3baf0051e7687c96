package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLocalClient(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("FreshSessionPerCall", func(t *testing.T) {
		client := NewLocalClient(logger, nil)
		first, err := client.CreateSession(context.Background(), "alice")
		require.NoError(t, err)
		second, err := client.CreateSession(context.Background(), "alice")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("RunsInjectedRunner", func(t *testing.T) {
		client := NewLocalClient(logger, func(_ context.Context, params map[string]string) (string, error) {
			return "ECHO:" + params["destination"], nil
		})
		res, err := client.Execute(context.Background(), &Session{Key: "alice"}, Payload{
			Params: map[string]string{"destination": "Paris"},
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeSuccess, res.Outcome)
		assert.Equal(t, "ECHO:Paris", res.Stdout)
	})

	t.Run("DefaultRunnerReportsParams", func(t *testing.T) {
		client := NewLocalClient(logger, nil)
		res, err := client.Execute(context.Background(), &Session{Key: "alice"}, Payload{
			Params: map[string]string{"b": "2", "a": "1"},
		})
		require.NoError(t, err)
		assert.Equal(t, "a: 1\nb: 2", res.Stdout)
	})

	t.Run("RunnerErrorBecomesResult", func(t *testing.T) {
		client := NewLocalClient(logger, func(context.Context, map[string]string) (string, error) {
			return "", errors.New("division by zero")
		})
		res, err := client.Execute(context.Background(), &Session{Key: "alice"}, Payload{})
		require.NoError(t, err)
		assert.Equal(t, OutcomeBackendError, res.Outcome)
		assert.Equal(t, "division by zero", res.Stderr)
	})

	t.Run("DeadlineIsTimeout", func(t *testing.T) {
		client := NewLocalClient(logger, func(ctx context.Context, _ map[string]string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := client.Execute(ctx, &Session{Key: "alice"}, Payload{})
		require.Error(t, err)
		assert.Equal(t, OutcomeTimeout, Classify(err))
	})
}
