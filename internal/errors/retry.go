package errors

import (
	"math/rand"
	"time"
)

// RetryController implements exponential backoff with jitter for retry logic.
//
// Only the journal writer retries. Reads during replay are never retried: a
// failed read is either a torn tail (truncate) or a one-time warning.
type RetryController struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	maxRetries   int
}

// NewRetryController creates a retry controller with default settings.
// Default: initial delay 10ms, max delay 1s, max retries 5
func NewRetryController() *RetryController {
	return &RetryController{
		initialDelay: 10 * time.Millisecond,
		maxDelay:     1 * time.Second,
		maxRetries:   5,
	}
}

// NewRetryControllerWith creates a retry controller with explicit limits.
func NewRetryControllerWith(initialDelay, maxDelay time.Duration, maxRetries int) *RetryController {
	return &RetryController{
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		maxRetries:   maxRetries,
	}
}

// Retry executes fn, retrying while the classifier says the failure is transient.
func (rc *RetryController) Retry(fn func() error, classifier *Classifier) error {
	var lastErr error

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		category := classifier.Classify(err)

		if !classifier.ShouldRetry(category) {
			return err
		}

		if attempt >= rc.maxRetries {
			return err
		}

		time.Sleep(rc.calculateDelay(attempt))
	}

	return lastErr
}

// calculateDelay calculates the delay for a given attempt using exponential backoff + jitter.
func (rc *RetryController) calculateDelay(attempt int) time.Duration {
	delay := rc.initialDelay * time.Duration(1<<uint(attempt))

	if delay > rc.maxDelay {
		delay = rc.maxDelay
	}

	// ±25% jitter
	jitter := time.Duration(float64(delay) * 0.25 * (rand.Float64()*2 - 1))
	delay += jitter

	if delay < 0 {
		delay = rc.initialDelay
	}

	return delay
}
