package dynamodb

import (
	"errors"
	"time"
)

// Option is a functional option for configuring a [Client].
type Option func(*Options)

// Options holds the configuration for a [Client]. Use [Option] functions
// (such as [WithMaxBatchRetries] or [WithBatchRetryBaseDelay]) to customise
// the defaults.
type Options struct {
	maxBatchRetries     int
	batchRetryBaseDelay time.Duration
	dynamoDBAPI         API
}

func newOptions() *Options {
	return &Options{
		maxBatchRetries:     5,
		batchRetryBaseDelay: 50 * time.Millisecond,
	}
}

func (o *Options) validate() error {
	if o.maxBatchRetries < 0 {
		return errors.New("max batch retries cannot be negative")
	}

	if o.batchRetryBaseDelay <= 0 {
		return errors.New("batch retry base delay must be greater than zero")
	}

	return nil
}

// WithMaxBatchRetries sets how many times a batch write re-submits
// unprocessed items before giving up. The default is 5. It must not be
// negative.
func WithMaxBatchRetries(n int) Option {
	return func(o *Options) {
		o.maxBatchRetries = n
	}
}

// WithBatchRetryBaseDelay sets the initial backoff before re-submitting
// unprocessed batch items. The delay doubles on every attempt, capped at two
// seconds. The default is 50 milliseconds. It must be greater than zero.
func WithBatchRetryBaseDelay(d time.Duration) Option {
	return func(o *Options) {
		o.batchRetryBaseDelay = d
	}
}

// WithAPI sets a custom [API] implementation. This is useful when a custom
// DynamoDB configuration is required, or for injecting mocks in tests.
func WithAPI(api API) Option {
	return func(o *Options) {
		o.dynamoDBAPI = api
	}
}
