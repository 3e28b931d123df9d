package zendesk

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type options struct {
	baseURL    string
	httpClient *http.Client
	clock      func() time.Time
	logger     zerolog.Logger
}

// Option is a function which modifies the client options.
type Option func(*options)

func newOptions() *options {
	return &options{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		clock:      time.Now,
		logger:     zerolog.Nop(),
	}
}

// WithBaseURL overrides the API base URL derived from the account domain.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithHTTPClient sets the HTTP client used for every API call.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithClock sets the time source used when a ticket omits a timestamp.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithLogger sets the logger used for fetch progress and swallowed errors.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}
