// Package resilience provides reliability and fault tolerance patterns for the application.
// It includes implementations of circuit breakers and retry logic to keep outbound
// fetches stable in the face of flaky upstream sources.
//
// The package supports:
//   - Circuit breakers for external fetch targets (news feeds, press release sites)
//   - Retry logic with exponential backoff and jitter
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.Config{Name: "fda-news"})
//	err := cb.Execute(ctx, func(ctx context.Context) error {
//	    return fetchSource(ctx)
//	})
//
//	retryConfig := retry.DefaultConfig()
//	err := retry.WithBackoff(ctx, retryConfig, func() error {
//	    return performOperation()
//	})
package resilience
