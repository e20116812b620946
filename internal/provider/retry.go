package provider

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// NewRetryableHTTPClient builds the shared *http.Client every Provider
// Adapter's transport uses: up to three attempts per request (two retries)
// on 429, 5xx other than 501, and connection failures (retryablehttp's
// default retry policy), honoring a server-supplied Retry-After header and
// falling back to a 1s initial delay otherwise, per the transient-error
// retry rule shared by every adapter.
func NewRetryableHTTPClient() *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 30 * time.Second
	rc.Logger = nil
	rc.Backoff = retryAfterAwareBackoff
	return rc.StandardClient()
}

// retryAfterAwareBackoff honors a numeric Retry-After header when present,
// otherwise delegates to retryablehttp's default exponential backoff.
func retryAfterAwareBackoff(minWait, maxWait time.Duration, attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if raw := resp.Header.Get("Retry-After"); raw != "" {
			if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
				wait := time.Duration(secs) * time.Second
				if wait > maxWait {
					return maxWait
				}
				return wait
			}
		}
	}
	return retryablehttp.DefaultBackoff(minWait, maxWait, attempt, resp)
}
