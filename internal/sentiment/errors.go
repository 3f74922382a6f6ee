package sentiment

import "errors"

var (
	// ErrRateLimited is returned when a remote provider answered 429 for
	// the attempted key.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrSchemaValidation is returned when a remote response parsed but
	// violated the judgment contract (score bounds, timeline enum).
	ErrSchemaValidation = errors.New("response failed schema validation")

	// ErrNoKeyAvailable is returned when every key in a pool is cooling
	// down. The pair should be deferred, not busy-waited.
	ErrNoKeyAvailable = errors.New("no api key available")

	// ErrAllPathsExhausted is returned when every inference path,
	// including the local fallback, failed for a pair.
	ErrAllPathsExhausted = errors.New("all inference paths exhausted")
)
