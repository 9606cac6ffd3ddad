// Package pagination drives the remote document API's two pagination idioms
// and aggregates their batches into one record sequence.
//
// Three strategies implement the Strategy interface:
//
//   - CursorScroll: echoes an opaque scroll token on every call until the
//     remote reports no further token, returns an empty batch, or repeats a
//     token it already sent (a stalled cursor, surfaced as Truncated).
//   - WindowedSearch: requests explicit item ranges sorted by ascending id and
//     stops on a short batch or once the reported total has been reached.
//   - PagedSearch: requests numbered pages under a schema resolved up front
//     and stops on a short page.
//
// All strategies are sequential: call n+1 depends on the state returned by
// call n. Every strategy stops at MaxBatches calls and marks the result as
// Truncated. A failed remote call ends the strategy immediately; there are no
// per-batch retries.
//
// Example usage:
//
//	set := pagination.NewSet(apiClient, resolver, pagination.DefaultConfig())
//	primary, fallback, err := set.ForVersion(docapi.V1)
//	result, err := primary.Run(ctx, req)
package pagination
