// Package pagination implements the page-keyed fetch protocol for remote
// listings.
//
// A Fetcher is bound to one listing key for its whole lifetime. The paging
// consumer drives it:
//
//	f := pagination.NewFetcher[client.Post](ctx, apiClient, "summer", pool)
//	f.LoadInitial(pagination.InitialParams{RequestedSize: 90, PageSize: 30}, onFirstPage)
//	f.LoadAfter(pagination.AfterParams{Key: 3, RequestedSize: 30}, onNextPage)
//
// Every load publishes its progress to live NetworkState streams:
//   - NetworkState follows the most recent load (initial or append)
//   - InitialLoad settles once the first page resolves
//
// A failed load never returns an error to the caller. It records a single
// pending retry and publishes Failed(message); RetryAllFailed replays that
// exact load once on the executor. Transport failures carry the cause text,
// server failures read "error code: <status>".
//
// Invalidate marks a fetcher stale (pull-to-refresh); the paging consumer
// then discards it and starts over with a new one.
package pagination
