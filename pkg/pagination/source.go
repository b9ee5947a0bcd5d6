package pagination

import "context"

// Page is the result of fetching one page from a Source.
type Page[T any] struct {
	Items []T
	// HasMore is false when the source reports no further pages.
	HasMore bool
}

// Source is the remote listing endpoint. Pages are numbered from zero.
type Source[T any] interface {
	// FetchPage fetches page number page of the listing identified by key,
	// with at most limit items. Failures should be reported as *FetchError;
	// any other error counts as a transport failure.
	FetchPage(ctx context.Context, key string, page, limit int) (Page[T], error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc[T any] func(ctx context.Context, key string, page, limit int) (Page[T], error)

// FetchPage calls f.
func (f SourceFunc[T]) FetchPage(ctx context.Context, key string, page, limit int) (Page[T], error) {
	return f(ctx, key, page, limit)
}

// InitialParams are the parameters of a first load. When PageSize is set
// and RequestedSize is a multiple of it, the first load spans several pages
// and the cursor it hands out skips past them.
type InitialParams struct {
	RequestedSize int
	PageSize      int
}

// nextPage is the cursor following an initial load.
func (p InitialParams) nextPage() int {
	if p.PageSize > 0 && p.RequestedSize > p.PageSize && p.RequestedSize%p.PageSize == 0 {
		return p.RequestedSize / p.PageSize
	}
	return 1
}

// AfterParams are the parameters of an append. Key is the cursor handed out
// by the previous load.
type AfterParams struct {
	Key           int
	RequestedSize int
}

// BeforeParams are the parameters of a prepend.
type BeforeParams struct {
	Key           int
	RequestedSize int
}

// LoadResult is what a successful load delivers to its callback.
type LoadResult[T any] struct {
	Items []T
	// Next is the cursor for the following LoadAfter; valid only when
	// HasNext is true.
	Next    int
	HasNext bool
}

// Callback receives the result of a successful load. It is never called for
// a failed load.
type Callback[T any] func(LoadResult[T])
