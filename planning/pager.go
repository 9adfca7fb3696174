package planning

import (
	"context"
	"fmt"
)

// DefaultPageSize is the row cap the relational store applies per request.
const DefaultPageSize = 1000

// PageFetcher returns rows [offset, offset+limit).
type PageFetcher[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// Progress is called after each page with the running row count.
type Progress func(loaded int)

// LoadPaged drains fetch page by page until a short page comes back.
// Pages are fetched sequentially; cancellation is checked between pages.
func LoadPaged[T any](ctx context.Context, fetch PageFetcher[T], pageSize int, progress Progress) ([]T, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var all []T
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := fetch(ctx, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("load page at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if progress != nil {
			progress(len(all))
		}
		if len(page) < pageSize {
			return all, nil
		}
	}
}
