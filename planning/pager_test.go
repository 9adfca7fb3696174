package planning_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/planning"
)

func rows(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func sliceFetcher(all []int, calls *int) planning.PageFetcher[int] {
	return func(_ context.Context, offset, limit int) ([]int, error) {
		*calls++
		if offset >= len(all) {
			return nil, nil
		}
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		return all[offset:end], nil
	}
}

func TestLoadPaged_StopsOnShortPage(t *testing.T) {
	// GIVEN: 2500 rows and a page size of 1000
	// WHEN: Loading
	// THEN: Three fetches, progress reported after each, all rows returned

	var calls int
	var progress []int
	got, err := planning.LoadPaged(context.Background(), sliceFetcher(rows(2500), &calls), 1000, func(n int) {
		progress = append(progress, n)
	})

	require.NoError(t, err)
	assert.Len(t, got, 2500)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1000, 2000, 2500}, progress)
}

func TestLoadPaged_ExactMultipleNeedsTrailingEmptyPage(t *testing.T) {
	var calls int
	got, err := planning.LoadPaged(context.Background(), sliceFetcher(rows(2000), &calls), 1000, nil)

	require.NoError(t, err)
	assert.Len(t, got, 2000)
	assert.Equal(t, 3, calls)
}

func TestLoadPaged_DefaultPageSize(t *testing.T) {
	var calls int
	got, err := planning.LoadPaged(context.Background(), sliceFetcher(rows(10), &calls), 0, nil)

	require.NoError(t, err)
	assert.Len(t, got, 10)
	assert.Equal(t, 1, calls)
}

func TestLoadPaged_FetchErrorIsWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := planning.LoadPaged(context.Background(), func(context.Context, int, int) ([]int, error) {
		return nil, boom
	}, 100, nil)

	assert.ErrorIs(t, err, boom)
}

func TestLoadPaged_StopsWhenCancelled(t *testing.T) {
	// GIVEN: A context cancelled after the first page
	// WHEN: Loading a large table
	// THEN: Loading stops with the context error

	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	fetch := sliceFetcher(rows(5000), &calls)

	_, err := planning.LoadPaged(ctx, fetch, 1000, func(int) { cancel() })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
