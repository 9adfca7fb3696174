package planning

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// WeekDataset is the full weekly plan for a week plus its amendments.
type WeekDataset struct {
	WeekReference string           `json:"week_reference"`
	Lines         []WeeklyPlanLine `json:"lines"`
	Amendments    []Amendment      `json:"amendments"`
	TotalVolume   decimal.Decimal  `json:"total_volume"`
	TotalOrderQty int              `json:"total_order_qty"`
	LoadedAt      time.Time        `json:"loaded_at"`
}

// DatasetLoader loads WeekDatasets through a TTL cache.
type DatasetLoader struct {
	Repo     Repository
	Cache    *Cache[string, *WeekDataset]
	PageSize int
	Log      zerolog.Logger

	loads singleflight.Group
}

func NewDatasetLoader(repo Repository, ttl time.Duration, pageSize int, log zerolog.Logger) *DatasetLoader {
	return &DatasetLoader{
		Repo:     repo,
		Cache:    NewCache[string, *WeekDataset]("week_dataset", ttl),
		PageSize: pageSize,
		Log:      log,
	}
}

// Load returns the cached dataset for week or reads it page by page.
// Concurrent misses for the same week and generation share one read.
// progress may be nil and is only reported to the caller doing the read.
func (l *DatasetLoader) Load(ctx context.Context, week string, progress Progress) (*WeekDataset, error) {
	if ds, ok := l.Cache.Get(week); ok {
		return ds, nil
	}

	gen := l.Cache.Generation(week)
	v, err, _ := l.loads.Do(fmt.Sprintf("%s#%d", week, gen), func() (any, error) {
		ds, err := l.read(ctx, week, progress)
		if err != nil {
			return nil, err
		}
		if !l.Cache.SetIfCurrent(week, gen, ds) {
			l.Log.Debug().Str("week", week).Msg("week dataset changed during load, not cached")
		}
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*WeekDataset), nil
}

func (l *DatasetLoader) read(ctx context.Context, week string, progress Progress) (*WeekDataset, error) {
	lines, err := LoadPaged(ctx, func(ctx context.Context, offset, limit int) ([]WeeklyPlanLine, error) {
		return l.Repo.ListWeeklyPlanPage(ctx, week, offset, limit)
	}, l.PageSize, progress)
	if err != nil {
		return nil, fmt.Errorf("failed to load weekly plan for %s: %w", week, err)
	}

	amendments, err := l.Repo.ListAmendments(ctx, AmendmentFilter{WeekReference: week})
	if err != nil {
		return nil, fmt.Errorf("failed to load amendments for %s: %w", week, err)
	}

	ds := &WeekDataset{
		WeekReference: week,
		Lines:         lines,
		Amendments:    amendments,
		TotalVolume:   decimal.Zero,
		LoadedAt:      l.Cache.Now(),
	}
	for _, line := range lines {
		ds.TotalVolume = ds.TotalVolume.Add(line.Volume)
		ds.TotalOrderQty += line.OrderQty
	}

	l.Log.Info().Str("week", week).Int("lines", len(lines)).Int("amendments", len(amendments)).Msg("week dataset loaded")
	return ds, nil
}

// Invalidate drops the cached dataset for week. Safe on a nil loader.
func (l *DatasetLoader) Invalidate(week string) {
	if l == nil {
		return
	}
	l.Cache.Invalidate(week)
}
