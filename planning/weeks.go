package planning

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// WeekReference formats the reference used for an ISO week number.
func WeekReference(week int) string {
	return fmt.Sprintf("Week %02d", week)
}

// WeekFor returns the ISO week (Monday to Sunday) containing t, in t's
// location.
func WeekFor(t time.Time) WeekSelection {
	year, week := t.ISOWeek()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return WeekSelection{
		Reference:  WeekReference(week),
		StartDate:  start,
		EndDate:    start.AddDate(0, 0, 6),
		Year:       year,
		WeekNumber: week,
		IsActive:   true,
		Status:     WeekOpen,
	}
}

type WeekService struct {
	Repo     TxRepository
	Datasets *DatasetLoader
	Events   Publisher
	Log      zerolog.Logger
	Now      func() time.Time
}

func NewWeekService(repo TxRepository, datasets *DatasetLoader, events Publisher, log zerolog.Logger) *WeekService {
	return &WeekService{Repo: repo, Datasets: datasets, Events: events, Log: log, Now: time.Now}
}

// ListWeeks returns every week, newest first.
func (s *WeekService) ListWeeks(ctx context.Context) ([]WeekSelection, error) {
	weeks, err := s.Repo.ListWeeks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list weeks: %w", err)
	}
	sort.SliceStable(weeks, func(i, j int) bool {
		return weeks[i].StartDate.After(weeks[j].StartDate)
	})
	return weeks, nil
}

// CurrentWeek returns the week flagged current, or the newest week.
func (s *WeekService) CurrentWeek(ctx context.Context) (*WeekSelection, error) {
	weeks, err := s.ListWeeks(ctx)
	if err != nil {
		return nil, err
	}
	if len(weeks) == 0 {
		return nil, fmt.Errorf("%w: no weeks configured", ErrWeekNotFound)
	}
	for i := range weeks {
		if weeks[i].IsCurrent {
			return &weeks[i], nil
		}
	}
	return &weeks[0], nil
}

// SetWeekStatus opens or closes a week. The week row and the week_status of
// all its submissions change together.
func (s *WeekService) SetWeekStatus(ctx context.Context, admin User, ref string, status WeekStatus) (*WeekSelection, error) {
	if admin.Role != RoleAdmin {
		return nil, &AccessError{UserID: admin.ID, Reason: "only admins change week status"}
	}
	if _, err := ParseWeekStatus(string(status)); err != nil || status == "" {
		return nil, &UnknownValueError{Kind: "week status", Value: string(status)}
	}

	var week WeekSelection
	err := s.Repo.WithTx(ctx, func(tx Repository) error {
		w, err := tx.GetWeek(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to load week %s: %w", ref, err)
		}
		if w == nil {
			return fmt.Errorf("%w: %s", ErrWeekNotFound, ref)
		}
		if err := tx.SetWeekStatus(ctx, ref, status); err != nil {
			return fmt.Errorf("failed to set week status: %w", err)
		}
		week = *w
		week.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info().Str("week", ref).Str("status", string(status)).Str("admin", admin.ID).Msg("week status changed")
	s.Datasets.Invalidate(ref)
	publish(s.Events, ChangeEvent{Kind: EventWeekStatus, WeekReference: ref, ActorID: admin.ID, At: s.now()})
	return &week, nil
}

// EnsureWeek creates the ISO week containing date if it is missing and
// marks it current. Returns the week and whether it was created.
func (s *WeekService) EnsureWeek(ctx context.Context, date time.Time) (*WeekSelection, bool, error) {
	want := WeekFor(date)
	want.IsCurrent = true
	want.CreatedAt = s.now()

	var week WeekSelection
	created := false
	err := s.Repo.WithTx(ctx, func(tx Repository) error {
		existing, err := tx.GetWeek(ctx, want.Reference)
		if err != nil {
			return fmt.Errorf("failed to load week %s: %w", want.Reference, err)
		}
		switch {
		case existing == nil:
			if err := tx.SaveWeek(ctx, want); err != nil {
				return fmt.Errorf("failed to create week %s: %w", want.Reference, err)
			}
			week, created = want, true
		case existing.Year != want.Year:
			// Same week number from an earlier year: roll the row forward,
			// reopening it for the new dates.
			if err := tx.SaveWeek(ctx, want); err != nil {
				return fmt.Errorf("failed to roll week %s forward: %w", want.Reference, err)
			}
			week, created = want, true
		default:
			week = *existing
		}
		if !week.IsCurrent || created {
			if err := tx.SetCurrentWeek(ctx, week.Reference); err != nil {
				return fmt.Errorf("failed to mark %s current: %w", week.Reference, err)
			}
			week.IsCurrent = true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.Log.Info().Str("week", week.Reference).Int("year", week.Year).Msg("week created")
	}
	return &week, created, nil
}

func (s *WeekService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
