// Package scheduler announces races whose end date has passed.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/matesrace/matesrace/internal/database"
	"github.com/matesrace/matesrace/internal/metrics"
	"github.com/matesrace/matesrace/internal/realtime"
)

// Disabled turns the finish check off when used as the cron spec.
const Disabled = "off"

// Notifier delivers a message to a set of users. *realtime.Broker fits.
type Notifier interface {
	NotifyUsers(userIDs []int64, message realtime.Message)
}

type Scheduler struct {
	c        *cron.Cron
	spec     string
	db       *database.Service
	notifier Notifier
	now      func() time.Time
}

// New registers the finish check under spec, any expression robfig/cron
// accepts including descriptors like "@every 1m".
func New(spec string, db *database.Service, notifier Notifier) (*Scheduler, error) {
	s := &Scheduler{
		c: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		spec:     spec,
		db:       db,
		notifier: notifier,
		now:      time.Now,
	}

	if spec == Disabled {
		return s, nil
	}

	_, err := s.c.AddFunc(spec, func() {
		if n, err := s.AnnounceFinished(); err != nil {
			log.Printf("ERROR: finish check failed after %d announcements: %v", n, err)
		} else if n > 0 {
			log.Printf("INFO: announced %d finished races", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	if s.spec == Disabled {
		log.Println("INFO: race finish check disabled")
		return
	}
	log.Printf("INFO: starting race finish check (cron=%s)", s.spec)
	s.c.Start()
}

// Stop halts the scheduler and returns a context that is done once a running
// check has returned.
func (s *Scheduler) Stop() context.Context {
	return s.c.Stop()
}

// AnnounceFinished sends race_finished to the organiser and participants of
// every race that ended since the last run, then marks it announced. A race
// that fails to be marked is retried on the next run.
func (s *Scheduler) AnnounceFinished() (int, error) {
	races, err := s.db.GetFinishedUnnotifiedRaces(s.db.DB(), s.now())
	if err != nil {
		return 0, fmt.Errorf("list finished races: %w", err)
	}

	announced := 0
	for _, race := range races {
		var members []int64
		err := s.db.WriteTx(func(tx *sql.Tx) error {
			if err := s.db.MarkRaceFinishNotified(tx, race.ID); err != nil {
				return err
			}
			var err error
			members, err = s.db.GetRaceMemberIDs(tx, race.ID)
			return err
		})
		if err != nil {
			metrics.FinishAnnouncements.WithLabelValues(metrics.OutcomeError).Inc()
			return announced, fmt.Errorf("mark race %d finished: %w", race.ID, err)
		}

		s.notifier.NotifyUsers(members, realtime.Message{
			Type:    realtime.TypeRaceFinished,
			Payload: realtime.RacePayload{RaceID: race.ID, RaceName: race.Name},
		})
		metrics.FinishAnnouncements.WithLabelValues(metrics.OutcomeOK).Inc()
		announced++
	}
	return announced, nil
}
