package lib

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

var scheduler gocron.Scheduler

func NewScheduler(s gocron.Scheduler) {
	scheduler = s
}

// GetScheduler returns the process scheduler, creating it on the given clock
// on first use.
func GetScheduler(clock clockwork.Clock) (gocron.Scheduler, error) {
	if scheduler != nil {
		return scheduler, nil
	}
	sched, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLogger(gocron.NewLogger(gocron.LogLevelInfo)),
	)
	if err != nil {
		log.Printf("Error initializing Scheduler: %s\n", err.Error())
		return nil, err
	}
	scheduler = sched
	return sched, nil
}

// CreateIntervalJob runs task every interval. A run still in progress when
// the next one is due causes that run to be skipped.
func CreateIntervalJob(sched gocron.Scheduler, name string, interval time.Duration, task func()) (string, error) {
	j, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", err
	}
	id := j.ID().String()
	log.Printf("Job: %s %s every %s\n", id, j.Name(), interval)
	return id, nil
}

func StopScheduler() {
	if scheduler == nil {
		return
	}
	if err := scheduler.Shutdown(); err != nil {
		log.Printf("Error shutting down scheduler: %s\n", err.Error())
	}
	scheduler = nil
}
