package scheduler

import (
	"fmt"
	"time"

	"github.com/ark-network/pls/internal/core/ports"
	"github.com/go-co-op/gocron"
)

type service struct {
	scheduler *gocron.Scheduler
}

func NewScheduler() ports.SchedulerService {
	svc := gocron.NewScheduler(time.UTC)
	return &service{svc}
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.scheduler.Stop()
}

func (s *service) ScheduleTask(interval int64, immediate bool, task func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid task interval %d", interval)
	}

	job := s.scheduler.Every(int(interval)).Seconds()
	if !immediate {
		job = job.WaitForSchedule()
	}
	if _, err := job.Do(task); err != nil {
		return fmt.Errorf("failed to schedule task: %s", err)
	}
	return nil
}
