package ports

type SchedulerService interface {
	Start()
	Stop()

	// ScheduleTask runs task every interval seconds, starting right away
	// when immediate is true.
	ScheduleTask(interval int64, immediate bool, task func()) error
}
