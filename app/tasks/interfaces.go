package tasks

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to manage background task processing.
// Example usage:
//
//	scheduler := NewScheduler(collector, analyzer, postRepo, scoreRepo, mailer, accountList)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueRun()
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	EnqueueRun()
}
