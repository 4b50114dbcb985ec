package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maxidea1024/gatrix-sub004/internal/cache"
)

// Job is one periodic maintenance task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func() error
}

// Runner executes jobs on their intervals. Each tick takes a short Redis
// lease named after the job so only one instance of the service runs it.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *logrus.Entry
	jobs   []Job
}

// NewRunner creates a new job runner
func NewRunner(logger *logrus.Entry) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		ctx:    ctx,
		cancel: cancel,
		logger: logger.WithField("component", "scheduler"),
	}
}

// Add registers a job. Must be called before Start.
func (r *Runner) Add(job Job) {
	r.jobs = append(r.jobs, job)
}

// Start launches one goroutine per job
func (r *Runner) Start() {
	for _, job := range r.jobs {
		go r.loop(job)
	}
}

// Stop gracefully stops all jobs
func (r *Runner) Stop() {
	r.cancel()
}

func (r *Runner) loop(job Job) {
	r.logger.Infof("Starting job %s (every %s)", job.Name, job.Interval)
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.runOnce(job)
		case <-r.ctx.Done():
			r.logger.Infof("Stopping job %s", job.Name)
			return
		}
	}
}

func (r *Runner) runOnce(job Job) {
	// The lease covers most of the interval so a second instance skips the
	// tick instead of racing.
	lease := job.Interval / 2
	if lease < time.Second {
		lease = time.Second
	}
	key := "gatrix:scheduler:" + job.Name
	ok, err := cache.Client.SetNX(r.ctx, key, 1, lease).Result()
	if err != nil {
		r.logger.Errorf("Failed to take lease for job %s: %v", job.Name, err)
		return
	}
	if !ok {
		return
	}

	if err := job.Run(); err != nil {
		r.logger.Errorf("Job %s failed: %v", job.Name, err)
	}
}
