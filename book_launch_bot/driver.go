package booklaunchbot

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ItemsAPI is the service's item surface as seen by the scheduler.
type ItemsAPI interface {
	PostItems(ctx context.Context) ([]FeedItem, error)
	GetItems(ctx context.Context, offsetDays int) (*WindowQueryResult, error)
}

// Driver runs one notification cycle per timer tick.
type Driver struct {
	api            ItemsAPI
	notifier       *Notifier
	newItemsTitle  string
	soonItemsTitle string
	soonOffset     int
}

func NewDriver(api ItemsAPI, notifier *Notifier, config NotificationConfig) *Driver {
	return &Driver{
		api:            api,
		notifier:       notifier,
		newItemsTitle:  config.NewItemsTitle,
		soonItemsTitle: config.SoonItemsTitle,
		soonOffset:     config.SoonOffsetDays,
	}
}

// RunCycle ingests the feed and announces new items, then announces the items
// published in the soon window. A failure in either half is logged and the other
// half still runs.
func (d *Driver) RunCycle(ctx context.Context) {
	pkgLogger.Info("Start notification cycle")
	d.notifyNewItems(ctx)
	d.notifySoonItems(ctx)
	pkgLogger.Info("Finish notification cycle")
}

func (d *Driver) notifyNewItems(ctx context.Context) {
	defer d.recoverStep("new items")

	items, err := d.api.PostItems(ctx)
	if err != nil {
		pkgLogger.Error("Failed to ingest items", "error", err)
		return
	}
	if len(items) == 0 {
		pkgLogger.Info("No new items")
		return
	}
	pkgLogger.Info("Notifying new items", "count", len(items))
	_ = d.notifier.Notify(ctx, d.newItemsTitle, items)
}

func (d *Driver) notifySoonItems(ctx context.Context) {
	defer d.recoverStep("soon items")

	result, err := d.api.GetItems(ctx, d.soonOffset)
	if err != nil {
		pkgLogger.Error("Failed to query soon items", "error", err)
		return
	}
	if len(result.Items) == 0 {
		pkgLogger.Info("No soon items", "start", result.Start, "end", result.End)
		return
	}
	pkgLogger.Info("Notifying soon items", "count", len(result.Items), "start", result.Start)
	_ = d.notifier.Notify(ctx, d.soonItemsTitle, result.Items)
}

func (d *Driver) recoverStep(step string) {
	if p := recover(); p != nil {
		pkgLogger.Error("Notification step panicked", "step", step, "panic", fmt.Sprint(p))
	}
}

// Scheduler triggers Driver.RunCycle on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	job     cron.Job
	driver  *Driver
	timeout time.Duration
}

// NewScheduler registers the driver under schedule, a standard five-field cron
// expression evaluated in location. Overlapping cycles are skipped.
func NewScheduler(schedule string, location *time.Location, driver *Driver, timeout time.Duration) (*Scheduler, error) {
	if location == nil {
		location = time.UTC
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(location)),
		driver:  driver,
		timeout: timeout,
	}
	// one wrapped job for every entry, so timer ticks and RunOnce share the skip guard
	s.job = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(cron.FuncJob(s.Trigger))
	if _, err := s.cron.AddJob(schedule, s.job); err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return s, nil
}

// onceSchedule fires at the first opportunity and never again.
type onceSchedule struct {
	fired bool
}

func (o *onceSchedule) Next(t time.Time) time.Time {
	if o.fired {
		return time.Time{}
	}
	o.fired = true
	return t
}

// RunOnce queues one cycle as soon as the scheduler runs. The cycle is skipped if
// another one is in progress, and Stop waits for it.
func (s *Scheduler) RunOnce() {
	s.cron.Schedule(&onceSchedule{}, s.job)
}

// Trigger runs one cycle immediately on the calling goroutine.
func (s *Scheduler) Trigger() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	s.driver.RunCycle(ctx)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the schedule and returns a context that is done once a running cycle finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
