// Package scheduler runs pipelines periodically on cron schedules, the usual
// way to refresh data a pipeline derives from an external source.
//
// Basic Usage:
//
//	s := scheduler.New(scheduler.Config{Logger: log})
//	defer func() { <-s.Stop() }()
//
//	err := s.Schedule("orders-refresh", "*/30 * * * * *", ordersPipeline,
//		func(ctx context.Context) (interface{}, map[string]interface{}, error) {
//			rows, err := fetchOrders(ctx)
//			return rows, map[string]interface{}{"source": "orders-db"}, err
//		},
//		func(ctx context.Context, result *pipeline.Result) {
//			if result.Success {
//				publish(result.Output)
//			}
//		})
//
//	s.Start()
//
// Schedules:
//
// Specs use standard cron syntax with an optional leading seconds field, plus
// descriptors:
//
//	"0 */2 * * *"      every two hours
//	"*/15 * * * * *"   every 15 seconds
//	"@daily"           midnight
//	"@every 1m30s"     fixed interval
//
// Expressions are evaluated in Config.Location.
//
// Overlap:
//
// A job whose previous run has not finished when it fires again is skipped
// for that tick. Panics in sources or sinks are recovered and logged.
//
// Manual Runs:
//
// RunNow executes a job immediately and returns its result:
//
//	result, err := s.RunNow(ctx, "orders-refresh")
//
// Monitoring:
//
// List reports each job's next and previous run with run and failure counts.
// With Config.Metrics set, runs, failures and the number of scheduled jobs are
// exported to Prometheus.
package scheduler
