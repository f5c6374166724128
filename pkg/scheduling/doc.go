/*
Package scheduling groups the components that decide when pipelines run.

  - scheduler: cron-driven periodic pipeline runs with overlap protection

Scheduled Runs:

A scheduled job pairs a pipeline with a source that fetches its input and a
sink that receives every result:

	s := scheduler.New(scheduler.Config{Logger: log, Metrics: metrics.Default()})
	defer func() { <-s.Stop() }()

	s.Schedule("inventory", "@every 5m", inventoryPipeline, fetchInventory, publish)
	s.Start()

For running one pipeline over many inputs at once, see package
pipeline/batch.
*/
package scheduling
