// Package logging provides the zerolog-backed logger used by flowpipe
// engines, the Log stage and the scheduler.
//
//	log := logging.New(logging.Config{Level: "debug", Format: "console"}, "orders")
//	p, _ := pipeline.New(cfg, pipeline.WithLogger(log))
//
// Output goes to stderr as JSON unless configured otherwise.
package logging
