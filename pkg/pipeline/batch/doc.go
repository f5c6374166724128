/*
Package batch runs one pipeline over many inputs concurrently.

A Runner owns a fixed set of workers. Each submitted input becomes one
Execute call on the shared pipeline, and its Outcome is delivered on the
Results channel in completion order:

	r, err := batch.New(p, batch.Config{Workers: 8, QueueSize: 64})
	if err != nil {
		return err
	}

	go func() {
		for _, order := range orders {
			_ = r.Submit(ctx, order, nil)
		}
		<-r.Shutdown()
	}()

	for outcome := range r.Results() {
		if outcome.Err != nil {
			log.Printf("order %d: %v", outcome.Index, outcome.Err)
		}
	}

Run does the same for a fixed slice and returns outcomes in input order:

	outcomes, err := batch.Run(ctx, p, items, batch.Config{Workers: 4})

Throttling:

Config.Rate caps how many runs start per second across all workers, with
Config.Burst runs allowed back to back. Workers wait for a token before
calling Execute. An input whose context ends while waiting is reported with
a nil Result and the context error.

Shutdown:

Shutdown stops accepting inputs, lets the workers finish everything already
queued, and then closes Results. Results must be drained for Shutdown to
complete.
*/
package batch
