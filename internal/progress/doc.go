// Package progress carries diagnostic events about link-check runs. Events
// go through a non-blocking hub that batches them on a background goroutine
// and fans them out to sinks such as structured logs or Prometheus. Nothing
// on the result stream depends on this package; a slow or missing sink never
// delays a run.
package progress
