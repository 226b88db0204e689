// Package harvest implements the tab archiving pipeline: request validation,
// prompt composition, model invocation, tolerant response parsing, durable
// persistence and the aggregate counter update.
//
// Stage order is fixed: Validating, Invoking, Sanitizing, Persisting,
// UpdatingMetrics. A failure in any of the first four aborts the request with
// a *StageError; a failure while updating metrics is logged and swallowed
// because the archive has already committed.
package harvest
