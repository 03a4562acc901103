// Package executor provides an admission-controlled retry executor for
// fallible asynchronous operations.
//
// Every remote call in the application is routed through an Executor. A
// submitted operation waits in a FIFO queue until a concurrency slot is
// free, then runs under an absolute deadline measured from submission.
// Transient failures (rate limiting, network trouble, 5xx responses) are
// retried with exponential backoff; auth failures and malformed requests
// fail immediately. Unrecognized errors are treated as transient.
//
// Admission order is FIFO, completion order is not: a fast operation
// submitted later may settle before an earlier, slower one. The pending
// queue is unbounded; the concurrency ceiling is the only backpressure
// mechanism.
package executor
