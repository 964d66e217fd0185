// Package audit is the security event log. Events flow through an
// asynchronous [Dispatcher] into a [Sink]; emission never blocks the
// security operation that produced the event, and a full buffer drops
// events rather than stalling a login.
//
// Two production sinks are provided: [JSONWriterSink] appends one JSON
// object per line, and [SQLiteSink] persists events with a query surface
// for the admin dashboard (recent events, failure counts, retention
// pruning). Both duplicate warning-and-above events into a separate
// alerts stream so high-severity entries survive log rotation of the
// main stream.
package audit
