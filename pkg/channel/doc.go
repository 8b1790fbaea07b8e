// Package channel drives the request/response conversation between a
// worker and its coordinator.
//
// The conversation is a single HTTP endpoint that is POSTed repeatedly.
// The first request announces readiness; every later request echoes the
// previous response with a "result" field attached. Each response carries
// an action: "run" executes a job, "stop" ends the loop, and anything else
// is a [ProtocolError]. Transport failures are retried forever with
// exponential backoff.
package channel
