// Package internaldefs holds the metric names and bucket boundaries shared by the
// exporters.
//
// Both the Prometheus and OTel exporters read these tables so that a counter keeps the
// same name whichever backend scrapes it. The latency bounds mirror the engine's
// fixed login latency buckets.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
