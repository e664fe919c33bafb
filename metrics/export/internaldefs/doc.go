// Package internaldefs holds the metric layout shared by the Prometheus and
// OTel exporters and collects a [Frame] from a monitor.
//
// Both exporters walk the same frame, so a rename here changes every
// exposition at once.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
