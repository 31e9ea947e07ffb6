// Package core provides the date-column detection and range-extraction engine.
//
// This package holds all domain logic independent of any UI or transport layer.
// It is used by the HTTP server, the dateprobe CLI and tests without modification.
//
// # Architecture
//
// The engine is organized around a closed set of file formats ([FormatCSV],
// [FormatXLSX], [FormatXLS]) and four operations:
//
//   - Sniffing: [Engine.ColumnNames] reads only the header row.
//   - Classification: [Classifier] decides whether a column holds dates and
//     with which [DateFormat], using a bounded sample of non-null values.
//   - Range extraction: [Engine.Range] streams delimited files record by record
//     and materializes spreadsheets, keeping a running min/max.
//   - Harmonization: [Engine.Harmonize] appends a <column>_harmonized column
//     with YYYY-MM-DD values for every detected date column.
//
// # Processing
//
// [Processor] sequences the operations for one uploaded file and records the
// terminal status in the metadata store:
//
//	pending -> processing -> completed | error
//
// Each file carries a run sequence number. Starting a run bumps the number and
// cancels the previous run; a run may only write its terminal result while its
// number is still current, so a superseded run can never overwrite a newer one.
//
// [Processor.StartReconciler] periodically repairs records that no live run
// owns, such as runs interrupted by a restart.
//
// # Error Handling
//
// Individual cells that fail to parse are treated as null and never surface as
// errors. Whole-file failures are wrapped and returned; [MapError] converts them
// into user-facing messages with support codes.
package core
