// Package core provides the CSV ingestion engine and the pieces shared by
// every Data Ghost binary.
//
// This package holds domain logic independent of any transport. It is used
// by the gateway's web handlers, the Answer Service backend and the terminal
// client without modification.
//
// # Ingestion
//
// [Parse] turns a delimited text stream into [CSVData]: the first non-empty
// line is the header row, every following non-empty line becomes a [Row]
// keyed by header name. The stream passes through the readers in
// streaming.go first:
//
//  1. [StreamingCountingReader] enforces an optional byte limit
//  2. [BOMSkippingReader] drops a leading UTF-8 BOM
//  3. [UTF8Validator] or [StreamingUTF8Sanitizer] handles bad encoding
//
// Structural problems are collected into a single [ParseError]; a failed
// parse never returns partial data.
//
//	data, err := core.NewParser(core.ParseOptions{
//	    InvalidUTF8: core.UTF8Replace,
//	    MaxBytes:    10 << 20,
//	}).Parse(file)
//
// # Token Estimates
//
// [EstimateTokens] is the ceil(len/4) display heuristic shown beside a
// question before it is sent. [EstimateCost] turns it into dollars.
//
// # Error Handling
//
// The failure taxonomy is [ParseError], [ValidationError], [RequestError]
// and [DecodeError]. [FailureCategory] names the category for logs, and
// [MapError] maps any error to a user-friendly message with a support code.
//
// # Concurrency
//
// [IngestLimiter] bounds concurrent parsing and drains on shutdown.
package core
