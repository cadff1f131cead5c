// Package report collects traversal failures and renders traversal reports.
//
// Every failure is filed under one Category. A Reporter is scoped to one
// traversal call; it is safe for concurrent use and produces a single
// Report when the traversal finishes. Nothing recorded is ever dropped:
// the Report lists every Record with its attempt history, and Report.Err
// folds them into one error value.
//
// Writers render a Report as JSON for tools, Markdown for sharing, or
// plain text for the terminal.
package report
