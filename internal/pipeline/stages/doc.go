// Package stages provides the concrete pipeline stages of a crawl: parsing a
// fetched page into a record, then optionally converting it to markdown,
// storing the raw body, saving the record, publishing a notification and
// appending it to a JSON Lines file.
package stages
