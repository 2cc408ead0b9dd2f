// Package discover extracts outbound links from fetched pages. Discoverers
// never fail: content they cannot read yields no links.
package discover
