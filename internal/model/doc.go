// Package model defines the value objects that flow through a crawl.
//
// A Request describes one HTTP fetch and is immutable once built: every
// accessor returns a copy of mutable fields, and derived requests (children
// discovered from a page, retries) are new values. A Response is produced
// by the client for exactly one Request and lazily decodes its body into
// text and an HTML document the first time either is needed.
//
// The dedup key of a Request is its Identity, the normalized form of the
// effective URL (see NormalizeURL). Headers, cookies and bodies never take
// part in identity.
package model
