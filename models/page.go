package models

import "time"

// Fetch methods recorded on PageContent.
const (
	FetchMethodHTTP    = "http"
	FetchMethodBrowser = "browser"
)

// PageContent is the raw snapshot of a rendered page. It is produced by the
// fetcher, consumed once by the extraction engine, and then discarded.
type PageContent struct {
	// URL is the requested URL.
	URL string

	// FinalURL is the URL after following all redirects.
	FinalURL string

	// HTML is the rendered document snapshot.
	HTML string

	// Title is the document title at snapshot time.
	Title string

	// StatusCode is the HTTP status of the navigation response (0 if unknown).
	StatusCode int

	// Elapsed is the time spent loading the page.
	Elapsed time.Duration

	// FetchMethod records which path produced the snapshot ("http" or "browser").
	FetchMethod string
}
