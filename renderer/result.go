package renderer

// RenderedPage is the DOM snapshot produced by a single Render call.
type RenderedPage struct {
	// HTML is the serialized DOM after scripts have run.
	HTML string

	// Title is the document title.
	Title string

	// FinalURL is the URL after following all redirects.
	FinalURL string

	// StatusCode is the HTTP status of the main document, or 0 when the
	// browser could not report one.
	StatusCode int
}
