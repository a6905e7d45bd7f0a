// Package domain defines the Q&A model, the events broadcast to live viewers,
// and the repository and capability interfaces the application layer consumes.
//
// No implementation code beyond small pure helpers (status parsing, listing order).
package domain
