// Package app provides the application service layer.
//
// Service orchestrates the Q&A use cases: it checks the caller, persists the
// change, then publishes the matching event. Enricher settles question
// sentiment in the background after creation, and Sweeper settles questions
// whose enrichment never finished.
package app
