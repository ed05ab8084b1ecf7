// Package extraction derives severity, frequency, user segment and an
// interpretation from a signal's verbatim text with a generative model.
//
// Extraction is best-effort enrichment. Extract never returns an error: on
// short input, model failure or unparseable output it returns a Fields
// value with every field nil.
package extraction
