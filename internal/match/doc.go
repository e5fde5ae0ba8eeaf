// Package match links imported calendar event titles to patient records.
//
// Matching is heuristic: false negatives (a title that does not literally
// contain the patient name) and false positives (one patient's name being a
// substring of another's title) are accepted risks. The Matcher interface
// returns a confidence score so stricter strategies can be plugged in without
// changing the sync engine.
package match
