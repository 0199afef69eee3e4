// Package classify maps raw runtime errors to structured classifications.
//
// Classification is rule-driven: an ordered table of predicate rules is
// evaluated against the error's code, message, and invocation context, and
// the first matching rule wins. Unmatched errors resolve to an explicit
// "unknown" classification with low confidence rather than an error, so
// downstream plan building always has something to work with.
//
// An optional external Analyzer collaborator can refine the local result;
// its analysis is merged preferring the higher-confidence source, and any
// analyzer failure degrades silently to the local rule match.
package classify
