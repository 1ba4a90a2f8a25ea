// Package value coerces and compares the loosely typed values flowing
// through pipelines: trigger rows decoded from JSON, constants written in
// definitions and results read back from topic storage.
//
// Numbers compare numerically regardless of their Go kind, strings in the
// accepted layouts compare as times, and everything else falls back to its
// string form.
package value
