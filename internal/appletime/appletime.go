// Package appletime converts Apple Messages store timestamps to canonical
// Unix milliseconds and back.
//
// The store's native epoch is 2001-01-01 00:00:00 UTC, a fixed 978,307,200
// second offset from the Unix epoch. The native integer's unit is not
// self-describing: modern stores write nanoseconds, older ones seconds, and
// intermediate exports have been seen in microseconds. The unit is inferred
// by magnitude banding; the 1e9–1e12 band is inherently ambiguous and is
// read as milliseconds by fixed policy in both directions.
package appletime

import (
	"database/sql"
	"time"
)

// EpochOffsetSeconds is the Apple epoch (2001-01-01 UTC) in Unix seconds.
const EpochOffsetSeconds int64 = 978307200

// EpochOffsetMs is EpochOffsetSeconds expressed in milliseconds.
const EpochOffsetMs = EpochOffsetSeconds * 1000

// Scale is the inferred unit of a store-native timestamp.
type Scale int

const (
	ScaleSeconds Scale = iota
	ScaleMilliseconds
	ScaleMicroseconds
	ScaleNanoseconds
)

func (s Scale) String() string {
	switch s {
	case ScaleSeconds:
		return "s"
	case ScaleMilliseconds:
		return "ms"
	case ScaleMicroseconds:
		return "us"
	case ScaleNanoseconds:
		return "ns"
	default:
		return "unknown"
	}
}

// Magnitude thresholds for unit inference. Real stores and small synthetic
// test values occupy disjoint bands, so a per-value heuristic is adequate.
const (
	bandNanoseconds  = 1_000_000_000_000_000 // 1e15
	bandMicroseconds = 1_000_000_000_000     // 1e12
	bandAmbiguous    = 1_000_000_000         // 1e9, read as milliseconds
	bandSynthMicros  = 1_000_000             // 1e6
	bandSynthMillis  = 1_000                 // 1e3
)

// ScaleOf infers the unit of a raw store timestamp by magnitude.
func ScaleOf(raw int64) Scale {
	switch {
	case raw >= bandNanoseconds:
		return ScaleNanoseconds
	case raw >= bandMicroseconds:
		return ScaleMicroseconds
	case raw >= bandAmbiguous:
		// Ambiguous band: milliseconds by policy. Real data this old is
		// seconds-scale (well below 1e9 until 2032) and real nanosecond
		// data is well above 1e15, so the band is effectively synthetic.
		return ScaleMilliseconds
	case raw >= bandSynthMicros:
		return ScaleMicroseconds
	case raw >= bandSynthMillis:
		return ScaleMilliseconds
	default:
		return ScaleSeconds
	}
}

// ToUnixMs converts a raw store timestamp of inferred unit to Unix
// milliseconds.
func ToUnixMs(raw int64) int64 {
	var ms int64
	switch ScaleOf(raw) {
	case ScaleNanoseconds:
		ms = raw / 1_000_000
	case ScaleMicroseconds:
		ms = raw / 1_000
	case ScaleMilliseconds:
		ms = raw
	default:
		ms = raw * 1_000
	}
	return ms + EpochOffsetMs
}

// NullToUnixMs converts a nullable raw timestamp. NULL in yields nil out.
func NullToUnixMs(raw sql.NullInt64) *int64 {
	if !raw.Valid {
		return nil
	}
	ms := ToUnixMs(raw.Int64)
	return &ms
}

// DetectScale classifies the unit a store writes, given the maximum stored
// timestamp. Sampling the maximum once per store fixes a single scale for
// all bound conversions in a session; the banding is identical to ScaleOf
// so query bounds and row timestamps can never disagree.
func DetectScale(maxRaw int64) Scale {
	return ScaleOf(maxRaw)
}

// ToAppleUnits converts Unix milliseconds into the store's native unit at
// the given scale. This is the inverse of ToUnixMs for values representable
// at millisecond precision.
func ToAppleUnits(unixMs int64, scale Scale) int64 {
	delta := unixMs - EpochOffsetMs
	switch scale {
	case ScaleNanoseconds:
		return delta * 1_000_000
	case ScaleMicroseconds:
		return delta * 1_000
	case ScaleMilliseconds:
		return delta
	default:
		return delta / 1_000
	}
}

// ISOUTC renders Unix milliseconds as an RFC 3339 timestamp in UTC.
func ISOUTC(unixMs int64) string {
	return time.UnixMilli(unixMs).UTC().Format(time.RFC3339)
}

// ISOLocal renders Unix milliseconds as an RFC 3339 timestamp in the
// process-local zone.
func ISOLocal(unixMs int64) string {
	return time.UnixMilli(unixMs).Local().Format(time.RFC3339)
}
