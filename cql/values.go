package cql

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Counter is a CQL counter value. It is always carried in a buffer even
// though it has the width of a bigint.
type Counter int64

// Date is a number of days since the Unix epoch. On the wire it is an
// unsigned 32-bit number centred on 2^31.
type Date int32

const dateEpochOffset = 1 << 31

// DateOf returns the date containing t (in UTC).
func DateOf(t time.Time) Date {
	days := t.Unix() / 86400
	if t.Unix() < 0 && t.Unix()%86400 != 0 {
		days--
	}
	return Date(days)
}

// Wire returns the on-wire representation of the date.
func (d Date) Wire() uint32 { return uint32(int64(d) + dateEpochOffset) }

// DateFromWire is the inverse of Date.Wire.
func DateFromWire(v uint32) Date { return Date(int64(v) - dateEpochOffset) }

func (d Date) Time() time.Time { return time.Unix(int64(d)*86400, 0).UTC() }

func (d Date) String() string { return d.Time().Format(time.DateOnly) }

// ParseDate parses an ISO date ("2006-01-02").
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return 0, err
	}
	return DateOf(t), nil
}

// Time is a number of nanoseconds since midnight.
type Time int64

// MaxTime is the last nanosecond of a day.
const MaxTime Time = 86399999999999

func (t Time) Valid() bool { return t >= 0 && t <= MaxTime }

func (t Time) String() string {
	ns := int64(t)
	return fmt.Sprintf("%02d:%02d:%02d.%09d",
		ns/int64(time.Hour), ns/int64(time.Minute)%60, ns/int64(time.Second)%60, ns%int64(time.Second))
}

// ParseTime parses "15:04:05" with an optional fraction of up to nine digits.
func ParseTime(s string) (Time, error) {
	main, frac, _ := strings.Cut(s, ".")
	parts := strings.Split(main, ":")
	if len(parts) != 3 || len(frac) > 9 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	limits := [3]int64{24, 60, 60}
	var total int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 || n >= limits[i] {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		total = total*60 + n
	}
	total *= int64(time.Second)
	if frac != "" {
		n, err := strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		total += n
	}
	return Time(total), nil
}

// Duration is a CQL duration. The three components are independent; CQL
// requires them to share a sign.
type Duration struct {
	Months      int32
	Days        int32
	Nanoseconds int64
}

var durationUnits = []struct {
	name string
	ns   int64
}{
	{"h", int64(time.Hour)},
	{"m", int64(time.Minute)},
	{"s", int64(time.Second)},
	{"ms", int64(time.Millisecond)},
	{"us", int64(time.Microsecond)},
	{"ns", 1},
}

// String renders the duration in CQL literal syntax, e.g. "1y2mo3d4h".
func (d Duration) String() string {
	if d == (Duration{}) {
		return "0s"
	}
	var b strings.Builder
	months, days, ns := int64(d.Months), int64(d.Days), d.Nanoseconds
	if months < 0 || days < 0 || ns < 0 {
		b.WriteByte('-')
		months, days, ns = abs(months), abs(days), abs(ns)
	}
	unit := func(n int64, name string) {
		if n != 0 {
			b.WriteString(strconv.FormatInt(n, 10))
			b.WriteString(name)
		}
	}
	unit(months/12, "y")
	unit(months%12, "mo")
	unit(days, "d")
	for _, u := range durationUnits {
		unit(ns/u.ns, u.name)
		ns %= u.ns
	}
	return b.String()
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// ParseDuration parses the CQL duration literal syntax (units y, mo, w, d,
// h, m, s, ms, us, µs, ns) with an optional leading minus.
func ParseDuration(s string) (Duration, error) {
	in := strings.TrimSpace(s)
	neg := strings.HasPrefix(in, "-")
	in = strings.TrimPrefix(in, "-")
	if in == "" {
		return Duration{}, fmt.Errorf("invalid duration %q", s)
	}
	var months, days, ns int64
	for in != "" {
		i := 0
		for i < len(in) && in[i] >= '0' && in[i] <= '9' {
			i++
		}
		if i == 0 {
			return Duration{}, fmt.Errorf("invalid duration %q", s)
		}
		n, err := strconv.ParseInt(in[:i], 10, 64)
		if err != nil {
			return Duration{}, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		in = in[i:]
		j := 0
		for j < len(in) && (in[j] < '0' || in[j] > '9') {
			j++
		}
		switch strings.ToLower(in[:j]) {
		case "y":
			months += n * 12
		case "mo":
			months += n
		case "w":
			days += n * 7
		case "d":
			days += n
		case "h":
			ns += n * int64(time.Hour)
		case "m":
			ns += n * int64(time.Minute)
		case "s":
			ns += n * int64(time.Second)
		case "ms":
			ns += n * int64(time.Millisecond)
		case "us", "µs":
			ns += n * int64(time.Microsecond)
		case "ns":
			ns += n
		default:
			return Duration{}, fmt.Errorf("invalid duration unit %q in %q", in[:j], s)
		}
		in = in[j:]
	}
	if months > 1<<31-1 || days > 1<<31-1 {
		return Duration{}, fmt.Errorf("duration %q out of range", s)
	}
	if neg {
		months, days, ns = -months, -days, -ns
	}
	return Duration{Months: int32(months), Days: int32(days), Nanoseconds: ns}, nil
}

// Set is a CQL set. Any map whose value type is struct{} is treated as a
// set; this named form exists for readability.
type Set[T comparable] map[T]struct{}

func NewSet[T comparable](items ...T) Set[T] {
	s := make(Set[T], len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

// TupleMarker, embedded in a struct, makes the struct's remaining exported
// fields a positional tuple instead of a user-defined type.
type TupleMarker struct{}

// TypeNamer overrides the user-defined type name derived for a struct. The
// name may be qualified with a keyspace ("ks.name").
type TypeNamer interface {
	CQLTypeName() string
}
