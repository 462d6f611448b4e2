package cql

// Kind is a CQL type option id as used by the native protocol.
type Kind uint16

const (
	KindCustom    Kind = 0x00
	KindAscii     Kind = 0x01
	KindBigInt    Kind = 0x02
	KindBlob      Kind = 0x03
	KindBoolean   Kind = 0x04
	KindCounter   Kind = 0x05
	KindDecimal   Kind = 0x06
	KindDouble    Kind = 0x07
	KindFloat     Kind = 0x08
	KindInt       Kind = 0x09
	KindTimestamp Kind = 0x0B
	KindUuid      Kind = 0x0C
	KindText      Kind = 0x0D
	KindVarint    Kind = 0x0E
	KindTimeuuid  Kind = 0x0F
	KindInet      Kind = 0x10
	KindDate      Kind = 0x11
	KindTime      Kind = 0x12
	KindSmallInt  Kind = 0x13
	KindTinyInt   Kind = 0x14
	KindDuration  Kind = 0x15
	KindList      Kind = 0x20
	KindMap       Kind = 0x21
	KindSet       Kind = 0x22
	KindUDT       Kind = 0x30
	KindTuple     Kind = 0x31
)

var kindNames = map[Kind]string{
	KindCustom:    "custom",
	KindAscii:     "ascii",
	KindBigInt:    "bigint",
	KindBlob:      "blob",
	KindBoolean:   "boolean",
	KindCounter:   "counter",
	KindDecimal:   "decimal",
	KindDouble:    "double",
	KindFloat:     "float",
	KindInt:       "int",
	KindTimestamp: "timestamp",
	KindUuid:      "uuid",
	KindText:      "text",
	KindVarint:    "varint",
	KindTimeuuid:  "timeuuid",
	KindInet:      "inet",
	KindDate:      "date",
	KindTime:      "time",
	KindSmallInt:  "smallint",
	KindTinyInt:   "tinyint",
	KindDuration:  "duration",
	KindList:      "list",
	KindMap:       "map",
	KindSet:       "set",
	KindUDT:       "udt",
	KindTuple:     "tuple",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsPrimitive reports whether the kind has no component types.
func (k Kind) IsPrimitive() bool {
	return k < KindList && k != KindCustom && k.known()
}

func (k Kind) IsCollection() bool {
	return k == KindList || k == KindSet || k == KindMap
}

// FixedSize returns the exact payload width of fixed-width kinds.
func (k Kind) FixedSize() (int, bool) {
	switch k {
	case KindBoolean, KindTinyInt:
		return 1, true
	case KindSmallInt:
		return 2, true
	case KindInt, KindFloat, KindDate:
		return 4, true
	case KindBigInt, KindCounter, KindDouble, KindTimestamp, KindTime:
		return 8, true
	case KindUuid, KindTimeuuid:
		return 16, true
	}
	return 0, false
}

func (k Kind) known() bool {
	_, ok := kindNames[k]
	return ok
}
