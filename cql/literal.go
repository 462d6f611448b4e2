package cql

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"net/netip"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
)

// FormatLiteral renders v, a value of type t in its default Go
// representation, as a CQL literal: 'text', 0xff, [1, 2], {'k': 1},
// (1, 'a'), {field: 1}. Map entries are ordered by their rendered keys.
// Values that do not match t are rendered with %v.
func FormatLiteral(t *Type, v any) string {
	var b strings.Builder
	writeLiteral(&b, t, v)
	return b.String()
}

func writeLiteral(b *strings.Builder, t *Type, v any) {
	if v == nil {
		b.WriteString("null")
		return
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			b.WriteString("null")
			return
		}
		if t.Kind != KindVarint && t.Kind != KindDecimal {
			writeLiteral(b, t, rv.Elem().Interface())
			return
		}
	}

	switch t.Kind {
	case KindList:
		writeSeq(b, "[", "]", v, func(int) *Type { return t.Elem })
	case KindSet:
		if reflect.ValueOf(v).Kind() == reflect.Map {
			writeSetMap(b, t, v)
			return
		}
		writeSeq(b, "{", "}", v, func(int) *Type { return t.Elem })
	case KindTuple:
		writeSeq(b, "(", ")", v, func(i int) *Type {
			if i < len(t.Fields) {
				return t.Fields[i].Type
			}
			return nil
		})
	case KindMap:
		writeMap(b, t, v)
	case KindUDT:
		writeUDT(b, t, v)
	default:
		writePrimitive(b, t.Kind, v)
	}
}

func writeSeq(b *strings.Builder, left, right string, v any, elem func(int) *Type) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		fmt.Fprintf(b, "%v", v)
		return
	}
	b.WriteString(left)
	for i := range rv.Len() {
		if i > 0 {
			b.WriteString(", ")
		}
		et := elem(i)
		if et == nil {
			fmt.Fprintf(b, "%v", rv.Index(i).Interface())
			continue
		}
		writeLiteral(b, et, rv.Index(i).Interface())
	}
	b.WriteString(right)
}

func writeSetMap(b *strings.Builder, t *Type, v any) {
	rv := reflect.ValueOf(v)
	items := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		items = append(items, FormatLiteral(t.Elem, k.Interface()))
	}
	slices.Sort(items)
	b.WriteByte('{')
	b.WriteString(strings.Join(items, ", "))
	b.WriteByte('}')
}

func writeMap(b *strings.Builder, t *Type, v any) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		fmt.Fprintf(b, "%v", v)
		return
	}
	entries := make([][2]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		entries = append(entries, [2]string{
			FormatLiteral(t.Key, iter.Key().Interface()),
			FormatLiteral(t.Value, iter.Value().Interface()),
		})
	}
	slices.SortFunc(entries, func(x, y [2]string) int { return strings.Compare(x[0], y[0]) })

	b.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e[0])
		b.WriteString(": ")
		b.WriteString(e[1])
	}
	b.WriteByte('}')
}

func writeUDT(b *strings.Builder, t *Type, v any) {
	rv := reflect.ValueOf(v)
	var field func(name string) any
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			fmt.Fprintf(b, "%v", v)
			return
		}
		field = func(name string) any {
			fv := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
			if !fv.IsValid() {
				return nil
			}
			return fv.Interface()
		}
	case reflect.Struct:
		idx, names := StructFields(rv.Type())
		field = func(name string) any {
			for j, n := range names {
				if n == name {
					return rv.Field(idx[j]).Interface()
				}
			}
			return nil
		}
	default:
		fmt.Fprintf(b, "%v", v)
		return
	}

	b.WriteByte('{')
	for i, f := range t.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		writeLiteral(b, f.Type, field(f.Name))
	}
	b.WriteByte('}')
}

func quoteText(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func writePrimitive(b *strings.Builder, k Kind, v any) {
	switch x := v.(type) {
	case string:
		b.WriteString(quoteText(x))
	case []byte:
		b.WriteString("0x")
		b.WriteString(hex.EncodeToString(x))
	case bool:
		b.WriteString(strconv.FormatBool(x))
	case float32:
		b.WriteString(formatFloat(float64(x), 32))
	case float64:
		b.WriteString(formatFloat(x, 64))
	case uuid.UUID:
		b.WriteString(x.String())
	case *big.Int:
		b.WriteString(x.String())
	case *apd.Decimal:
		b.WriteString(x.Text('f'))
	case netip.Addr:
		b.WriteString(quoteText(x.String()))
	case time.Time:
		b.WriteString(quoteText(x.UTC().Format("2006-01-02T15:04:05.000Z")))
	case Date:
		b.WriteString(quoteText(x.String()))
	case Time:
		b.WriteString(quoteText(x.String()))
	case Duration:
		b.WriteString(x.String())
	default:
		fmt.Fprintf(b, "%v", v)
	}
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}
