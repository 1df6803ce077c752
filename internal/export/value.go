package export

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind tags a Value.
type Kind int

const (
	KindEmpty Kind = iota
	KindText
	KindNumber
	KindBool
	KindTime
	KindReference
	KindObject
	KindList
	KindLineItem
)

// Value is a record field classified once for display. Only the fields
// relevant to Kind are set.
type Value struct {
	Kind   Kind
	Text   string
	Bool   bool
	Time   time.Time
	Object map[string]any
	Items  []Value
	Line   *LineItem
}

// LineItem is one invoice line. Fallback is the resolved inventory display
// name used when Description is empty.
type LineItem struct {
	Description string
	Quantity    string
	Price       string
	Total       string
	Fallback    string
}

func Text(s string) Value { return Value{Kind: KindText, Text: s} }

func Number(n json.Number) Value { return Value{Kind: KindNumber, Text: n.String()} }

func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

func Time(t time.Time) Value { return Value{Kind: KindTime, Time: t} }

// Ref wraps a resolved referenced row.
func Ref(obj map[string]any) Value { return Value{Kind: KindReference, Object: obj} }

func Object(obj map[string]any) Value { return Value{Kind: KindObject, Object: obj} }

func List(items []Value) Value { return Value{Kind: KindList, Items: items} }

func Line(li LineItem) Value { return Value{Kind: KindLineItem, Line: &li} }

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// isTimeKey reports whether a field name conventionally holds a timestamp.
func isTimeKey(key string) bool {
	return strings.HasSuffix(key, "_at") || strings.HasSuffix(key, "date")
}

// Classify turns a decoded JSON value into a Value without consulting
// references. Strings and epoch-millisecond numbers under time-like keys
// become times.
func Classify(key string, v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{}
	case string:
		if t == "" {
			return Value{}
		}
		if isTimeKey(key) {
			if ts, ok := parseTime(t); ok {
				return Time(ts)
			}
		}
		return Text(t)
	case json.Number:
		if isTimeKey(key) {
			if ms, err := t.Int64(); err == nil {
				return Time(time.UnixMilli(ms))
			}
		}
		return Number(t)
	case float64:
		return Number(json.Number(formatFloat(t)))
	case bool:
		return Bool(t)
	case time.Time:
		return Time(t)
	case map[string]any:
		return Object(t)
	case []any:
		items := make([]Value, 0, len(t))
		for _, e := range t {
			items = append(items, Classify(key, e))
		}
		return List(items)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return Value{}
		}
		return Text(string(b))
	}
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// NewLineItem reads the conventional invoice line fields from obj.
func NewLineItem(obj map[string]any, fallback string) LineItem {
	li := LineItem{
		Description: scalarString(obj["description"]),
		Quantity:    firstScalar(obj, "quantity", "qty"),
		Price:       firstScalar(obj, "unit_price", "price"),
		Total:       scalarString(obj["total"]),
		Fallback:    fallback,
	}
	if li.Total == "" {
		li.Total = multiply(li.Quantity, li.Price)
	}
	return li
}

func firstScalar(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := scalarString(obj[k]); s != "" {
			return s
		}
	}
	return ""
}
