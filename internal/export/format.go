package export

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DisplayTimeLayout is used for every time rendered into CSV.
const DisplayTimeLayout = "2006-01-02 15:04:05"

const listSeparator = "; "

// identifierFields are tried, in order, when an object has no name-like field.
var identifierFields = []string{"invoice_number", "employee_code", "reference", "code"}

// Formatter renders Values as single-line strings.
type Formatter struct {
	loc *time.Location
}

func NewFormatter(loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{loc: loc}
}

func (f *Formatter) Format(v Value) string {
	switch v.Kind {
	case KindEmpty:
		return ""
	case KindText, KindNumber:
		return v.Text
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindTime:
		return v.Time.In(f.loc).Format(DisplayTimeLayout)
	case KindReference, KindObject:
		return DisplayName(v.Object)
	case KindList:
		parts := make([]string, 0, len(v.Items))
		for _, item := range v.Items {
			if s := f.Format(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, listSeparator)
	case KindLineItem:
		return formatLineItem(v.Line)
	default:
		return v.Text
	}
}

func formatLineItem(li *LineItem) string {
	if li == nil {
		return ""
	}
	desc := li.Description
	if desc == "" {
		desc = li.Fallback
	}
	if desc == "" {
		desc = "item"
	}
	return fmt.Sprintf("%s (%s x %s = %s)", desc, orZero(li.Quantity), orZero(li.Price), orZero(li.Total))
}

// DisplayName picks the most human-readable label for a row. Masked
// personal fields are skipped so a masked reference still falls through to
// a business identifier such as employee_code.
func DisplayName(obj map[string]any) string {
	if obj == nil {
		return ""
	}
	if s := personal(obj, "full_name"); s != "" {
		return s
	}
	first, last := personal(obj, "first_name"), personal(obj, "last_name")
	if name := strings.TrimSpace(first + " " + last); name != "" {
		return name
	}
	if s := scalarString(obj["title"]); s != "" {
		return s
	}
	name := scalarString(obj["name"])
	if sku := scalarString(obj["sku"]); sku != "" && name != "" {
		return fmt.Sprintf("%s (%s)", name, sku)
	}
	if name != "" {
		return name
	}
	if s := personal(obj, "email"); s != "" {
		return s
	}
	for _, k := range identifierFields {
		if s := scalarString(obj[k]); s != "" {
			return s
		}
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return ""
	}
	return string(b)
}

// personal returns a PII field's text, or "" once it has been masked.
func personal(obj map[string]any, key string) string {
	s := scalarString(obj[key])
	if strings.Contains(s, "*") {
		return ""
	}
	return s
}

// scalarString renders strings, numbers and bools; anything else is empty.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return formatFloat(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func multiply(a, b string) string {
	x, errA := strconv.ParseFloat(a, 64)
	y, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return ""
	}
	return formatFloat(x * y)
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
