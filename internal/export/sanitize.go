package export

import (
	"strings"
	"unicode"
)

const (
	maskChar  = '*'
	maskToken = "***"
)

// secretFields are removed from every record, nested objects included.
var secretFields = map[string]bool{
	"password":      true,
	"password_hash": true,
	"refresh_token": true,
	"google_id":     true,
	"api_key":       true,
}

// piiFields are masked unless the job asked for PII.
var piiFields = map[string]bool{
	"email":      true,
	"phone":      true,
	"address":    true,
	"full_name":  true,
	"first_name": true,
	"last_name":  true,
}

// Sanitize removes secrets from record and, unless includePII is set, masks
// PII fields. It walks nested objects and arrays and mutates in place.
func Sanitize(record map[string]any, includePII bool) {
	for k, v := range record {
		if secretFields[k] {
			delete(record, k)
			continue
		}
		if !includePII && piiFields[k] {
			record[k] = maskField(k, v)
			continue
		}
		sanitizeValue(v, includePII)
	}
}

func sanitizeValue(v any, includePII bool) {
	switch t := v.(type) {
	case map[string]any:
		Sanitize(t, includePII)
	case []any:
		for _, e := range t {
			sanitizeValue(e, includePII)
		}
	}
}

func maskField(key string, v any) any {
	if v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return maskToken
	}
	if s == "" {
		return s
	}
	switch key {
	case "email":
		return MaskEmail(s)
	case "phone":
		return MaskPhone(s)
	default:
		return maskToken
	}
}

// MaskEmail keeps the first two characters of the local part and the whole
// domain: info@acme.com becomes in**@acme.com.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return maskToken
	}
	local := []rune(email[:at])
	for i := 2; i < len(local); i++ {
		local[i] = maskChar
	}
	return string(local) + email[at:]
}

// MaskPhone keeps the last four digits and masks every character before
// them: +1-555-0100 becomes *******0100.
func MaskPhone(phone string) string {
	runes := []rune(phone)
	digits := 0
	keepFrom := -1
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsDigit(runes[i]) {
			digits++
			if digits == 4 {
				keepFrom = i
				break
			}
		}
	}
	if keepFrom < 0 {
		return maskToken
	}
	for i := 0; i < keepFrom; i++ {
		runes[i] = maskChar
	}
	return string(runes)
}
