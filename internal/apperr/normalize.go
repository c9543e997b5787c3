package apperr

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

type extractRule struct {
	name    string
	extract func(body []byte) (string, bool)
}

// messageRules are tried in order; the first rule producing a non-empty
// message wins.
var messageRules = []extractRule{
	{name: "error", extract: stringAt("error")},
	{name: "message", extract: stringAt("message")},
	{name: "errors[0]", extract: firstArrayItem("errors", "")},
	{name: "errors[0].msg", extract: firstArrayItem("errors", "msg")},
	{name: "errors.<first>", extract: firstObjectValue("errors")},
	{name: "body", extract: bodyText},
}

// Normalize builds a transport-level error for a failed request. status is 0
// when no response was received.
func Normalize(status int, body []byte, cause error) *Error {
	msg, ok := extractMessage(body)
	if !ok {
		msg = fallbackMessage(status, cause)
	}
	return &Error{
		Kind:    kindForStatus(status),
		Status:  status,
		Message: msg,
		Err:     cause,
	}
}

func extractMessage(body []byte) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	for _, rule := range messageRules {
		if msg, ok := rule.extract(body); ok {
			return msg, true
		}
	}
	return "", false
}

func fallbackMessage(status int, cause error) string {
	detail := "Network error"
	if cause != nil {
		detail = cause.Error()
	} else if status > 0 {
		detail = http.StatusText(status)
	}
	if status > 0 {
		return fmt.Sprintf("Request failed (HTTP %d): %s", status, detail)
	}
	return "Request failed: " + detail
}

func nonEmptyString(r gjson.Result) (string, bool) {
	if r.Type != gjson.String {
		return "", false
	}
	s := strings.TrimSpace(r.String())
	return s, s != ""
}

func stringAt(path string) func([]byte) (string, bool) {
	return func(body []byte) (string, bool) {
		if !gjson.ValidBytes(body) {
			return "", false
		}
		return nonEmptyString(gjson.GetBytes(body, path))
	}
}

func firstArrayItem(path, field string) func([]byte) (string, bool) {
	return func(body []byte) (string, bool) {
		if !gjson.ValidBytes(body) {
			return "", false
		}
		arr := gjson.GetBytes(body, path)
		if !arr.IsArray() {
			return "", false
		}
		items := arr.Array()
		if len(items) == 0 {
			return "", false
		}
		if field == "" {
			return nonEmptyString(items[0])
		}
		return nonEmptyString(items[0].Get(field))
	}
}

func firstObjectValue(path string) func([]byte) (string, bool) {
	return func(body []byte) (string, bool) {
		if !gjson.ValidBytes(body) {
			return "", false
		}
		obj := gjson.GetBytes(body, path)
		if !obj.IsObject() {
			return "", false
		}
		var (
			msg   string
			found bool
		)
		obj.ForEach(func(_, value gjson.Result) bool {
			if s, ok := nonEmptyString(value); ok {
				msg, found = s, true
			} else if s, ok := nonEmptyString(value.Get("msg")); ok {
				msg, found = s, true
			} else if s, ok := nonEmptyString(value.Get("message")); ok {
				msg, found = s, true
			}
			// только первое значение
			return false
		})
		return msg, found
	}
}

func bodyText(body []byte) (string, bool) {
	if gjson.ValidBytes(body) {
		return nonEmptyString(gjson.ParseBytes(body))
	}
	s := strings.TrimSpace(string(body))
	return s, s != ""
}
