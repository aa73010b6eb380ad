package ingest

import "strings"

// RedactedPlaceholder — значение, которым заменяются чувствительные заголовки.
const RedactedPlaceholder = "[REDACTED]"

// sensitiveHeaders — фиксированный denylist заголовков (в нижнем регистре),
// значения которых не должны попадать в БД.
var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"proxy-authorization": {},
	"x-api-key":           {},
	"cookie":              {},
	"set-cookie":          {},
}

// RedactHeaders возвращает копию headers с заменёнными значениями
// чувствительных заголовков. Сравнение имён case-insensitive; ключи
// сохраняются в исходном написании, заменяется только значение.
func RedactHeaders(headers map[string]string) map[string]string {
	redacted := make(map[string]string, len(headers))
	for key, value := range headers {
		if _, sensitive := sensitiveHeaders[strings.ToLower(key)]; sensitive {
			redacted[key] = RedactedPlaceholder
		} else {
			redacted[key] = value
		}
	}
	return redacted
}
