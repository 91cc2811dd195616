package pipeline

import (
	"encoding/base64"
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// normalizeEvent prepares the event for the later stages: maps are filled in
// for absent sections, the body is decoded and cookies are parsed.
func normalizeEvent(s *State) {
	event := s.Event

	event["headers"] = stringMap(event["headers"])
	event["queryStringParameters"] = stringMap(event["queryStringParameters"])
	event["pathParameters"] = stringMap(event["pathParameters"])

	headers := event["headers"].(map[string]any)
	s.Cookies = parseCookies(headerValue(headers, "Cookie"))

	s.RawBody = event["body"]
	s.Body = decodeBody(s.RawBody, isTrue(event["isBase64Encoded"]), headerValue(headers, "Content-Type"))
	event["body"] = s.Body
}

func stringMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		if m != nil {
			return m
		}
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out
	}
	return map[string]any{}
}

// headerValue finds a header regardless of case.
func headerValue(headers map[string]any, name string) string {
	if v, ok := headers[name].(string); ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func isTrue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	}
	return false
}

// parseCookies never fails; a malformed header yields no cookies.
func parseCookies(header string) map[string]string {
	cookies := map[string]string{}
	if strings.TrimSpace(header) == "" {
		return cookies
	}
	parsed, err := http.ParseCookie(header)
	if err != nil {
		return cookies
	}
	for _, c := range parsed {
		cookies[c.Name] = c.Value
	}
	return cookies
}

// decodeBody turns the raw body into a JSON value, a form map, or leaves it
// as a string when it cannot be decoded. Non-string bodies pass through.
func decodeBody(raw any, base64Encoded bool, contentType string) any {
	body, ok := raw.(string)
	if !ok {
		return raw
	}

	if base64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return body
		}
		body = string(decoded)
	}
	if body == "" {
		return nil
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(body)
		if err != nil {
			return body
		}
		return formMap(values)
	case mediaType == "" || mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var decoded any
		if err := json.Unmarshal([]byte(body), &decoded); err != nil {
			return body
		}
		return decoded
	}
	return body
}

func formMap(values url.Values) map[string]any {
	form := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) == 1 {
			form[k] = v[0]
			continue
		}
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = item
		}
		form[k] = items
	}
	return form
}
