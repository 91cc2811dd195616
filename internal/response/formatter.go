// Package response renders handler results and errors into API Gateway
// proxy responses.
package response

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

const (
	headerContentType = "Content-Type"
	headerSetCookie   = "Set-Cookie"
	contentTypeJSON   = "application/json"
)

// Result lets a handler control the status, headers and cookies of its
// response. Header values are strings or string slices; slices are sent as
// multi-value headers.
type Result struct {
	Body              any
	StatusCode        int
	Headers           map[string]any
	MultiValueHeaders map[string][]string
	SetCookie         []*http.Cookie
}

// DefaultStatus returns the status used when a handler does not set one.
func DefaultStatus(method string) int {
	switch method {
	case http.MethodDelete:
		return http.StatusNoContent
	case http.MethodPost:
		return http.StatusCreated
	default:
		return http.StatusOK
	}
}

// ProcessResult renders a handler value. additional headers sit beneath any
// headers the value declares and never override them.
func ProcessResult(value any, method string, additional map[string]any) (events.APIGatewayProxyResponse, error) {
	switch v := value.(type) {
	case *Result:
		if v == nil {
			return render(nil, DefaultStatus(method), nil, nil, nil, additional)
		}
		return processStructured(*v, method, additional)
	case Result:
		return processStructured(v, method, additional)
	case events.APIGatewayProxyResponse:
		single, multi := partition(toAnyHeaders(v.Headers), v.MultiValueHeaders, additional)
		v.Headers, v.MultiValueHeaders = single, multi
		return v, nil
	}
	return render(value, DefaultStatus(method), nil, nil, nil, additional)
}

func processStructured(r Result, method string, additional map[string]any) (events.APIGatewayProxyResponse, error) {
	status := r.StatusCode
	if status == 0 {
		status = DefaultStatus(method)
	}
	return render(r.Body, status, r.Headers, r.MultiValueHeaders, r.SetCookie, additional)
}

func render(
	body any,
	status int,
	headers map[string]any,
	multiValue map[string][]string,
	cookies []*http.Cookie,
	additional map[string]any,
) (events.APIGatewayProxyResponse, error) {
	resp := events.APIGatewayProxyResponse{StatusCode: status}

	switch b := body.(type) {
	case nil:
	case string:
		resp.Body = b
	case []byte:
		resp.Body = base64.StdEncoding.EncodeToString(b)
		resp.IsBase64Encoded = true
	case json.RawMessage:
		resp.Body = string(b)
		additional = withDefault(additional, headerContentType, contentTypeJSON)
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return events.APIGatewayProxyResponse{}, fmt.Errorf("failed to serialize response body: %w", err)
		}
		resp.Body = string(encoded)
		additional = withDefault(additional, headerContentType, contentTypeJSON)
	}

	resp.Headers, resp.MultiValueHeaders = partition(headers, multiValue, additional)
	appendCookies(&resp, cookies)
	return resp, nil
}

// withDefault returns headers with key set to value unless a header of the
// same name, in any case, is already present.
func withDefault(headers map[string]any, key, value string) map[string]any {
	for k := range headers {
		if strings.EqualFold(k, key) {
			return headers
		}
	}
	out := make(map[string]any, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	out[key] = value
	return out
}

// partition splits headers into the single and multi-value maps of the
// proxy response. Header names are matched case-insensitively and keep the
// spelling seen first. List values always go to the multi-value map. A
// single value whose name already has multi-value entries is appended there.
// Declared headers win over additional ones; an additional list, or an
// additional value for a name that only has multi-value entries, is appended
// instead.
func partition(declared map[string]any, declaredMulti map[string][]string, additional map[string]any) (map[string]string, map[string][]string) {
	single := make(map[string]string)
	multi := make(map[string][]string)
	names := make(map[string]string)
	name := func(k string) string {
		lower := strings.ToLower(k)
		if seen, ok := names[lower]; ok {
			return seen
		}
		names[lower] = k
		return k
	}

	multiKeys := make([]string, 0, len(declaredMulti))
	for k := range declaredMulti {
		multiKeys = append(multiKeys, k)
	}
	sort.Strings(multiKeys)
	for _, k := range multiKeys {
		key := name(k)
		multi[key] = append(multi[key], declaredMulti[k]...)
	}

	for _, k := range sortedKeys(declared) {
		key := name(k)
		values, isList := headerValues(declared[k])
		if len(values) == 0 && !isList {
			continue
		}
		if existing, ok := single[key]; ok {
			multi[key] = append(multi[key], existing)
			delete(single, key)
		}
		if _, ok := multi[key]; ok || isList {
			multi[key] = append(multi[key], values...)
			continue
		}
		single[key] = values[0]
	}

	for _, k := range sortedKeys(additional) {
		key := name(k)
		if _, ok := single[key]; ok {
			continue
		}
		values, isList := headerValues(additional[k])
		if len(values) == 0 {
			continue
		}
		if _, ok := multi[key]; ok || isList {
			multi[key] = append(multi[key], values...)
			continue
		}
		single[key] = values[0]
	}

	if len(multi) == 0 {
		multi = nil
	}
	return single, multi
}

// headerValues flattens a header value. isList reports whether it was a
// slice.
func headerValues(v any) (values []string, isList bool) {
	switch h := v.(type) {
	case nil:
		return nil, false
	case string:
		return []string{h}, false
	case []string:
		return append([]string(nil), h...), true
	case []any:
		values = make([]string, 0, len(h))
		for _, item := range h {
			values = append(values, fmt.Sprint(item))
		}
		return values, true
	}
	return []string{fmt.Sprint(v)}, false
}

func appendCookies(resp *events.APIGatewayProxyResponse, cookies []*http.Cookie) {
	serialized := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		if s := c.String(); s != "" {
			serialized = append(serialized, s)
		}
	}

	if len(serialized) == 0 {
		return
	}

	key := headerSetCookie
	for k := range resp.MultiValueHeaders {
		if strings.EqualFold(k, headerSetCookie) {
			key = k
		}
	}
	existingKey, existing, hasSingle := "", "", false
	for k, v := range resp.Headers {
		if strings.EqualFold(k, headerSetCookie) {
			existingKey, existing, hasSingle = k, v, true
		}
	}

	if len(serialized) == 1 && len(resp.MultiValueHeaders) == 0 && !hasSingle {
		resp.Headers[headerSetCookie] = serialized[0]
		return
	}
	if resp.MultiValueHeaders == nil {
		resp.MultiValueHeaders = make(map[string][]string)
	}
	if hasSingle {
		if _, ok := resp.MultiValueHeaders[key]; !ok {
			key = existingKey
		}
		resp.MultiValueHeaders[key] = append(resp.MultiValueHeaders[key], existing)
		delete(resp.Headers, existingKey)
	}
	resp.MultiValueHeaders[key] = append(resp.MultiValueHeaders[key], serialized...)
}

// ProcessError renders err as a {"type", "message"} envelope. Status, type,
// headers and a replacement body are read from the error chain when present.
func ProcessError(err error, additional map[string]any) events.APIGatewayProxyResponse {
	if err == nil {
		err = errors.New("unknown error")
	}

	status := http.StatusInternalServerError
	var withStatusCode interface{ StatusCode() int }
	var withStatus interface{ Status() int }
	switch {
	case errors.As(err, &withStatusCode):
		status = withStatusCode.StatusCode()
	case errors.As(err, &withStatus):
		status = withStatus.Status()
	}
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}

	errorType := "Error"
	var typed interface{ ErrorType() string }
	if errors.As(err, &typed) && typed.ErrorType() != "" {
		errorType = typed.ErrorType()
	}

	var headers map[string]any
	var withHeaders interface{ ResponseHeaders() map[string]any }
	if errors.As(err, &withHeaders) {
		headers = withHeaders.ResponseHeaders()
	}

	var body any = Envelope{Type: errorType, Message: err.Error()}
	var withBody interface{ ResponseBody() any }
	if errors.As(err, &withBody) && withBody.ResponseBody() != nil {
		body = withBody.ResponseBody()
	}

	resp, renderErr := render(body, status, headers, nil, nil, additional)
	if renderErr != nil {
		resp, _ = render(Envelope{Type: errorType, Message: err.Error()}, status, headers, nil, nil, additional)
	}
	return resp
}

// Envelope is the error response body.
type Envelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func toAnyHeaders(headers map[string]string) map[string]any {
	out := make(map[string]any, len(headers))
	for k, v := range headers {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
