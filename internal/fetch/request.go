package fetch

import (
	"fmt"
	"net/http"
	"strings"

	"marketfetch/internal/config"
)

// PreparedRequest is a rendered URL plus its headers, ready to send.
type PreparedRequest struct {
	URL    string
	Header http.Header
}

// RequestContext carries the per-call substitutions for a request
// template. Built-in keys are code, symbol (alias of code), raw_code,
// region and region_lower; Extras may add keys or override built-ins.
type RequestContext struct {
	Symbol   string
	Market   string
	Extras   map[string]string
	Resolver Resolver
}

// PrepareRequest renders a request config into a concrete URL and
// header set. Only GET is supported.
func PrepareRequest(req *config.Request, rc RequestContext) (*PreparedRequest, error) {
	if req.Method != http.MethodGet {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedMethod, req.Method)
	}

	code := req.Transform.Apply(rc.Symbol)
	replacements := map[string]string{
		"code":         code,
		"symbol":       code,
		"raw_code":     rc.Symbol,
		"region":       rc.Market,
		"region_lower": strings.ToLower(rc.Market),
	}
	for k, v := range rc.Extras {
		replacements[k] = v
	}

	url, err := renderTemplate(req.URLTemplate, replacements)
	if err != nil {
		return nil, err
	}

	header, err := buildHeader(req.Headers, rc.Resolver)
	if err != nil {
		return nil, err
	}

	return &PreparedRequest{URL: url, Header: header}, nil
}

// renderTemplate substitutes {name} placeholders. Unknown names,
// empty names and unterminated placeholders are errors; templates
// never silently drop content.
func renderTemplate(template string, replacements map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); i++ {
		ch := template[i]
		if ch != '{' {
			b.WriteByte(ch)
			continue
		}
		end := strings.IndexByte(template[i+1:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated placeholder in template: {%s", template[i+1:])
		}
		name := template[i+1 : i+1+end]
		if name == "" {
			return "", fmt.Errorf("empty placeholder {} in template")
		}
		value, ok := replacements[name]
		if !ok {
			return "", fmt.Errorf("no replacement for placeholder %q in template", name)
		}
		b.WriteString(value)
		i += end + 1
	}
	return b.String(), nil
}

func buildHeader(headers map[string]string, r Resolver) (http.Header, error) {
	header := make(http.Header, len(headers))
	for key, value := range headers {
		expanded, err := expandPlaceholders(value, r)
		if err != nil {
			return nil, fmt.Errorf("header %s: %w", key, err)
		}
		header.Set(key, expanded)
	}
	return header, nil
}

// expandPlaceholders substitutes ${NAME} tokens in a header value
// through the resolver. A nil resolver falls back to the environment.
func expandPlaceholders(value string, r Resolver) (string, error) {
	if r == nil {
		r = EnvResolver{}
	}

	var b strings.Builder
	b.Grow(len(value))

	for i := 0; i < len(value); i++ {
		if value[i] != '$' || i+1 >= len(value) || value[i+1] != '{' {
			b.WriteByte(value[i])
			continue
		}
		end := strings.IndexByte(value[i+2:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated placeholder ${%s", value[i+2:])
		}
		name := value[i+2 : i+2+end]
		if name == "" {
			return "", fmt.Errorf("empty placeholder ${}")
		}
		resolved, err := r.Resolve(name)
		if err != nil {
			return "", err
		}
		b.WriteString(resolved)
		i += end + 2
	}
	return b.String(), nil
}
