package sandbox

import (
	"encoding/json"
	"strings"
)

// Template placeholder delimiters.
const (
	delimOpen  = "{{"
	delimClose = "}}"
)

const jsonContentType = "application/json; charset=utf-8"

// Template is the backend-agnostic code template. Placeholders of the form
// {{name}} are substituted with escaped parameter values.
type Template struct {
	text string
}

// NewTemplate validates and wraps a template string.
func NewTemplate(text string) (*Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ConfigErrorf("code template is empty")
	}
	if strings.Count(text, delimOpen) != strings.Count(text, delimClose) {
		return nil, ConfigErrorf("code template has unbalanced placeholder delimiters")
	}
	return &Template{text: text}, nil
}

// Render substitutes parameter values into the template. Values are escaped
// for embedding inside a quoted string literal; values carrying the
// template's own delimiters are rejected outright.
func (t *Template) Render(params map[string]string) (string, error) {
	out := t.text
	for name, value := range params {
		if strings.Contains(value, delimOpen) || strings.Contains(value, delimClose) {
			return "", ConfigErrorf("parameter %q contains template delimiters", name)
		}
		out = strings.ReplaceAll(out, delimOpen+name+delimClose, escapeValue(value))
	}
	if start := strings.Index(out, delimOpen); start >= 0 {
		name := out[start+len(delimOpen):]
		if end := strings.Index(name, delimClose); end >= 0 {
			name = name[:end]
		}
		return "", ConfigErrorf("code template placeholder %q has no matching parameter", name)
	}
	return out, nil
}

// escapeValue makes a parameter value safe inside a quoted string literal in
// the generated code.
func escapeValue(v string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		`'`, `\'`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return r.Replace(v)
}

// acaExecuteEnvelope is the dynamic-sessions execute body.
type acaExecuteEnvelope struct {
	Properties acaExecuteProperties `json:"properties"`
}

type acaExecuteProperties struct {
	CodeInputType string `json:"codeInputType"`
	ExecutionType string `json:"executionType"`
	Code          string `json:"code"`
}

// codeBody is the execute body shared by the E2B and Daytona families.
type codeBody struct {
	Code string `json:"code"`
}

// Assemble renders the template with the request's parameters and wraps the
// result in the envelope the backend expects. Pure function, no I/O; it can
// only fail on malformed template configuration.
func Assemble(desc Descriptor, tpl *Template, req Request) (Payload, error) {
	code, err := tpl.Render(req.Parameters)
	if err != nil {
		return Payload{}, err
	}

	p := Payload{
		Code:        code,
		ContentType: jsonContentType,
		Params:      req.Parameters,
	}

	switch desc.Type {
	case BackendLocal:
		// The local backend runs an in-process function over Params.
		p.ContentType = ""
	case BackendACA:
		body, err := json.Marshal(acaExecuteEnvelope{
			Properties: acaExecuteProperties{
				CodeInputType: "inline",
				ExecutionType: "synchronous",
				Code:          code,
			},
		})
		if err != nil {
			return Payload{}, ConfigErrorf("encoding execute payload failed").WithDetail(err.Error())
		}
		p.Body = body
	case BackendE2B, BackendDaytona:
		body, err := json.Marshal(codeBody{Code: code})
		if err != nil {
			return Payload{}, ConfigErrorf("encoding execute payload failed").WithDetail(err.Error())
		}
		p.Body = body
	default:
		return Payload{}, ConfigErrorf("no payload shape for backend %q", string(desc.Type))
	}

	return p, nil
}
