package schema

import "fmt"

// Issue is one problem found while checking an envelope or a settings file.
// Warnings are reported but never reject the input.
type Issue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Warning bool   `json:"warning,omitempty"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// Issues collects the findings of a check in the order they were found.
type Issues []Issue

// Reject records an issue that makes the input invalid.
func (is *Issues) Reject(path, code, message string) {
	*is = append(*is, Issue{Path: path, Code: code, Message: message})
}

// Warn records an issue the input survives.
func (is *Issues) Warn(path, code, message string) {
	*is = append(*is, Issue{Path: path, Code: code, Message: message, Warning: true})
}

// Rejections returns the issues that invalidate the input.
func (is Issues) Rejections() Issues { return is.filter(false) }

// Warnings returns the issues the input survives.
func (is Issues) Warnings() Issues { return is.filter(true) }

func (is Issues) filter(warning bool) Issues {
	var out Issues
	for _, i := range is {
		if i.Warning == warning {
			out = append(out, i)
		}
	}
	return out
}

// Err returns nil when nothing was rejected, otherwise a ViewError with the
// given code. Details carry both lists under "errors" and "warnings".
func (is Issues) Err(code string) error {
	rejected := is.Rejections()
	if len(rejected) == 0 {
		return nil
	}
	msg := rejected[0].String()
	if len(rejected) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(rejected)-1)
	}
	return NewError(code, msg).WithDetails(map[string]any{
		"errors":   rejected,
		"warnings": is.Warnings(),
	})
}
