package guard

// DeniedMessage is the default body shown when access is denied and the
// caller asked for a visible fallback.
const DeniedMessage = "You do not have sufficient permissions to access this."

// RenderFunc produces a body from an evaluation result.
type RenderFunc func(Result) string

// Content is what gets rendered when access is granted: either a static body
// or a callback receiving the evaluation result.
type Content struct {
	static string
	fn     RenderFunc
}

// StaticContent wraps a fixed body.
func StaticContent(body string) Content {
	return Content{static: body}
}

// DynamicContent wraps a callback invoked with the evaluation result.
func DynamicContent(fn RenderFunc) Content {
	return Content{fn: fn}
}

type fallbackKind int

const (
	fallbackNone fallbackKind = iota
	fallbackMessage
	fallbackFunc
)

// Fallback is what gets rendered when access is denied. The zero value
// renders nothing.
type Fallback struct {
	kind fallbackKind
	fn   RenderFunc
}

// NoFallback renders nothing on denial. This is the default.
func NoFallback() Fallback {
	return Fallback{}
}

// MessageFallback renders DeniedMessage on denial.
func MessageFallback() Fallback {
	return Fallback{kind: fallbackMessage}
}

// DynamicFallback invokes fn with the evaluation result on denial.
func DynamicFallback(fn RenderFunc) Fallback {
	return Fallback{kind: fallbackFunc, fn: fn}
}

// Render resolves content and fallback against an evaluation result. The
// second return value reports whether anything was rendered at all; it is
// false only on the deny path with no fallback.
func Render(res Result, content Content, fallback Fallback) (string, bool) {
	if !res.ShouldRender {
		switch fallback.kind {
		case fallbackFunc:
			if fallback.fn == nil {
				return "", false
			}
			return fallback.fn(res), true
		case fallbackMessage:
			return DeniedMessage, true
		default:
			return "", false
		}
	}
	if content.fn != nil {
		return content.fn(res), true
	}
	return content.static, true
}
