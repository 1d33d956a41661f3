package log

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/nao1215/crawlkit/internal/model"
)

// RequestAttr returns a "request" group describing req. Headers and cookies
// are included so a SecureHandler can mask the sensitive ones; never log
// this attribute through a handler that does not sanitize.
func RequestAttr(req *model.Request) slog.Attr {
	if req == nil {
		return slog.Group("request")
	}

	attrs := []any{
		slog.String("url", req.EffectiveURL()),
		slog.String("method", req.Method()),
		slog.Int("generation", req.Generation()),
	}
	if n := req.Retries(); n > 0 {
		attrs = append(attrs, slog.Int("retries", n))
	}

	if headers := req.Headers(); len(headers) > 0 {
		keys := make([]string, 0, len(headers))
		for k := range headers {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		hattrs := make([]any, 0, len(keys))
		for _, k := range keys {
			hattrs = append(hattrs, slog.String(strings.ToLower(k), strings.Join(headers[k], ", ")))
		}
		attrs = append(attrs, slog.Group("headers", hattrs...))
	}

	if cookies := req.Cookies(); len(cookies) > 0 {
		names := make([]string, 0, len(cookies))
		for name := range cookies {
			names = append(names, name)
		}
		slices.Sort(names)

		pairs := make([]string, 0, len(names))
		for _, name := range names {
			pairs = append(pairs, name+"="+cookies[name])
		}
		attrs = append(attrs, slog.String("cookie", strings.Join(pairs, "; ")))
	}

	return slog.Group("request", attrs...)
}
