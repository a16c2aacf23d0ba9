package middleware

import (
	"net/http"
	"strings"
)

// NewCORSMiddleware は許可オリジンに対するCORSミドルウェアを返す。
// allowedOriginsはカンマ区切りで複数指定でき、"*"は全オリジンを許可する。
// 認証はAuthorizationヘッダーのBearerトークンで行うため、Cookieの送信は許可しない。
// OPTIONSプリフライトリクエストには204で応答する。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	origins := parseOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			if origin, ok := origins.match(r.Header.Get("Origin")); ok {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+RequestIDHeader)
				h.Set("Access-Control-Expose-Headers", RequestIDHeader+", Retry-After")
				h.Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type originList struct {
	any     bool
	origins []string
}

func parseOrigins(s string) originList {
	var list originList
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			list.any = true
		default:
			list.origins = append(list.origins, o)
		}
	}
	return list
}

// match はリクエストのOriginに返すAccess-Control-Allow-Originの値を返す。
// Originヘッダーのない同一オリジン・非ブラウザのリクエストには先頭の許可オリジンを返す。
func (l originList) match(origin string) (string, bool) {
	if l.any {
		return "*", true
	}
	if origin == "" {
		if len(l.origins) == 0 {
			return "", false
		}
		return l.origins[0], true
	}
	for _, o := range l.origins {
		if strings.EqualFold(o, origin) {
			return origin, true
		}
	}
	return "", false
}
