package middleware

import "net/http"

// DefaultMaxBodySize はAPIリクエストボディの上限。
const DefaultMaxBodySize int64 = 64 << 10

// NewRequestSizeMiddleware はリクエストボディをmaxBytesに制限するミドルウェアを返す。
// 超過した場合はボディの読み込み時にエラーとなる。
func NewRequestSizeMiddleware(maxBytes int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
