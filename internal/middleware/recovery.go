package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"restack-guard/pkg/apierror"
)

// Recovery turns a handler panic into a 500 envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[HTTP] PANIC rid=%s: %v\n%s", w.Header().Get("X-Request-ID"), err, debug.Stack())
				writeError(w, apierror.InternalError("internal server error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
