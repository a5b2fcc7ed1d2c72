package router

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/shandysiswandi/contactrelay/internal/pkg/stacktrace"
)

// middlewareRecoverer turns a handler panic into the standard 500 error body.
// It runs inside the observability middleware so the failure is logged,
// traced and counted like any other server error.
func middlewareRecoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			//nolint:err113,errorlint // sentinel compared by identity
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			stack := debug.Stack()
			if paths := stacktrace.InternalPaths(stack); len(paths) > 0 {
				slog.ErrorContext(r.Context(), "handler panicked", "panic", rvr, "stack", paths)
			} else {
				slog.ErrorContext(r.Context(), "handler panicked", "panic", rvr, "stack", string(stack))
			}

			if setter, ok := w.(interface{ SetError(error) }); ok {
				setter.SetError(fmt.Errorf("panic: %v", rvr))
			}
			writeJSON(w, errorResponse{Error: "Internal server error"}, http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}
