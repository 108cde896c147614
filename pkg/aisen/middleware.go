// middleware.go provides HTTP middleware that scopes capture state to a request.

package aisen

import "net/http"

// Middleware wraps next so that each request gets its own breadcrumb trail
// and request context, and panics are captured and answered with a 500.
// http.ErrAbortHandler is re-raised untouched.
//
//	mux := http.NewServeMux()
//	http.ListenAndServe(addr, aisen.Middleware(client, mux))
func Middleware(client *Client, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ContextWithRequest(r.Context(), r)
		ctx = ContextWithTrail(ctx, NewTrail())
		r = r.WithContext(ctx)

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			client.capturePanic(ctx, rec)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}
