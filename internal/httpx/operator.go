package httpx

import (
	"crypto/subtle"
	"net/http"
)

// HeaderOperatorToken authenticates back-office callers on /internal routes.
const HeaderOperatorToken = "X-Operator-Token"

func requireOperator(token string, rs responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderOperatorToken)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				rs.problem(w, r, newProblem(typeForbidden, "Forbidden", http.StatusForbidden,
					"operator credentials are required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
