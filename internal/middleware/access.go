package middleware

import (
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// AccessKeyHeader is the request header holding the shared access key.
const AccessKeyHeader = "X-Access-Key"

// AccessKey rejects requests whose X-Access-Key does not match the bcrypt
// hash returned by hash(). An empty hash disables the check. When lim is not
// nil, wrong keys count towards a per-IP lockout.
func AccessKey(hash func() string, lim *FailureLimiter) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			h := hash()
			if h == "" {
				next(w, r)
				return
			}
			key := r.Header.Get(AccessKeyHeader)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "access key required")
				return
			}

			ip := clientIP(r)
			if lim != nil {
				if ok, wait := lim.CheckAllowed(ip); !ok {
					w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
					writeError(w, http.StatusTooManyRequests, "too many failed attempts, try again later")
					return
				}
			}
			matched := bcrypt.CompareHashAndPassword([]byte(h), []byte(key)) == nil
			if lim != nil {
				lim.RecordAttempt(ip, matched)
			}
			if !matched {
				writeError(w, http.StatusForbidden, "invalid access key")
				return
			}
			next(w, r)
		}
	}
}
