package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig is the browser origin policy for the bridge's HTTP endpoint.
type CORSConfig struct {
	// AllowOrigins lists origins allowed to connect. "*" allows any origin.
	// Default: ["*"]
	AllowOrigins []string

	// AllowHeaders lists request headers a preflight may ask for.
	// Default: ["Content-Type", "Authorization", "Sec-WebSocket-Protocol"]
	AllowHeaders []string

	// AllowCredentials lets browsers send cookies with the handshake.
	AllowCredentials bool

	// MaxAge is how long, in seconds, a preflight result may be cached.
	// Zero omits the header.
	MaxAge int
}

// CORSAllowAll allows every origin. Suitable for development.
var CORSAllowAll *CORSConfig = nil

func (cfg *CORSConfig) withDefaults() CORSConfig {
	c := CORSConfig{}
	if cfg != nil {
		c = *cfg
	}
	if len(c.AllowOrigins) == 0 {
		c.AllowOrigins = []string{"*"}
	}
	if len(c.AllowHeaders) == 0 {
		c.AllowHeaders = []string{"Content-Type", "Authorization", "Sec-WebSocket-Protocol"}
	}
	return c
}

func (cfg *CORSConfig) allows(origin string) bool {
	return slices.Contains(cfg.AllowOrigins, "*") || (origin != "" && slices.Contains(cfg.AllowOrigins, origin))
}

// CheckOrigin returns a WebSocket origin check applying the same policy as
// CORS. Requests without an Origin header (non-browser clients) pass.
func CheckOrigin(cfg *CORSConfig) func(*http.Request) bool {
	c := cfg.withDefaults()
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || c.allows(origin)
	}
}

// CORS returns an HTTP middleware that answers preflight requests and sets
// the allow-origin headers.
func CORS(cfg *CORSConfig) func(http.Handler) http.Handler {
	c := cfg.withDefaults()
	wildcard := slices.Contains(c.AllowOrigins, "*")
	allowedHeaders := strings.Join(c.AllowHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if c.allows(origin) {
				// A credentialed response may not use "*"; echo the origin.
				if origin != "" && (!wildcard || c.AllowCredentials) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				}
				if c.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
				if c.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(c.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
