package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware behaviour.
type CORSConfig struct {
	// AllowOrigins lists origins allowed to make cross-origin requests. An
	// empty list or the single entry "*" allows all origins.
	AllowOrigins []string

	// AllowMethods lists the HTTP methods clients may use in actual requests.
	// Defaults to "GET, POST, OPTIONS" when empty.
	AllowMethods []string

	// AllowHeaders lists the request headers clients may use. If empty, the
	// middleware echoes back Access-Control-Request-Headers from the preflight.
	AllowHeaders []string

	// AllowCredentials exposes the response when the request carries
	// credentials. Incompatible with the wildcard origin: when set, the
	// middleware echoes the specific origin instead.
	AllowCredentials bool

	// MaxAge indicates how long (in seconds) preflight results can be cached.
	// Zero omits the header.
	MaxAge int
}

// CORS returns a middleware that handles Cross-Origin Resource Sharing,
// including preflight OPTIONS requests and Vary headers for caches.
func CORS(cfg CORSConfig) Middleware {
	allowAll := len(cfg.AllowOrigins) == 0
	allowed := make(map[string]string, len(cfg.AllowOrigins)) // lowercase -> original
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			allowAll = true
			break
		}
		allowed[strings.ToLower(o)] = o
	}
	if cfg.AllowCredentials {
		// The wildcard origin cannot be combined with credentials.
		allowAll = false
	}

	allowMethods := strings.Join(cfg.AllowMethods, ", ")
	if allowMethods == "" {
		allowMethods = "GET, POST, OPTIONS"
	}
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")

	allowOrigin := func(origin string) string {
		if allowAll {
			return "*"
		}
		if orig, ok := allowed[strings.ToLower(origin)]; ok {
			return orig
		}
		return ""
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if !allowAll {
				w.Header().Add("Vary", "Origin")
			}
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Preflight: OPTIONS with Access-Control-Request-Method.
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Add("Vary", "Access-Control-Request-Method")
				w.Header().Add("Vary", "Access-Control-Request-Headers")

				if ao := allowOrigin(origin); ao != "" {
					w.Header().Set("Access-Control-Allow-Origin", ao)
					w.Header().Set("Access-Control-Allow-Methods", allowMethods)
					if allowHeaders != "" {
						w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
					} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
						w.Header().Set("Access-Control-Allow-Headers", rh)
					}
					if cfg.AllowCredentials {
						w.Header().Set("Access-Control-Allow-Credentials", "true")
					}
					if cfg.MaxAge > 0 {
						w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if ao := allowOrigin(origin); ao != "" {
				w.Header().Set("Access-Control-Allow-Origin", ao)
				if cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
