package httpapi

import "time"

// maxBodyBytes bounds uploaded images. Default 10 MiB.
var maxBodyBytes int64 = 10 << 20

// SetMaxBodyBytes configures the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 10 << 20
		return
	}
	maxBodyBytes = n
}

// requestTimeout bounds a single /predict or /species call. Zero disables it.
var requestTimeout time.Duration

// SetRequestTimeout sets the per-request inference timeout (0 disables).
func SetRequestTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	requestTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
