package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// ExtractBearer returns the bearer token from the Authorization header.
// A missing header and a non-Bearer scheme both fail with ErrUnauthenticated.
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: no Authorization header", ErrUnauthenticated)
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || token == "" {
		return "", fmt.Errorf("%w: expected Bearer scheme", ErrUnauthenticated)
	}
	return token, nil
}
