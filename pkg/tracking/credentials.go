package tracking

import (
	"os"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/mlbridge-io/mlbridge/pkg/api"
)

// Conventional credential keys. The same names double as environment
// variables, which standard tracking clients already understand.
const (
	CredUsername = "MLFLOW_TRACKING_USERNAME"
	CredPassword = "MLFLOW_TRACKING_PASSWORD"
	CredToken    = "MLFLOW_TRACKING_TOKEN"
)

// Credentials authenticate the REST client against a tracking server.
// A token takes precedence over username/password.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// CredentialsFromMap builds Credentials from a configuration map using the
// conventional keys, falling back to the environment variables of the same
// names for keys the map does not set.
func CredentialsFromMap(m map[string]string) Credentials {
	get := func(key string) string {
		if v, ok := m[key]; ok && v != "" {
			return v
		}
		return os.Getenv(key)
	}
	return Credentials{
		Username: get(CredUsername),
		Password: get(CredPassword),
		Token:    get(CredToken),
	}
}

// Empty reports whether no credential is set.
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Password == "" && c.Token == ""
}

// Validate rejects tokens that are well-formed JWTs with an exp claim in the
// past, so a stale token fails at dial time instead of on the first request.
// Opaque tokens pass through for the server to judge.
func (c Credentials) Validate() error {
	if c.Token == "" || strings.Count(c.Token, ".") != 2 {
		return nil
	}
	parsed, _, err := jwtlib.NewParser().ParseUnverified(c.Token, jwtlib.MapClaims{})
	if err != nil {
		return nil
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if time.Now().After(exp.Time) {
		return api.NewPermissionDeniedError("tracking token expired at %s", exp.Time.UTC().Format(time.RFC3339))
	}
	return nil
}
