package httpclient

// Scheme is the Authorization scheme sent with every request.
type Scheme string

const (
	SchemeNone   Scheme = ""
	SchemeBearer Scheme = "Bearer"
	// SchemePAT sends a watchmen personal access token.
	SchemePAT Scheme = "pat"
)

// Auth is the credential of a client.
type Auth struct {
	Scheme Scheme
	Token  string
}

// BearerAuth authenticates with a bearer token.
func BearerAuth(token string) Auth { return Auth{Scheme: SchemeBearer, Token: token} }

// PATAuth authenticates with a personal access token.
func PATAuth(token string) Auth { return Auth{Scheme: SchemePAT, Token: token} }

func (a Auth) header() string {
	if a.Scheme == SchemeNone || a.Token == "" {
		return ""
	}
	return string(a.Scheme) + " " + a.Token
}
