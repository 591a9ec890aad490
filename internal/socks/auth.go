package socks

// Auth configures username/password authentication (RFC 1929) for SOCKS5.
type Auth struct {
	Username string
	Password string
}

// NewAuth returns validated credentials.
func NewAuth(username, password string) (*Auth, error) {
	a := &Auth{Username: username, Password: password}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the field widths: the username must be 1 to 255 bytes and
// the password at most 255 bytes.
func (a *Auth) Validate() error {
	if len(a.Username) == 0 {
		return configError("empty username")
	}
	if len(a.Username) > 255 {
		return configError("username is %d bytes, limit is 255", len(a.Username))
	}
	if len(a.Password) > 255 {
		return configError("password is %d bytes, limit is 255", len(a.Password))
	}
	return nil
}
