package attribution

import (
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Cookie contract: both cookies ride a 90-day rolling expiry, HTTP-only and
// same-site restricted, so attribution survives a later purchase visit but
// is not readable from page scripts.
const (
	CookieAffiliate = "aff_ref"
	CookieSession   = "aff_session"

	CookieTTL = 90 * 24 * time.Hour
)

// Packed metadata limits. Both tokens originate from client-controllable
// channels and are validated before being trusted.
const packedMaxLen = 100

var (
	codeToken    = regexp.MustCompile(`^[A-Za-z0-9-]{3,20}$`)
	sessionToken = regexp.MustCompile(`^[A-Za-z0-9_-]{5,50}$`)
)

type CookieConfig struct {
	Domain string
	Secure bool
}

// SetCookies writes (or refreshes) the attribution pair.
func SetCookies(w http.ResponseWriter, cfg CookieConfig, code, sessionID string) {
	expires := time.Now().Add(CookieTTL)
	http.SetCookie(w, cookie(cfg, CookieAffiliate, code, expires))
	http.SetCookie(w, cookie(cfg, CookieSession, sessionID, expires))
}

// ClearCookies is the inverse of SetCookies. Clearing cookies that were
// never set is a no-op, not an error.
func ClearCookies(w http.ResponseWriter, cfg CookieConfig) {
	expired := time.Unix(0, 0)
	for _, name := range []string{CookieAffiliate, CookieSession} {
		c := cookie(cfg, name, "", expired)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

// FromRequest reads the attribution pair off the inbound request. Both
// tokens must validate; otherwise there is no attribution.
func FromRequest(r *http.Request) (code, sessionID string, ok bool) {
	codeCookie, err := r.Cookie(CookieAffiliate)
	if err != nil {
		return "", "", false
	}
	sessionCookie, err := r.Cookie(CookieSession)
	if err != nil {
		return "", "", false
	}
	return validatePair(codeCookie.Value, sessionCookie.Value)
}

// Pack serializes the attribution pair for hand-off to an external checkout
// (e.g. order metadata). Returns false when either token fails validation.
func Pack(code, sessionID string) (string, bool) {
	code, sessionID, ok := validatePair(code, sessionID)
	if !ok {
		return "", false
	}
	packed := code + "|" + sessionID
	if len(packed) > packedMaxLen {
		return "", false
	}
	return packed, true
}

// Unpack is the inverse of Pack. Any violation yields "no attribution",
// never an error, since the packed string travels through a
// client-controllable channel.
func Unpack(packed string) (code, sessionID string, ok bool) {
	if packed == "" || len(packed) > packedMaxLen {
		return "", "", false
	}
	parts := strings.SplitN(packed, "|", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return validatePair(parts[0], parts[1])
}

func validatePair(code, sessionID string) (string, string, bool) {
	code = strings.TrimSpace(code)
	sessionID = strings.TrimSpace(sessionID)
	if !codeToken.MatchString(code) || !sessionToken.MatchString(sessionID) {
		return "", "", false
	}
	return code, sessionID, true
}

func cookie(cfg CookieConfig, name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cfg.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
