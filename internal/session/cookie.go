package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
)

// Factory hands out the Storage belonging to the browser behind a request.
type Factory interface {
	Storage(w http.ResponseWriter, r *http.Request) Storage
}

// CookieOptions control the attributes of cookies written for a session.
type CookieOptions struct {
	Path     string
	MaxAge   time.Duration
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

func (o CookieOptions) withDefaults() CookieOptions {
	if o.Path == "" {
		o.Path = "/"
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

func (o CookieOptions) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     o.Path,
		MaxAge:   int(o.MaxAge / time.Second),
		Secure:   o.Secure,
		HttpOnly: o.HTTPOnly,
		SameSite: o.SameSite,
	}
}

func (o CookieOptions) expired(name string) *http.Cookie {
	c := o.cookie(name, "")
	c.MaxAge = -1
	return c
}

// CookieSessions keeps each entry in its own signed (and, with a block key,
// encrypted) cookie.
type CookieSessions struct {
	codec *securecookie.SecureCookie
	opts  CookieOptions
}

// NewCookieSessions builds a cookie-backed Factory. hashKey must be non-empty;
// blockKey may be nil to sign without encrypting.
func NewCookieSessions(hashKey, blockKey []byte, opts CookieOptions) *CookieSessions {
	codec := securecookie.New(hashKey, blockKey)
	// Entries have no expiry of their own; the cookie lifetime bounds them.
	codec.MaxAge(0)
	opts.HTTPOnly = true
	return &CookieSessions{codec: codec, opts: opts.withDefaults()}
}

// GenerateKey returns a random key suitable for NewCookieSessions.
func GenerateKey(length int) []byte {
	return securecookie.GenerateRandomKey(length)
}

func (c *CookieSessions) Storage(w http.ResponseWriter, r *http.Request) Storage {
	return &CookieStorage{sessions: c, w: w, r: r, written: map[string]*string{}}
}

// CookieStorage is the Storage for one request. Writes made during the
// request are visible to later reads in the same request.
type CookieStorage struct {
	sessions *CookieSessions
	w        http.ResponseWriter
	r        *http.Request

	mu      sync.Mutex
	written map[string]*string // nil value means removed
}

func (s *CookieStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value, ok := s.written[key]; ok {
		if value == nil {
			return "", false, nil
		}
		return *value, true, nil
	}

	cookie, err := s.r.Cookie(key)
	if errors.Is(err, http.ErrNoCookie) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read cookie %s: %w", key, err)
	}
	var value string
	if err := s.sessions.codec.Decode(key, cookie.Value, &value); err != nil {
		return "", false, fmt.Errorf("decode cookie %s: %w", key, err)
	}
	return value, true, nil
}

func (s *CookieStorage) Set(_ context.Context, key, value string) error {
	encoded, err := s.sessions.codec.Encode(key, value)
	if err != nil {
		return fmt.Errorf("encode cookie %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	http.SetCookie(s.w, s.sessions.opts.cookie(key, encoded))
	s.written[key] = &value
	return nil
}

func (s *CookieStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	http.SetCookie(s.w, s.sessions.opts.expired(key))
	s.written[key] = nil
	return nil
}
