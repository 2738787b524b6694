package redis

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"net"
	"net/url"

	"github.com/redis/go-redis/v9"
)

// ServiceCredentials is the credentials object a hosted environment injects
// for a bound Redis service.
type ServiceCredentials struct {
	URI      string      `json:"uri"`
	Hostname string      `json:"hostname"`
	Port     json.Number `json:"port"`
	Password string      `json:"password"`
	TLS      bool        `json:"tls"`
}

// OptionsResolver turns a Config into go-redis connection options.
// It is called every time a connection is created.
type OptionsResolver func(cfg Config) (*redis.Options, error)

// ResolveOptions is the default OptionsResolver.
// Bound service credentials win over ConnectionURL. The username embedded in
// a service URI is dropped: managed instances reject AUTH with a username.
func ResolveOptions(cfg Config) (*redis.Options, error) {
	if cfg.ServiceCredentials != "" {
		var creds ServiceCredentials
		if err := json.Unmarshal([]byte(cfg.ServiceCredentials), &creds); err != nil {
			return nil, errors.Join(ErrInvalidCredentials, err)
		}
		return creds.Options()
	}

	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}
	return opts, nil
}

// Options builds connection options from the credentials.
func (c ServiceCredentials) Options() (*redis.Options, error) {
	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return nil, errors.Join(ErrInvalidCredentials, err)
		}
		if u.User != nil {
			password, ok := u.User.Password()
			if !ok {
				password = c.Password
			}
			u.User = url.UserPassword("", password)
		}

		opts, err := redis.ParseURL(u.String())
		if err != nil {
			return nil, errors.Join(ErrFailedToParseRedisConnString, err)
		}
		return opts, nil
	}

	if c.Hostname == "" || c.Port == "" {
		return nil, errors.Join(ErrInvalidCredentials, errors.New("either uri or hostname and port are required"))
	}

	opts := &redis.Options{
		Addr:     net.JoinHostPort(c.Hostname, c.Port.String()),
		Password: c.Password,
	}
	if c.TLS {
		opts.TLSConfig = &tls.Config{
			ServerName: c.Hostname,
			MinVersion: tls.VersionTLS12,
		}
	}
	return opts, nil
}
