package remote

import (
	"errors"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DefaultTimeout bounds a request when neither the config nor the context does.
const DefaultTimeout = 15 * time.Second

// Config configures the REST client.
type Config struct {
	// BaseURL is the API root, e.g. https://garage.example.com/api.
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// DefaultConfig returns a config with the default timeout and no base URL.
func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout, UserAgent: "garagesync"}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, validation.By(absoluteURL)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}
