package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Snapshot is a typed view of the settings the server needs at startup.
type Snapshot struct {
	AppPort           string
	TLSKeyFile        string
	TLSCertFile       string
	AbortDelayMS      string
	RateLimit         string
	HealthcheckPath   string
	HealthcheckHeader string
}

// Current returns the loaded settings as a Snapshot. Numeric settings are
// kept raw so that bad values fail validation instead of falling back to
// their defaults.
func Current() Snapshot {
	return Snapshot{
		AppPort:           AppPort(),
		TLSKeyFile:        TLSKeyFile(),
		TLSCertFile:       TLSCertFile(),
		AbortDelayMS:      get("ABORT_DELAY_MS", defaultAbortDelayMS),
		RateLimit:         get("RATE_LIMIT", defaultRateLimit),
		HealthcheckPath:   HealthcheckPath(),
		HealthcheckHeader: HealthcheckHeader(),
	}
}

// Validate checks the snapshot for values that would make startup fail later
// in a less obvious way.
func (s Snapshot) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.AppPort, validation.Required, is.Port),
		validation.Field(&s.TLSKeyFile, validation.Required),
		validation.Field(&s.TLSCertFile, validation.Required),
		validation.Field(&s.AbortDelayMS, validation.Required, is.Int, validation.By(intAtLeast(1))),
		validation.Field(&s.RateLimit, is.Int, validation.By(intAtLeast(0))),
		validation.Field(&s.HealthcheckPath, validation.Required, validation.By(leadingSlash)),
		validation.Field(&s.HealthcheckHeader, validation.Required),
	)
}

// Validate loads configuration and validates it.
func Validate() error {
	if err := Load(); err != nil {
		return err
	}
	return Current().Validate()
}

func leadingSlash(value interface{}) error {
	s, _ := value.(string)
	if !strings.HasPrefix(s, "/") {
		return errors.New("must start with /")
	}
	return nil
}

func intAtLeast(min int) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil // reported by is.Int
		}
		if n < min {
			return fmt.Errorf("must be no less than %d", min)
		}
		return nil
	}
}
