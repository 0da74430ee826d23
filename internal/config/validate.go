package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct tags, duration fields and cross-field rules.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", fieldPath(fe.Namespace()), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"broadcast.delay", cfg.Broadcast.Delay},
		{"broadcast.send_timeout", cfg.Broadcast.SendTimeout},
		{"router.timeout", cfg.Router.Timeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"storage.http_timeout", cfg.Storage.HTTPTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}

	if strings.EqualFold(cfg.Storage.Driver, "supabase") {
		if cfg.Storage.SupabaseURL == "" {
			errs = append(errs, errors.New("storage.supabase_url is required when storage.driver=supabase"))
		}
		if cfg.Storage.SupabaseKey == "" {
			errs = append(errs, errors.New("storage.supabase_key is required when storage.driver=supabase"))
		}
	}
	if strings.EqualFold(cfg.Storage.Driver, "file") && strings.TrimSpace(cfg.Storage.Path) == "" {
		errs = append(errs, errors.New("storage.path is required when storage.driver=file"))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path is required when logging.file.enabled"))
	}
	if cfg.Logging.Telegram.Enabled && cfg.Logging.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("logging.telegram.chat_id is required when logging.telegram.enabled"))
	}
	return errors.Join(errs...)
}

// fieldPath turns "Config.telegram.admin_id" into "telegram.admin_id".
func fieldPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}
