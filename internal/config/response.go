package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	ResponseModeRedirect = "redirect"
	ResponseModeHTML     = "html"
)

// ResponseConfig shapes what a browser sees after a gateway redirect.
type ResponseConfig struct {
	Mode      string
	WebAppURL string
	HTMLDelay time.Duration
}

func DefaultResponseConfig() ResponseConfig {
	return ResponseConfig{
		Mode:      ResponseModeHTML,
		WebAppURL: "http://localhost:3000",
		HTMLDelay: 3 * time.Second,
	}
}

type ResponseConfigHolder struct {
	current atomic.Value // holds ResponseConfig
}

// NewResponseConfigHolder reads response.yml (if any), applies PAYRECON_RESPONSE_* env
// overrides and watches the file for changes.
func NewResponseConfigHolder(log *zap.Logger) (*ResponseConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("response")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/payrecon")
	v.AddConfigPath(".")

	return newResponseConfigHolder(v, log)
}

// NewResponseConfigHolderFromFile loads response settings from an explicit file path.
func NewResponseConfigHolderFromFile(path string, log *zap.Logger) (*ResponseConfigHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return newResponseConfigHolder(v, log)
}

// NewStaticResponseConfig returns a holder that never reloads.
func NewStaticResponseConfig(cfg ResponseConfig) *ResponseConfigHolder {
	holder := &ResponseConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func newResponseConfigHolder(v *viper.Viper, log *zap.Logger) (*ResponseConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.response")

	defaults := DefaultResponseConfig()
	v.SetDefault("response.mode", defaults.Mode)
	v.SetDefault("response.web_app_url", defaults.WebAppURL)
	v.SetDefault("response.html_delay", defaults.HTMLDelay)

	v.SetEnvPrefix("PAYRECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	cfg := readResponseConfig(v)
	if err := validateResponseConfig(cfg); err != nil {
		return nil, err
	}

	holder := &ResponseConfigHolder{}
	holder.current.Store(cfg)

	if fileFound {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated := readResponseConfig(v)
			if err := validateResponseConfig(updated); err != nil {
				log.Warn("invalid response config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("response config reloaded", zap.String("file", e.Name), zap.String("mode", updated.Mode))
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *ResponseConfigHolder) Get() ResponseConfig {
	return h.current.Load().(ResponseConfig)
}

func readResponseConfig(v *viper.Viper) ResponseConfig {
	return ResponseConfig{
		Mode:      strings.ToLower(strings.TrimSpace(v.GetString("response.mode"))),
		WebAppURL: strings.TrimSpace(v.GetString("response.web_app_url")),
		HTMLDelay: v.GetDuration("response.html_delay"),
	}
}

func validateResponseConfig(cfg ResponseConfig) error {
	switch cfg.Mode {
	case ResponseModeRedirect, ResponseModeHTML:
	default:
		return fmt.Errorf("response.mode must be %q or %q, got %q", ResponseModeRedirect, ResponseModeHTML, cfg.Mode)
	}
	u, err := url.Parse(cfg.WebAppURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("response.web_app_url must be an absolute URL, got %q", cfg.WebAppURL)
	}
	if cfg.HTMLDelay < 0 {
		return errors.New("response.html_delay cannot be negative")
	}
	return nil
}
