package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads the configuration through getenv, fills defaults for unset
// variables and validates the result.
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	if err := fill(reflect.ValueOf(cfg).Elem(), getenv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// fill assigns every field tagged env, descending into section structs.
// Tags: env names the variable, envAlt a fallback variable, default the
// value used when both are unset, required="true" rejects an unset value.
func fill(section reflect.Value, getenv func(string) string) error {
	for i := 0; i < section.NumField(); i++ {
		sf := section.Type().Field(i)
		dst := section.Field(i)
		if !sf.IsExported() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			if err := fill(dst, getenv); err != nil {
				return err
			}
			continue
		}

		name, ok := sf.Tag.Lookup("env")
		if !ok {
			continue
		}
		raw := lookup(getenv, name, sf.Tag.Get("envAlt"))
		if raw == "" {
			if sf.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", name)
			}
			raw = sf.Tag.Get("default")
		}
		if raw == "" {
			continue
		}
		if err := assign(dst, raw); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, raw, err)
		}
	}
	return nil
}

// lookup returns the first non-blank value among the named variables.
func lookup(getenv func(string) string, names ...string) string {
	for _, n := range names {
		if n == "" {
			continue
		}
		if v := strings.TrimSpace(getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

// assign parses raw into dst according to dst's type.
func assign(dst reflect.Value, raw string) error {
	if dst.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		dst.SetInt(int64(d))
		return nil
	}

	switch dst.Kind() {
	case reflect.String:
		dst.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		dst.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := parseSize(raw)
		if err != nil {
			return err
		}
		dst.SetInt(n)
	case reflect.Slice:
		if dst.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported list of %s", dst.Type().Elem())
		}
		var items []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		dst.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type %s", dst.Type())
	}
	return nil
}

// parseSize parses an integer with an optional KB, MB or GB suffix.
func parseSize(raw string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	mult := int64(1)
	for suffix, m := range map[string]int64{"KB": 1 << 10, "MB": 1 << 20, "GB": 1 << 30} {
		if strings.HasSuffix(s, suffix) {
			s, mult = strings.TrimSpace(strings.TrimSuffix(s, suffix)), m
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size or integer: %w", err)
	}
	return n * mult, nil
}

// problems collects validation failures so they are reported together.
type problems []string

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Sprintf(format, args...))
	}
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate reports every invalid setting in one error.
func (c *Config) Validate() error {
	var p problems

	s := c.Server
	p.check(s.Port > 0 && s.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", s.Port)
	p.check(s.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	p.check(s.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	p.check(s.RequestTimeout > 0, "SERVER_REQUEST_TIMEOUT must be positive")

	st := c.Storage
	switch st.Backend {
	case BackendFS:
		p.check(strings.TrimSpace(st.Dir) != "", "STORAGE_DIR is required for the fs backend")
	case BackendPostgres:
		p.check(st.DatabaseURL != "", "DATABASE_URL is required for the postgres backend")
		p.check(st.MaxConns > 0, "DB_MAX_CONNS must be positive")
		p.check(st.MinConns >= 0, "DB_MIN_CONNS must be non-negative")
		p.check(st.MaxConns >= st.MinConns, "DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", st.MaxConns, st.MinConns)
	default:
		p.check(false, "STORAGE_BACKEND (%q) must be one of: fs, postgres", st.Backend)
	}

	p.check(c.Upload.MaxFileSize > 0, "UPLOAD_MAX_FILE_SIZE must be positive")

	d := c.Dashboard
	p.check(d.FilterMaxDistinct > 0, "DASHBOARD_FILTER_MAX_DISTINCT must be positive")
	p.check(d.PreviewRows > 0, "DASHBOARD_PREVIEW_ROWS must be positive")
	p.check(absoluteURL(d.ChartAssetsHost), "CHART_ASSETS_HOST (%q) must be an absolute URL", d.ChartAssetsHost)

	q := c.QA
	p.check(absoluteURL(q.BaseURL), "QA_BASE_URL (%q) must be an absolute URL", q.BaseURL)
	p.check(q.Timeout > 0, "QA_TIMEOUT must be positive")
	p.check(q.MaxTokens >= 0, "QA_MAX_TOKENS must be non-negative")
	p.check(q.SampleRows > 0, "QA_SAMPLE_ROWS must be positive")
	p.check(q.MaxConcurrent > 0, "QA_MAX_CONCURRENT must be positive")
	p.check(q.MaxWait > 0, "QA_MAX_WAIT must be positive")

	sec := c.Security
	p.check(sec.SessionTTL > 0, "SESSION_TTL must be positive")
	p.check(sec.SessionKey == "" || len(sec.SessionKey) >= 32, "SESSION_KEY must be at least 32 characters")
	for _, cidr := range sec.TrustedProxies {
		_, _, err := net.ParseCIDR(cidr)
		p.check(err == nil, "TRUSTED_PROXIES entry %q is not a CIDR", cidr)
	}

	if c.Rate.Enabled {
		p.check(c.Rate.RequestsPerMinute > 0, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
		p.check(c.Rate.QuestionsPerMinute > 0, "RATE_LIMIT_QUESTIONS must be positive when rate limiting is enabled")
	}

	p.check(oneOf(c.Logging.Level, "debug", "info", "warn", "error"),
		"LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	p.check(oneOf(c.Logging.Format, "text", "json"),
		"LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)

	if len(p) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
	}
	return nil
}

// String renders the configuration for the startup log with secrets masked.
func (c *Config) String() string {
	fields := []string{
		fmt.Sprintf("addr=%s", c.Server.Addr()),
		fmt.Sprintf("request_timeout=%s", c.Server.RequestTimeout),
		fmt.Sprintf("storage=%s", c.Storage.Backend),
		fmt.Sprintf("storage_dir=%q", c.Storage.Dir),
		fmt.Sprintf("database_url=%s", mask(c.Storage.DatabaseURL)),
		fmt.Sprintf("max_upload=%d", c.Upload.MaxFileSize),
		fmt.Sprintf("filter_max_distinct=%d", c.Dashboard.FilterMaxDistinct),
		fmt.Sprintf("pie_sort=%t", c.Dashboard.PieSort),
		fmt.Sprintf("qa_model=%q", c.QA.Model),
		fmt.Sprintf("qa_key=%s", mask(c.QA.APIKey)),
		fmt.Sprintf("qa_max_concurrent=%d", c.QA.MaxConcurrent),
		fmt.Sprintf("admin=%s", mask(c.Security.AdminPasswordHash+c.Security.AdminPassword)),
		fmt.Sprintf("session_key=%s", mask(c.Security.SessionKey)),
		fmt.Sprintf("trusted_proxies=%d", len(c.Security.TrustedProxies)),
		fmt.Sprintf("rate_limit=%t", c.Rate.Enabled),
		fmt.Sprintf("log=%s/%s", c.Logging.Level, c.Logging.Format),
	}
	return strings.Join(fields, " ")
}

func mask(secret string) string {
	if secret == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
