package config

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/slighter12/go-lib/database/postgres"
)

const (
	defaultPath               = "."
	defaultMaxRequestBodySize = "100KB"

	defaultAccessTokenTTL       = 15 * time.Minute
	defaultRefreshTokenTTL      = 7 * 24 * time.Hour
	defaultLockoutWindow        = 30 * time.Minute
	defaultResetTokenTTL        = time.Hour
	defaultResetCooldown        = 5 * time.Minute
	defaultVerificationTokenTTL = 24 * time.Hour
	defaultPurgeInterval        = time.Hour
	defaultMaxFailedLogins      = 5
	defaultMaxResetAttempts     = 3
	defaultRateLimitRequests    = 5
	defaultRateLimitWindow      = time.Minute
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	NotifierProviderNoop         = "noop"
	NotifierProviderLocalHTTP    = "local_http"
	NotifierProviderGooglePubSub = "google_pubsub"
)

type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Debug       bool   `json:"debug" yaml:"debug"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	HTTP struct {
		Port               int    `json:"port" yaml:"port"`
		MaxRequestBodySize string `json:"maxRequestBodySize" yaml:"maxRequestBodySize"`
		// TrustedProxies lists the CIDRs allowed to set X-Forwarded-For. Empty means
		// the client IP is always the socket peer.
		TrustedProxies []string `json:"trustedProxies" yaml:"trustedProxies"`
		Timeouts           struct {
			ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
			ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
			WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
			IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
	} `json:"http" yaml:"http"`

	// Store selects the persistence backend for principals and refresh tokens.
	Store StoreConfig `json:"store" yaml:"store"`

	Postgres *postgres.DBConn `json:"postgres" yaml:"postgres" mapstructure:"postgres"`

	SecretKey struct {
		// Access is the HS256 signing secret for access tokens.
		Access string `json:"access" yaml:"access"`
	} `json:"secretKey" yaml:"secretKey"`

	// FrontendURL is the base used to build links embedded in outgoing emails.
	FrontendURL string `json:"frontendUrl" yaml:"frontendUrl"`

	Auth *AuthConfig `json:"auth" yaml:"auth"`

	Hasher *HasherConfig `json:"hasher" yaml:"hasher"`

	// RateLimit bounds login and reset requests per client IP.
	RateLimit *RateLimitConfig `json:"rateLimit" yaml:"rateLimit"`

	Notifier *NotifierConfig `json:"notifier" yaml:"notifier"`
}

// StoreConfig chooses between the relational store and the in-process store.
type StoreConfig struct {
	// Driver is "postgres" or "memory"
	Driver string `json:"driver" yaml:"driver"`
	// AutoMigrate applies embedded migrations when the postgres store starts
	AutoMigrate bool `json:"autoMigrate" yaml:"autoMigrate"`
}

// AuthConfig defines token lifetimes and lockout policy
type AuthConfig struct {
	Issuer               string        `json:"issuer" yaml:"issuer"`
	AccessTokenTTL       time.Duration `json:"accessTokenTTL" yaml:"accessTokenTTL"`
	RefreshTokenTTL      time.Duration `json:"refreshTokenTTL" yaml:"refreshTokenTTL"`
	MaxFailedLogins      int           `json:"maxFailedLogins" yaml:"maxFailedLogins"`
	LockoutWindow        time.Duration `json:"lockoutWindow" yaml:"lockoutWindow"`
	ResetTokenTTL        time.Duration `json:"resetTokenTTL" yaml:"resetTokenTTL"`
	ResetCooldown        time.Duration `json:"resetCooldown" yaml:"resetCooldown"`
	MaxResetAttempts     int           `json:"maxResetAttempts" yaml:"maxResetAttempts"`
	VerificationTokenTTL time.Duration `json:"verificationTokenTTL" yaml:"verificationTokenTTL"`
	// How often the janitor deletes expired refresh tokens.
	PurgeInterval time.Duration `json:"purgeInterval" yaml:"purgeInterval"`
}

// HasherConfig holds the argon2id cost parameters and the size of the hashing pool
type HasherConfig struct {
	Time      uint32 `json:"time" yaml:"time"`
	MemoryKiB uint32 `json:"memoryKiB" yaml:"memoryKiB"`
	Threads   uint8  `json:"threads" yaml:"threads"`
	KeyLen    uint32 `json:"keyLen" yaml:"keyLen"`
	SaltLen   int    `json:"saltLen" yaml:"saltLen"`
	// Workers caps concurrent hash computations; 0 means runtime.NumCPU()
	Workers int `json:"workers" yaml:"workers"`
}

// RateLimitConfig is a per-IP request budget over a fixed window
type RateLimitConfig struct {
	Requests int           `json:"requests" yaml:"requests"`
	Window   time.Duration `json:"window" yaml:"window"`
}

// NotifierConfig defines how account emails are dispatched
type NotifierConfig struct {
	// Provider type: "noop", "local_http" or "google_pubsub"
	Provider string `json:"provider" yaml:"provider"`

	// Local HTTP endpoint receiving email jobs (for local_http provider)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Google Cloud project ID (for google_pubsub provider)
	ProjectID string `json:"projectId" yaml:"projectId"`

	// Pub/Sub topic ID (for google_pubsub provider)
	TopicID string `json:"topicId" yaml:"topicId"`

	MaxAttempts int           `json:"maxAttempts" yaml:"maxAttempts"`
	MinBackoff  time.Duration `json:"minBackoff" yaml:"minBackoff"`
	MaxBackoff  time.Duration `json:"maxBackoff" yaml:"maxBackoff"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// LoadWithEnv reads <currEnv>.yaml from the first search path that has it, then
// lets environment variables override any key the file declares.
func LoadWithEnv[T any](currEnv string, configPath ...string) (*T, error) {
	configFile, err := findConfigFile(currEnv+".yaml", configPath)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "read %s config failed", currEnv)
	}

	// POSTGRES_SSLMODE lands on postgres.sslMode because segments are matched against the file's keys.
	fileKeys := k.Raw()
	envProvider := env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			return canonicalizeEnvKey(key, fileKeys), value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	cfg := new(T)
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{DecoderConfig: decoderConfig(cfg)}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", currEnv)
	}

	return cfg, nil
}

func decoderConfig(result any) *mapstructure.DecoderConfig {
	return &mapstructure.DecoderConfig{
		Result:           result,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(mapstructure.StringToTimeDurationHookFunc()),
		MatchName:        strings.EqualFold,
	}
}

// findConfigFile looks in defaultPath first, then in each relative path resolved against the working directory.
func findConfigFile(name string, relPaths []string) (string, error) {
	searchPaths := []string{defaultPath}
	if len(relPaths) > 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, "os.Getwd")
		}
		for _, rel := range relPaths {
			searchPaths = append(searchPaths, filepath.Join(pwd, rel))
		}
	}

	for _, dir := range searchPaths {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", errors.Errorf("config file %s not found in any search path", name)
}

func New() (*Config, error) {
	cfg, err := LoadWithEnv[Config]("config", "config", "../config", "../../config")
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.HTTP.MaxRequestBodySize) == "" {
		cfg.HTTP.MaxRequestBodySize = defaultMaxRequestBodySize
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Replica lists do not map onto flat env keys, so they get their own numbered variables.
	if cfg.Postgres != nil {
		if replicas := replicasFromEnv(os.Getenv); len(replicas) > 0 {
			cfg.Postgres.Replicas = replicas
		}
	}

	return cfg, nil
}

// ApplyDefaults fills every unset knob with its production default.
func (cfg *Config) ApplyDefaults() {
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreDriverPostgres
	}

	if cfg.Auth == nil {
		cfg.Auth = &AuthConfig{}
	}
	setDuration(&cfg.Auth.AccessTokenTTL, defaultAccessTokenTTL)
	setDuration(&cfg.Auth.RefreshTokenTTL, defaultRefreshTokenTTL)
	setDuration(&cfg.Auth.LockoutWindow, defaultLockoutWindow)
	setDuration(&cfg.Auth.ResetTokenTTL, defaultResetTokenTTL)
	setDuration(&cfg.Auth.ResetCooldown, defaultResetCooldown)
	setDuration(&cfg.Auth.VerificationTokenTTL, defaultVerificationTokenTTL)
	setDuration(&cfg.Auth.PurgeInterval, defaultPurgeInterval)
	setInt(&cfg.Auth.MaxFailedLogins, defaultMaxFailedLogins)
	setInt(&cfg.Auth.MaxResetAttempts, defaultMaxResetAttempts)
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = cfg.Env.ServiceName
	}

	if cfg.Hasher == nil {
		cfg.Hasher = &HasherConfig{}
	}
	if cfg.Hasher.Time == 0 {
		cfg.Hasher.Time = 3
	}
	if cfg.Hasher.MemoryKiB == 0 {
		cfg.Hasher.MemoryKiB = 64 * 1024
	}
	if cfg.Hasher.Threads == 0 {
		cfg.Hasher.Threads = 1
	}
	if cfg.Hasher.KeyLen == 0 {
		cfg.Hasher.KeyLen = 32
	}
	setInt(&cfg.Hasher.SaltLen, 16)
	setInt(&cfg.Hasher.Workers, runtime.NumCPU())

	if cfg.RateLimit == nil {
		cfg.RateLimit = &RateLimitConfig{}
	}
	setInt(&cfg.RateLimit.Requests, defaultRateLimitRequests)
	setDuration(&cfg.RateLimit.Window, defaultRateLimitWindow)

	if cfg.Notifier == nil {
		cfg.Notifier = &NotifierConfig{}
	}
	if cfg.Notifier.Provider == "" {
		cfg.Notifier.Provider = NotifierProviderNoop
	}
	setInt(&cfg.Notifier.MaxAttempts, 3)
	setDuration(&cfg.Notifier.MinBackoff, 2*time.Second)
	setDuration(&cfg.Notifier.MaxBackoff, 10*time.Second)
}

// Validate rejects configurations the service cannot run with.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.SecretKey.Access) == "" {
		return errors.New("secretKey.access must be provided")
	}

	switch cfg.Store.Driver {
	case StoreDriverPostgres:
		if cfg.Postgres == nil {
			return errors.New("postgres section is required for the postgres store driver")
		}
	case StoreDriverMemory:
	default:
		return errors.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if cfg.Auth.MaxFailedLogins < 1 || cfg.Auth.MaxResetAttempts < 1 {
		return errors.New("auth.maxFailedLogins and auth.maxResetAttempts must be positive")
	}

	for _, cidr := range cfg.HTTP.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return errors.Wrapf(err, "http.trustedProxies entry %q", cidr)
		}
	}

	return nil
}

func setDuration(target *time.Duration, def time.Duration) {
	if *target <= 0 {
		*target = def
	}
}

func setInt(target *int, def int) {
	if *target <= 0 {
		*target = def
	}
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}

		child, _ := value.(map[string]any)

		return key, child, true
	}

	return "", nil, false
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}

// replicasFromEnv reads POSTGRES_REPLICAS_{n}_{HOST,PORT,USERNAME,PASSWORD} for n = 0, 1, ...
// and stops at the first index without both a host and a port.
func replicasFromEnv(getenv func(string) string) []postgres.ConnectionConfig {
	var replicas []postgres.ConnectionConfig

	for i := 0; ; i++ {
		prefix := "POSTGRES_REPLICAS_" + strconv.Itoa(i) + "_"

		host, port := getenv(prefix+"HOST"), getenv(prefix+"PORT")
		if host == "" || port == "" {
			return replicas
		}

		replicas = append(replicas, postgres.ConnectionConfig{
			Host:     host,
			Port:     port,
			UserName: getenv(prefix + "USERNAME"),
			Password: getenv(prefix + "PASSWORD"),
		})
	}
}
