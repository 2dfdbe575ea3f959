package config

import "time"

// Tunables holds exactly the enumerated runtime options named in the
// design notes: the thresholds and limits that govern Struggle Detector
// windowing, Audit Pipeline verdicts, Knowledge Retrieval defaults, the
// Workflow Runtime's cancellation grace period, and the Session & Quota
// Store's token bucket defaults. No other component may read an
// environment variable directly — everything funnels through this struct
// so the full set of knobs is visible in one place.
type Tunables struct {
	WindowSeconds              int
	EditFreqMin                int
	DistinctErrorsMin          int
	CooldownSeconds            int
	CoalescenceTTLSeconds      int
	VerdictConfidenceThreshold float64
	RetrievalTopKDefault       int
	EmbeddingDimension         int
	CancellationGraceSeconds   int
	BucketCapacityDefault      float64
	BucketRefillRateDefault    float64
	MaxInflightPerTenant       int
	MaxInflightGlobal          int
}

// LoadTunables loads Tunables from the environment under prefix (typically
// "AURA"). Defaults mirror the fallback values called out in the design
// notes so a fresh checkout runs without any environment configured.
func LoadTunables(prefix string) Tunables {
	env := NewEnvConfig(prefix)
	return Tunables{
		WindowSeconds:              env.GetInt("WINDOW_SECONDS", 180),
		EditFreqMin:                env.GetInt("EDIT_FREQ_MIN", 8),
		DistinctErrorsMin:          env.GetInt("DISTINCT_ERRORS_MIN", 3),
		CooldownSeconds:            env.GetInt("COOLDOWN_SECONDS", 600),
		CoalescenceTTLSeconds:      env.GetInt("COALESCENCE_TTL_SECONDS", 30),
		VerdictConfidenceThreshold: env.GetFloat("VERDICT_CONFIDENCE_THRESHOLD", 0.85),
		RetrievalTopKDefault:       env.GetInt("RETRIEVAL_TOP_K_DEFAULT", 3),
		EmbeddingDimension:         env.GetInt("EMBEDDING_DIMENSION", 1536),
		CancellationGraceSeconds:   env.GetInt("CANCELLATION_GRACE_SECONDS", 5),
		BucketCapacityDefault:      env.GetFloat("BUCKET_CAPACITY_DEFAULT", 20),
		BucketRefillRateDefault:    env.GetFloat("BUCKET_REFILL_RATE_DEFAULT", 1),
		MaxInflightPerTenant:       env.GetInt("MAX_INFLIGHT_PER_TENANT", 4),
		MaxInflightGlobal:          env.GetInt("MAX_INFLIGHT_GLOBAL", 256),
	}
}

// Validate checks the tunables against the invariants spec.md attaches to
// each option (positivity, the [0,1] confidence range, etc).
func (t Tunables) Validate() error {
	v := NewValidator()
	v.RequirePositiveInt("WindowSeconds", t.WindowSeconds)
	v.RequirePositiveInt("EditFreqMin", t.EditFreqMin)
	v.RequirePositiveInt("DistinctErrorsMin", t.DistinctErrorsMin)
	v.RequirePositiveInt("CooldownSeconds", t.CooldownSeconds)
	v.RequirePositiveInt("CoalescenceTTLSeconds", t.CoalescenceTTLSeconds)
	v.RequireRange("VerdictConfidenceThreshold", t.VerdictConfidenceThreshold, 0, 1)
	v.RequirePositiveInt("RetrievalTopKDefault", t.RetrievalTopKDefault)
	v.RequirePositiveInt("EmbeddingDimension", t.EmbeddingDimension)
	v.RequirePositiveInt("CancellationGraceSeconds", t.CancellationGraceSeconds)
	v.RequirePositiveFloat("BucketCapacityDefault", t.BucketCapacityDefault)
	v.RequirePositiveFloat("BucketRefillRateDefault", t.BucketRefillRateDefault)
	v.RequirePositiveInt("MaxInflightPerTenant", t.MaxInflightPerTenant)
	v.RequirePositiveInt("MaxInflightGlobal", t.MaxInflightGlobal)
	return v.Validate()
}

// CancellationGrace returns CancellationGraceSeconds as a time.Duration.
func (t Tunables) CancellationGrace() time.Duration {
	return time.Duration(t.CancellationGraceSeconds) * time.Second
}

// Window returns WindowSeconds as a time.Duration.
func (t Tunables) Window() time.Duration {
	return time.Duration(t.WindowSeconds) * time.Second
}

// Cooldown returns CooldownSeconds as a time.Duration.
func (t Tunables) Cooldown() time.Duration {
	return time.Duration(t.CooldownSeconds) * time.Second
}

// CoalescenceTTL returns CoalescenceTTLSeconds as a time.Duration.
func (t Tunables) CoalescenceTTL() time.Duration {
	return time.Duration(t.CoalescenceTTLSeconds) * time.Second
}

// ServerConfig holds the out-of-scope HTTP transport's bind settings.
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoadServerConfig loads ServerConfig from the environment under prefix.
func LoadServerConfig(prefix string) ServerConfig {
	env := NewEnvConfig(prefix)
	return ServerConfig{
		Port:            env.GetInt("PORT", 8080),
		Host:            env.GetString("HOST", "0.0.0.0"),
		ReadTimeout:     env.GetDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    env.GetDuration("WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout: env.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// StoreConfig holds connection settings for the backing stores.
type StoreConfig struct {
	RedisURL    string
	PostgresDSN string
	CouchDBURL  string
	CouchDBName string
}

// LoadStoreConfig loads StoreConfig from the environment under prefix.
func LoadStoreConfig(prefix string) StoreConfig {
	env := NewEnvConfig(prefix)
	return StoreConfig{
		RedisURL:    env.GetString("REDIS_URL", "redis://localhost:6379/0"),
		PostgresDSN: env.GetString("POSTGRES_DSN", "host=localhost user=aura dbname=aura sslmode=disable"),
		CouchDBURL:  env.GetString("COUCHDB_URL", "http://localhost:5984"),
		CouchDBName: env.GetString("COUCHDB_DATABASE", "aura_diffs"),
	}
}

// SessionConfig holds JWT/refresh-token issuance settings.
type SessionConfig struct {
	SigningSecret    string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	Issuer           string
}

// LoadSessionConfig loads SessionConfig from the environment under prefix.
func LoadSessionConfig(prefix string) SessionConfig {
	env := NewEnvConfig(prefix)
	return SessionConfig{
		SigningSecret:   env.GetString("JWT_SECRET", ""),
		AccessTokenTTL:  env.GetDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: env.GetDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		Issuer:          env.GetString("ISSUER", "aura-core"),
	}
}

// ServiceConfig holds process-identity settings used by logging.
type ServiceConfig struct {
	Name      string
	Version   string
	Env       string
	LogLevel  string
	LogFormat string
}

// LoadServiceConfig loads ServiceConfig from the environment under prefix.
func LoadServiceConfig(prefix string) ServiceConfig {
	env := NewEnvConfig(prefix)
	return ServiceConfig{
		Name:      env.GetString("NAME", "aura-core"),
		Version:   env.GetString("VERSION", "0.0.1"),
		Env:       env.GetString("ENVIRONMENT", "development"),
		LogLevel:  env.GetString("LOG_LEVEL", "info"),
		LogFormat: env.GetString("LOG_FORMAT", "text"),
	}
}

// AllConfig aggregates every configuration group the core binary loads.
type AllConfig struct {
	Tunables Tunables
	Server   ServerConfig
	Store    StoreConfig
	Session  SessionConfig
	Service  ServiceConfig
}

// Load loads and validates every configuration group under prefix.
func Load(prefix string) (*AllConfig, error) {
	cfg := &AllConfig{
		Tunables: LoadTunables(prefix),
		Server:   LoadServerConfig(prefix),
		Store:    LoadStoreConfig(prefix),
		Session:  LoadSessionConfig(prefix),
		Service:  LoadServiceConfig(prefix),
	}

	v := NewValidator()
	v.RequireString("Service.Name", cfg.Service.Name)
	v.RequireOneOf("Service.Environment", cfg.Service.Env,
		[]string{"development", "staging", "production"})
	v.RequireOneOf("Service.LogLevel", cfg.Service.LogLevel,
		[]string{"debug", "info", "warn", "error"})
	v.RequirePositiveInt("Server.Port", cfg.Server.Port)
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Tunables.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
