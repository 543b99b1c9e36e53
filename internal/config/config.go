package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string

	// MySQLHost empty means the service runs on in-memory storage.
	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	// RedisAddr empty disables the idempotency layer.
	RedisAddr string
	RedisDB   int

	IdempTTLSecs int

	// RiskPolicy selects the underwriting policy: conservative, moderate or
	// aggressive.
	RiskPolicy string

	MonitorIntervalSecs  int
	StressScenarios      []float64
	RetryAttempts        int
	RetryTimeoutMs       int
	RetryBackoffMs       int
	CreditStalenessHours int
	AssessmentTTLHours   int
	VolatilitySpike      float64
	RefinanceAdvantage   float64
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getint(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getfloat(k string, d float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return d
}

func Load() *Config {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	c := &Config{
		AppPort:   getenv("APP_PORT", "8080"),
		MySQLHost: getenv("MYSQL_HOST", ""),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "collateral_loans"),
		MySQLUser: getenv("MYSQL_USER", "collateral_loans"),
		MySQLPass: getenv("MYSQL_PASS", ""),

		RedisAddr:    getenv("REDIS_ADDR", ""),
		RedisDB:      getint("REDIS_DB", 0),
		IdempTTLSecs: getint("IDEMPOTENCY_TTL_SECONDS", 300),

		RiskPolicy:           getenv("RISK_POLICY", "moderate"),
		MonitorIntervalSecs:  getint("MONITOR_INTERVAL_SECONDS", 60),
		RetryAttempts:        getint("PROVIDER_RETRY_ATTEMPTS", 3),
		RetryTimeoutMs:       getint("PROVIDER_TIMEOUT_MS", 5000),
		RetryBackoffMs:       getint("PROVIDER_BACKOFF_MS", 200),
		CreditStalenessHours: getint("CREDIT_STALENESS_HOURS", 24),
		AssessmentTTLHours:   getint("ASSESSMENT_TTL_HOURS", 72),
		VolatilitySpike:      getfloat("VOLATILITY_SPIKE_THRESHOLD", 1.0),
		RefinanceAdvantage:   getfloat("REFINANCE_ADVANTAGE", 0.01),
	}
	c.StressScenarios = parseScenarios(os.Getenv("STRESS_SCENARIOS"))
	return c
}

// parseScenarios parses a CSV of price shocks, e.g. "-0.2,-0.4,-0.6,-0.8".
// Invalid input yields nil and the engine falls back to its default ladder.
func parseScenarios(raw string) []float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || f >= 0 || f < -1 {
			return nil
		}
		out = append(out, f)
	}
	return out
}

func (c *Config) Validate() error {
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if c.MySQLHost != "" {
		if c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
			return errors.New("missing MySQL config (MYSQL_PORT/DB/USER)")
		}
		if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
		}
	}
	switch c.RiskPolicy {
	case "conservative", "moderate", "aggressive":
	default:
		return fmt.Errorf("unknown RISK_POLICY %q", c.RiskPolicy)
	}
	if c.MonitorIntervalSecs <= 0 {
		return errors.New("MONITOR_INTERVAL_SECONDS must be positive")
	}
	if c.RetryAttempts <= 0 {
		return errors.New("PROVIDER_RETRY_ATTEMPTS must be positive")
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// multiStatements=true is handy for migrations; parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}
