package quota

import (
	"database/sql"
	"fmt"

	"github.com/lightspan-ai/gateway/pkg/config"
)

// NewLimitersFromConfig builds the configured limiter list. db may be nil
// when no SQL-backed limiter is configured; with a database every limiter is
// SQL-backed, otherwise limiters fall back to in-memory accounting.
func NewLimitersFromConfig(cfg *config.QuotaConfig, db *sql.DB, dialect string) ([]Limiter, error) {
	limiters := make([]Limiter, 0, len(cfg.Limiters))
	for _, lc := range cfg.Limiters {
		scope, err := scopeForType(lc.Type)
		if err != nil {
			return nil, err
		}

		if db != nil {
			l, err := NewSQLLimiter(db, dialect, lc.Name, scope, lc.InitialQuota, lc.Period)
			if err != nil {
				return nil, fmt.Errorf("failed to create quota limiter %q: %w", lc.Name, err)
			}
			limiters = append(limiters, l)
			continue
		}
		limiters = append(limiters, NewMemoryLimiter(lc.Name, scope, lc.InitialQuota, lc.Period))
	}
	return limiters, nil
}

func scopeForType(t string) (string, error) {
	switch t {
	case "user_limiter":
		return ScopeUser, nil
	case "cluster_limiter":
		return ScopeCluster, nil
	default:
		return "", fmt.Errorf("unknown quota limiter type: %s", t)
	}
}
