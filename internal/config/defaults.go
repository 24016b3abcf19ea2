package config

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults registers a default for every key. Registration is also what
// makes a key overridable from the environment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("storage.root", "")
	v.SetDefault("storage.site_name", "default")

	v.SetDefault("sharing.secret", "")
	v.SetDefault("sharing.max_ttl", time.Duration(0))

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 720*time.Hour)
	v.SetDefault("auth.database_url", "")
	v.SetDefault("auth.admin_password", "")

	v.SetDefault("oidc.issuer_url", "")
	v.SetDefault("oidc.client_id", "")
	v.SetDefault("oidc.admin_claim", "is_admin")
	v.SetDefault("oidc.admin_value", "true")

	v.SetDefault("limits.requests_per_minute", 0)
	v.SetDefault("limits.share_requests_per_minute", 60)
}
