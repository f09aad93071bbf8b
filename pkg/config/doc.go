// Package config provides application configuration management from
// environment variables and the provider registry file.
//
// # Environment
//
// Server settings:
//
//	FEDERATE_HOST="0.0.0.0"
//	FEDERATE_PORT="8080"
//	FEDERATE_HEALTH_PORT="9090"
//	FEDERATE_READ_TIMEOUT="15s"
//	FEDERATE_WRITE_TIMEOUT="30s"
//
// Storage settings:
//
//	FEDERATE_POSTGRES_URL="postgres://localhost/federate?sslmode=disable"
//	FEDERATE_POSTGRES_REPLICA_URLS="postgres://replica1/federate,postgres://replica2/federate"
//	FEDERATE_POSTGRES_MAX_CONNS="20"
//	FEDERATE_REDIS_URL="redis://localhost:6379"  # sessions live in Postgres when unset
//
// Session settings:
//
//	FEDERATE_SESSION_TTL="24h"
//	FEDERATE_SESSION_CLEANUP_SCHEDULE="@every 15m"
//	FEDERATE_COOKIE_SECURE="true"
//
// Federation settings:
//
//	FEDERATE_PROVIDERS_FILE="/etc/federate/providers.yaml"
//	FEDERATE_IDP_TIMEOUT="10s"
//	FEDERATE_DEFAULT_ROLE_TTL="1m"
//	FEDERATE_LOGIN_RATE_LIMIT="30"  # per client per FEDERATE_LOGIN_RATE_WINDOW, 0 disables
//
// Observability settings:
//
//	FEDERATE_LOG_LEVEL="info"  # debug, info, warn, error
//	FEDERATE_METRICS_ENABLED="true"
//	FEDERATE_OTEL_ENABLED="true"
//	FEDERATE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Providers file
//
//	providers:
//	  - id: github
//	    type: github
//	    client_id: abc
//	    client_secret: ${GITHUB_CLIENT_SECRET}
//	  - id: corp
//	    type: oauth2
//	    client_id: federate
//	    client_secret: ${CORP_CLIENT_SECRET}
//	    token_endpoint: https://idp.corp/token
//	    userinfo_endpoint: https://idp.corp/userinfo
//	    user_mapping:
//	      email: $.email
//	      id: $.sub
//	    group_mappings:
//	      - condition: $.department == "eng"
//	        groups: [developers]
//	users:
//	  - username: admin
//	    roles: [ADMIN]
//	bootstrap:
//	  groups: [developers]
//	  roles:
//	    - {name: USER, scope: API, default: true}
//	    - {name: USER, scope: APPLICATION, default: true}
package config
