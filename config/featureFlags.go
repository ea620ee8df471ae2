package config

import (
	"os"
	"strings"
	"time"
)

// SyncLockTimeout bounds how long a sync or completion waits on a job lock
// before failing with a retryable conflict.
//
// Set via env:
// - SYNC_LOCK_TIMEOUT_SECONDS=30
func SyncLockTimeout() time.Duration {
	n := intFromEnv("SYNC_LOCK_TIMEOUT_SECONDS", 30)
	if n <= 0 {
		n = 30
	}
	return time.Duration(n) * time.Second
}

// InventoryNameFallback keeps matching inventory lines by case-insensitive name
// when a line carries no item id. Legacy jobs were written before items had ids.
//
// Set via env:
// - INVENTORY_NAME_FALLBACK=false to require ids
func InventoryNameFallback() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("INVENTORY_NAME_FALLBACK")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// PhoneDefaultRegion is the region used to parse customer phone numbers without a country prefix.
func PhoneDefaultRegion() string {
	v := strings.ToUpper(strings.TrimSpace(os.Getenv("PHONE_DEFAULT_REGION")))
	if v == "" {
		return "US"
	}
	return v
}

// SettingsCacheTTL is the redis lifetime of cached organization settings.
func SettingsCacheTTL() time.Duration {
	n := intFromEnv("SETTINGS_CACHE_TTL_SECONDS", 300)
	if n < 0 {
		n = 0
	}
	return time.Duration(n) * time.Second
}
