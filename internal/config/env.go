package config

import "strings"

// envKeyReplacer maps nested keys to env names: portal.base_url becomes
// CAMPUSDESK_PORTAL_BASE_URL.
var envKeyReplacer = strings.NewReplacer(".", "_")
