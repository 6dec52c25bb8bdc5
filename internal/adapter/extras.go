package adapter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Keys blocked from extras so credentials never ride along in scenario
// files or recorded traces. Matching is case-insensitive.
var blockedExtrasKeys = map[string]struct{}{
	"api_key":       {},
	"api_secret":    {},
	"secret":        {},
	"secret_key":    {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"password":      {},
	"authorization": {},
	"bearer":        {},
}

const (
	maxExtrasKeys = 10
	maxExtrasSize = 4096
)

// ValidateExtras checks the free-form provider extras map against the
// secret-key blocklist and size caps. A failure here aborts the whole
// suite before any trial starts.
func ValidateExtras(extras map[string]any) error {
	for key := range extras {
		if _, blocked := blockedExtrasKeys[strings.ToLower(key)]; blocked {
			return fmt.Errorf("adapter: extras key %q is blocked: secrets belong in environment variables, not extras", key)
		}
	}

	if len(extras) > maxExtrasKeys {
		return fmt.Errorf("adapter: extras has %d keys, limit is %d", len(extras), maxExtrasKeys)
	}

	serialized, err := json.Marshal(extras)
	if err != nil {
		return fmt.Errorf("adapter: extras not serializable: %w", err)
	}
	if len(serialized) > maxExtrasSize {
		return fmt.Errorf("adapter: extras serialized size %d bytes exceeds limit of %d", len(serialized), maxExtrasSize)
	}

	return nil
}
