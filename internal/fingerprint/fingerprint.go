// Package fingerprint derives a stable device identifier from local attributes.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// Fingerprint is a 64 character lowercase hex SHA-256 digest.
type Fingerprint string

// Attributes are the device properties the fingerprint is computed from.
type Attributes struct {
	UserAgent        string `json:"userAgent"`
	ScreenResolution string `json:"screenResolution"`
	Locale           string `json:"locale"`
	Timezone         string `json:"timezone"`
}

// Compute returns the fingerprint of attrs. Identical inputs always yield the
// identical digest. Fields are length-prefixed so that moving characters
// between adjacent fields changes the digest.
func Compute(attrs Attributes) Fingerprint {
	h := sha256.New()
	for _, field := range []string{attrs.UserAgent, attrs.ScreenResolution, attrs.Locale, attrs.Timezone} {
		fmt.Fprintf(h, "%d:%s|", len(field), field)
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// Overrides supplies attributes the agent cannot discover on its own.
type Overrides struct {
	Version          string
	ScreenResolution string
}

// Collect gathers the attributes of the machine the agent runs on.
func Collect(o Overrides) Attributes {
	version := o.Version
	if version == "" {
		version = "dev"
	}
	return Attributes{
		UserAgent:        fmt.Sprintf("enchanted-push-agent/%s (%s; %s)", version, runtime.GOOS, runtime.GOARCH),
		ScreenResolution: o.ScreenResolution,
		Locale:           locale(),
		Timezone:         time.Local.String(),
	}
}

func locale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			// en_US.UTF-8 -> en-US
			v, _, _ = strings.Cut(v, ".")
			return strings.ReplaceAll(v, "_", "-")
		}
	}
	return "und"
}
