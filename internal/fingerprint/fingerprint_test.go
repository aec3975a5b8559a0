package fingerprint

import (
	"regexp"
	"testing"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func baseAttributes() Attributes {
	return Attributes{
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64)",
		ScreenResolution: "1920x1080",
		Locale:           "en-US",
		Timezone:         "Europe/Berlin",
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	a := Compute(baseAttributes())
	b := Compute(baseAttributes())
	if a != b {
		t.Errorf("expected identical fingerprints, got %s and %s", a, b)
	}
	if !hexDigest.MatchString(string(a)) {
		t.Errorf("fingerprint %q is not a 64 char hex digest", a)
	}
}

func TestComputeChangesWithEachInput(t *testing.T) {
	base := Compute(baseAttributes())

	mutations := map[string]func(*Attributes){
		"user agent": func(a *Attributes) { a.UserAgent += " Chrome" },
		"resolution": func(a *Attributes) { a.ScreenResolution = "2560x1440" },
		"locale":     func(a *Attributes) { a.Locale = "de-DE" },
		"timezone":   func(a *Attributes) { a.Timezone = "UTC" },
	}

	for name, mutate := range mutations {
		attrs := baseAttributes()
		mutate(&attrs)
		if Compute(attrs) == base {
			t.Errorf("changing %s did not change the fingerprint", name)
		}
	}
}

func TestComputeFieldBoundaries(t *testing.T) {
	a := Compute(Attributes{UserAgent: "ab", ScreenResolution: "c"})
	b := Compute(Attributes{UserAgent: "a", ScreenResolution: "bc"})
	if a == b {
		t.Error("shifting characters across fields must change the fingerprint")
	}
}

func TestCollectLocale(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "pt_BR.UTF-8")

	attrs := Collect(Overrides{Version: "1.2.3", ScreenResolution: "800x600"})
	if attrs.Locale != "pt-BR" {
		t.Errorf("expected pt-BR, got %s", attrs.Locale)
	}
	if attrs.ScreenResolution != "800x600" {
		t.Errorf("expected override resolution, got %s", attrs.ScreenResolution)
	}
	if attrs.Timezone == "" {
		t.Error("expected a timezone")
	}
}
