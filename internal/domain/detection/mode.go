package detection

import "strings"

// ModeProfile holds the nominal labels the UI shows for a mode.
// They are fixed per mode and never measured.
type ModeProfile struct {
	Mode  ScanMode `json:"mode"`
	Title string   `json:"title"`
	Label string   `json:"label"`
	Time  string   `json:"time"`
}

var profiles = []ModeProfile{
	{Mode: ModeXception, Title: "Xception (SOTA)", Label: "Detailed", Time: "~120ms"},
	{Mode: ModeMobileNet, Title: "MobileNetV2 (Fast)", Label: "Fast", Time: "~42ms"},
}

// Modes returns the selectable modes in display order.
func Modes() []ModeProfile {
	out := make([]ModeProfile, len(profiles))
	copy(out, profiles)
	return out
}

// ParseMode trims s and falls back to fallback when it is empty.
// Unknown names are kept so the remote service can decide.
func ParseMode(s string, fallback ScanMode) ScanMode {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return ScanMode(s)
}

// Known reports whether m is one of the selectable modes.
func (m ScanMode) Known() bool {
	for _, p := range profiles {
		if p.Mode == m {
			return true
		}
	}
	return false
}

// Profile returns the display profile. Anything that is not Xception
// is labelled like the fast model.
func (m ScanMode) Profile() ModeProfile {
	if m == ModeXception {
		return profiles[0]
	}
	p := profiles[1]
	p.Mode = m
	return p
}

func (m ScanMode) String() string { return string(m) }
