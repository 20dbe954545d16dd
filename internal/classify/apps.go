// Package classify labels single raw signals: app names with a category and
// confidence, daily health metrics with a sleep quality score. Everything
// here is a pure function; callers supply per-user overrides explicitly.
package classify

import (
	"strings"

	"github.com/daverage/planfact/internal/timeline"
)

// Override is a per-user reclassification of one app, keyed by normalized
// app name. Applied only when its confidence clears the floor.
type Override struct {
	Title      string
	Category   timeline.Category
	Confidence float64
}

// OverrideConfidenceFloor is the minimum confidence an override needs to
// take effect.
const OverrideConfidenceFloor = 0.6

// AppClass is the classification of one app-usage signal.
type AppClass struct {
	Title         string
	Category      timeline.Category
	IsDistraction bool
	IsWork        bool
	IsProductive  bool
	Confidence    float64
}

// distractionApps are matched as substrings of the normalized app name.
var distractionApps = []string{
	"youtube", "netflix", "tiktok", "instagram", "twitter", "reddit",
	"facebook", "twitch", "snapchat", "hulu", "disney", "prime video",
	"steam", "discord", "9gag",
}

// productiveApps are matched as substrings of the normalized app name.
var productiveApps = []string{
	"xcode", "vscode", "visual studio", "intellij", "goland", "pycharm",
	"terminal", "iterm", "emacs", "vim", "figma", "notion", "obsidian",
	"linear", "jira", "confluence", "docs", "sheets", "slides", "excel",
	"word", "powerpoint", "keynote", "pages", "numbers",
}

// NormalizeAppName canonicalizes an app name for override lookup.
func NormalizeAppName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ClassifyAppUsage labels one app name. Resolution order: per-user override
// (confidence permitting), distraction list, productive list, then the
// digital default.
func ClassifyAppUsage(appName string, overrides map[string]Override) AppClass {
	normalized := NormalizeAppName(appName)

	if o, ok := overrides[normalized]; ok && o.Confidence >= OverrideConfidenceFloor {
		title := o.Title
		if title == "" {
			title = appName
		}
		isWork := o.Category == timeline.Work
		return AppClass{
			Title:         title,
			Category:      o.Category,
			IsDistraction: o.Category == timeline.Digital,
			IsWork:        isWork,
			IsProductive:  isWork,
			Confidence:    o.Confidence,
		}
	}

	for _, candidate := range distractionApps {
		if strings.Contains(normalized, candidate) {
			return AppClass{
				Title:         appName,
				Category:      timeline.Digital,
				IsDistraction: true,
				Confidence:    0.75,
			}
		}
	}

	for _, candidate := range productiveApps {
		if strings.Contains(normalized, candidate) {
			return AppClass{
				Title:        appName,
				Category:     timeline.Work,
				IsWork:       true,
				IsProductive: true,
				Confidence:   0.70,
			}
		}
	}

	return AppClass{
		Title:      appName,
		Category:   timeline.Digital,
		Confidence: 0.55,
	}
}
