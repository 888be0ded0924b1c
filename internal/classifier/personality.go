package classifier

import (
	"math/rand/v2"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

// Picker chooses one line of flavor text. It must never influence zone logic.
type Picker func(pool []string) string

// RandomPicker picks uniformly at random.
func RandomPicker(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[rand.IntN(len(pool))] //nolint:gosec // flavor text, not security sensitive
}

// FirstPicker always returns the first entry. Useful in tests and the CLI.
func FirstPicker(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[0]
}

var personalityPools = map[model.Zone][]string{
	model.ZoneStat: {
		"Doctor, I've detected a potentially urgent item. This one needs your attention.",
		"Sentinel alert: High-priority message detected. Please review promptly.",
	},
	model.ZoneToday: {
		"Zzzzip! Sorted! This one needs attention today!",
		"Input received! Routing to TODAY - action needed soon!",
	},
	model.ZoneThisWeek: {
		"Scanning... analyzing... okay! This can wait a few days.",
		"Sorted! This one goes to THIS WEEK - no rush!",
	},
	model.ZoneLater: {
		"Zoom zoom! Low priority detected! Filing to LATER!",
		"Input processed! This one can definitely wait!",
	},
}

// unsureMessage is shown when nothing matched and the email went to the default bucket.
const unsureMessage = "Hmm... I'm not sure about this one. Putting it in THIS_WEEK for your review!"

var correctionThanks = []string{
	"Thank you! Correction received! Updating my circuits!",
	"Oh! I love learning from you! Adjustment logged!",
	"Correction accepted! My triage pathways are sharper already!",
}
