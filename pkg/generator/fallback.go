package generator

// fallbackResponses are the canned encouragements returned when the
// reflection call cannot reach the model. The reflection path never
// surfaces an error; one of these is always display-ready.
var fallbackResponses = []string{ //nolint:gochecknoglobals // Fixed message set
	"Showing up to reflect is a win in itself. Rest well, and let's make tomorrow count.",
	"Every day you review your progress, you're building the habit that matters most. Keep going.",
	"Progress is rarely a straight line. What you did today still moved you forward.",
	"Thanks for checking in. Small consistent steps beat big bursts, and you're taking them.",
	"You took time to think about your day, and that's how momentum is built. See you tomorrow.",
}

// quotaSuffix is appended to a fallback response when the failure was
// specifically quota-classified.
const quotaSuffix = " (The daily AI quota has been reached, so this is a stock note; personalized responses return tomorrow.)"
