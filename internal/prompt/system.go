package prompt

// systemPrompt returns the system-role message content for the given PromptType.
func systemPrompt(pt PromptType) string {
	switch pt {
	case TypeChangeReport:
		return changeReportSystem
	default:
		return narrativeSystem
	}
}

// narrativeSystem is the system prompt for TypeNarrative.
const narrativeSystem = `You rewrite machine-extracted evidence about a JSON document into a short, readable summary.

Rules:
1. Use only facts stated in the evidence bullets; never add values, fields or counts
2. Keep every number exactly as given
3. Mention the JSON path in parentheses when you state a fact taken from a bullet
4. Values shown as "[REDACTED]" were masked on purpose; do not guess them
5. Prefer plain sentences over lists, and stay under 120 words
6. If the evidence is thin, say so instead of speculating`

// changeReportSystem is the system prompt for TypeChangeReport.
const changeReportSystem = `You describe the difference between a baseline JSON document and its current version, using machine-extracted evidence.

Rules:
1. Use only facts stated in the evidence bullets; never add values, fields or counts
2. Lead with what was added or changed, then what was removed
3. Keep every path and number exactly as given
4. Removed paths exist only in the baseline; describe them as removed, not missing
5. Values shown as "[REDACTED]" were masked on purpose; do not guess them
6. Stay under 120 words`
