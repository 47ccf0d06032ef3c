package transcript

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	emailValid   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ExtractEmail finds the first plausible email address inside free-form
// message content. Returns "" when none is present.
func ExtractEmail(content string) string {
	match := emailPattern.FindString(content)
	if match == "" {
		return ""
	}
	if !IsValidEmail(match) {
		return ""
	}
	return match
}

func IsValidEmail(email string) bool {
	return emailValid.MatchString(email) && len(email) > 5 && len(email) < 254
}
