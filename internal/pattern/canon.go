package pattern

import "regexp"

var (
	nonDigit = regexp.MustCompile(`\D`)

	canonForms = []*regexp.Regexp{
		regexp.MustCompile(`^(02)(\d{3,4})(\d{4})$`),
		regexp.MustCompile(`^(050\d)(\d{4})(\d{4})$`),
		regexp.MustCompile(`^(0\d{2})(\d{3,4})(\d{4})$`),
		regexp.MustCompile(`^(070)(\d{4})(\d{4})$`),
		regexp.MustCompile(`^(01[016789])(\d{3,4})(\d{4})$`),
	}
)

// CanonicalPhone rewrites a matched phone as dash-separated Korean
// groups (02-123-4567, 0507-1234-5678, 031-123-4567, 010-1234-5678).
// Numbers that fit no known layout come back as bare digits when at
// least 8 long, else "".
func CanonicalPhone(phone string) string {
	digits := nonDigit.ReplaceAllString(phone, "")
	if digits == "" {
		return ""
	}
	for _, re := range canonForms {
		if m := re.FindStringSubmatch(digits); m != nil {
			return m[1] + "-" + m[2] + "-" + m[3]
		}
	}
	if len(digits) >= 8 {
		return digits
	}
	return ""
}
