package registration

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// PhoneCountries maps each selectable phone country to its national number
// length. Zero means any length from 7 to 15 digits.
var PhoneCountries = map[string]int{
	"US": 10,
	"CA": 10,
	"PR": 10,
	"DO": 10,
	"CO": 10,
	"MX": 0,
	"ES": 0,
	"GB": 0,
}

// MinimumAge is the youngest a patient may be to register.
const MinimumAge = 18

// Validate reports whether field id holds a valid value in s. It reads only
// s and now, so the same snapshot always gives the same answer. Unknown
// fields are never valid.
func Validate(id FieldID, s *FormState, now time.Time) bool {
	spec, ok := catalog[id]
	if !ok {
		return false
	}
	if spec.validate != nil {
		return spec.validate(s, now)
	}
	return truthy(spec.get(s))
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case bool:
		return t
	case int:
		return t != 0
	case float64:
		return t != 0
	case []string:
		return len(t) > 0
	}
	return true
}

func textLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}

func minLen(n int) func(string) bool {
	return func(v string) bool { return textLen(v) >= n }
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Identity
// ---------------------------------------------------------------------------

func validName(v string) bool { return textLen(v) >= 2 }

func validMonth(m int) bool { return m >= 1 && m <= 12 }

func validDay(d int) bool { return d >= 1 && d <= 31 }

func validDOBYear(s *FormState, now time.Time) bool {
	y := s.Identity.DOBYear
	return y >= 1900 && y <= now.Year()
}

// AgeOn returns the age in whole years on now of someone born on the given
// date, counting a birthday that falls today.
func AgeOn(year, month, day int, now time.Time) int {
	age := now.Year() - year
	if int(now.Month()) < month || (int(now.Month()) == month && now.Day() < day) {
		age--
	}
	return age
}

func validDateOfBirth(s *FormState, now time.Time) bool {
	id := s.Identity
	if !validMonth(id.DOBMonth) || !validDay(id.DOBDay) || !validDOBYear(s, now) {
		return false
	}
	return AgeOn(id.DOBYear, id.DOBMonth, id.DOBDay, now) >= MinimumAge
}

// validSSN accepts exactly nine digits once dashes and spaces are removed.
func validSSN(v string) bool {
	stripped := strings.NewReplacer("-", "", " ", "").Replace(v)
	if len(stripped) != 9 {
		return false
	}
	return digitsOnly(stripped) == stripped
}

var extractedDOBLayouts = []string{"01/02/2006", "1/2/2006", "2006-01-02"}

// ParseExtractedDOB reads a date printed on an ID as MM/DD/YYYY or
// YYYY-MM-DD.
func ParseExtractedDOB(v string) (year, month, day int, ok bool) {
	v = strings.TrimSpace(v)
	for _, layout := range extractedDOBLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Year(), int(t.Month()), t.Day(), true
		}
	}
	return 0, 0, 0, false
}

func validExtractedDOB(v string) bool {
	_, _, _, ok := ParseExtractedDOB(v)
	return ok
}

// ---------------------------------------------------------------------------
// Contact
// ---------------------------------------------------------------------------

func validEmail(v string) bool {
	return emailPattern.MatchString(strings.TrimSpace(v))
}

func validPhoneCountry(v string) bool {
	_, ok := PhoneCountries[strings.ToUpper(strings.TrimSpace(v))]
	return ok
}

// ValidPhone checks the digits of phone against the length rule for
// country. Unsupported countries never validate.
func ValidPhone(phone, country string) bool {
	want, ok := PhoneCountries[strings.ToUpper(strings.TrimSpace(country))]
	if !ok {
		return false
	}
	n := len(digitsOnly(phone))
	if want > 0 {
		return n == want
	}
	return n >= 7 && n <= 15
}

func validContactPhone(s *FormState, _ time.Time) bool {
	return ValidPhone(s.Contact.Phone, s.Contact.PhoneCountry)
}

func validEmergencyPhone(s *FormState, _ time.Time) bool {
	return ValidPhone(s.Contact.EmergencyContactPhone, s.Contact.PhoneCountry)
}

// ---------------------------------------------------------------------------
// Medical
// ---------------------------------------------------------------------------

func validWeight(w float64) bool { return w > 0 }

func validHeightFeet(f int) bool { return f >= 3 && f <= 8 }

func validHeightInches(in *int) bool { return in != nil && *in >= 0 && *in <= 11 }

// validHeight needs feet; unset inches count as zero.
func validHeight(s *FormState, _ time.Time) bool {
	m := s.Medical
	if m.HeightFeet <= 0 || !validHeightFeet(m.HeightFeet) {
		return false
	}
	return m.HeightInches == nil || validHeightInches(m.HeightInches)
}

func validPainLevel(p int) bool { return p >= 1 && p <= 9 }

// ---------------------------------------------------------------------------
// Veteran
// ---------------------------------------------------------------------------

func validBranch(v string) bool {
	for _, b := range Branches {
		if v == b {
			return true
		}
	}
	return false
}
