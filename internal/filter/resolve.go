package filter

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Record is a worker profile as loose key/value data. Profiles reach the
// directory from several registration forms, so the same logical field may
// live under different keys or types.
type Record map[string]any

// NumberAccessor extracts a numeric field from a record.
type NumberAccessor func(r Record, now time.Time) (float64, bool)

// StringAccessor extracts a string field from a record.
type StringAccessor func(r Record) (string, bool)

// Resolution chains, tried in order. The first accessor that yields a value wins.
var (
	AgeChain = []NumberAccessor{
		numberKey("age"),
		numberKey("workerAge"),
		numberKey("ageYears"),
		ageFromBirthDate("dateOfBirth"),
		ageFromBirthDate("dob"),
		ageFromBirthDate("birthDate"),
	}

	ExperienceChain = []NumberAccessor{
		numberKey("experienceYears"),
		numberKey("experience"),
		numberKey("yearsOfExperience"),
		numberKey("yearsExperience"),
		numberKey("expYears"),
		numberKey("exp"),
	}

	PincodeChain = []StringAccessor{
		stringKey("pincode"),
		stringKey("pinCode"),
		stringKey("postalCode"),
		stringKey("postal_code"),
		stringKey("zip"),
		stringKey("zipCode"),
	}
)

// ResolveNumber walks a chain and reports whether any accessor produced a value.
func ResolveNumber(r Record, chain []NumberAccessor, now time.Time) (float64, bool) {
	for _, get := range chain {
		if v, ok := get(r, now); ok {
			return v, true
		}
	}
	return 0, false
}

// ResolveString walks a chain and reports whether any accessor produced a value.
func ResolveString(r Record, chain []StringAccessor) (string, bool) {
	for _, get := range chain {
		if v, ok := get(r); ok {
			return v, true
		}
	}
	return "", false
}

var leadingNumber = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)`)

func numberKey(key string) NumberAccessor {
	return func(r Record, _ time.Time) (float64, bool) {
		return toNumber(r[key])
	}
}

func stringKey(key string) StringAccessor {
	return func(r Record) (string, bool) {
		switch v := r[key].(type) {
		case nil:
			return "", false
		case string:
			s := strings.TrimSpace(v)
			return s, s != ""
		case *string:
			if v == nil {
				return "", false
			}
			s := strings.TrimSpace(*v)
			return s, s != ""
		default:
			// Pincodes stored as numbers compare as their integer text.
			if n, ok := toNumber(v); ok && n == math.Trunc(n) {
				return strconv.FormatInt(int64(n), 10), true
			}
			return "", false
		}
	}
}

func ageFromBirthDate(key string) NumberAccessor {
	return func(r Record, now time.Time) (float64, bool) {
		raw, ok := r[key].(string)
		if !ok || strings.TrimSpace(raw) == "" {
			return 0, false
		}
		var dob time.Time
		var err error
		for _, layout := range []string{"2006-01-02", time.RFC3339, "02-01-2006", "02/01/2006"} {
			if dob, err = time.Parse(layout, strings.TrimSpace(raw)); err == nil {
				break
			}
		}
		if err != nil || dob.After(now) {
			return 0, false
		}
		years := now.Year() - dob.Year()
		if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
			years--
		}
		return float64(years), true
	}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n)
	case *int:
		if n == nil {
			return 0, false
		}
		return float64(*n), true
	case *float64:
		if n == nil {
			return 0, false
		}
		return *n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		// "5", "5.5", "5 years"
		m := leadingNumber.FindStringSubmatch(n)
		if m == nil {
			return 0, false
		}
		f, err := strconv.ParseFloat(m[1], 64)
		return f, err == nil
	}
	return 0, false
}
