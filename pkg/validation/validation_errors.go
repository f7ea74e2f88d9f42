package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldLabels maps struct field names to user-facing labels
var FieldLabels = map[string]string{
	"Name":            "Name",
	"Phone":           "Phone number",
	"Password":        "Password",
	"Role":            "Role",
	"Address":         "Address",
	"WorkType":        "Work type",
	"BusinessName":    "Business name",
	"Pincode":         "Pincode",
	"Age":             "Age",
	"ExperienceYears": "Experience (years)",

	"Title":       "Job title",
	"SkillNeeded": "Skill needed",
	"Location":    "Location",
	"Pay":         "Pay",
	"Duration":    "Duration",

	"JobID":           "Job",
	"WorkerID":        "Worker",
	"ApplicationID":   "Application",
	"SenderID":        "Sender",
	"Message":         "Message",
	"ClientMessageID": "Client message id",
}

// FormatValidationErrors converts validator.ValidationErrors to user-friendly messages
func FormatValidationErrors(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		// Not a validation error, return generic message
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatSingleError(e))
	}
	return messages
}

// Message joins the formatted errors into one line for API responses.
func Message(err error) string {
	return strings.Join(FormatValidationErrors(err), "; ")
}

func formatSingleError(e validator.FieldError) string {
	label := getFieldLabel(e.Field())
	param := e.Param()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", label)
	case "min":
		if e.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at least %s characters", label, param)
		}
		return fmt.Sprintf("%s must be at least %s", label, param)
	case "max":
		if e.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", label, param)
		}
		return fmt.Sprintf("%s must be at most %s", label, param)
	case "gte":
		return fmt.Sprintf("%s must be %s or more", label, param)
	case "lte":
		return fmt.Sprintf("%s must be %s or less", label, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", label, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, strings.ReplaceAll(param, " ", ", "))
	case "uuid":
		return fmt.Sprintf("%s must be a UUID", label)
	case "valid_name":
		return fmt.Sprintf("%s may only contain letters, spaces and . ' -", label)
	case "valid_phone":
		return fmt.Sprintf("%s must be 7-15 digits, optionally starting with +", label)
	case "valid_pincode":
		return fmt.Sprintf("%s must be a 6 digit pincode", label)
	default:
		return fmt.Sprintf("%s is invalid (%s)", label, e.Tag())
	}
}

// getFieldLabel returns the user-friendly label for a field
func getFieldLabel(fieldName string) string {
	if label, ok := FieldLabels[fieldName]; ok {
		return label
	}
	return formatCamelCase(fieldName)
}

// formatCamelCase converts CamelCase to spaced words
func formatCamelCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune(' ')
		}
		result.WriteRune(r)
	}
	return result.String()
}
