package validation

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vinodismyname/partnerlens/internal/facts"
	"github.com/vinodismyname/partnerlens/pkg/pagination"
)

var (
	v    *validator.Validate
	once sync.Once
)

// Validator returns a singleton validator with custom rules registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New()
		// Custom: ingestible spreadsheet or exported HTML table
		_ = v.RegisterValidation("xlsx_or_html", func(fl validator.FieldLevel) bool {
			s := strings.ToLower(strings.TrimSpace(fl.Field().String()))
			if s == "" {
				return false
			}
			for _, ext := range []string{".xlsx", ".xlsm", ".xltx", ".xltm", ".html", ".htm"} {
				if strings.HasSuffix(s, ext) {
					return true
				}
			}
			return false
		})
		// Custom: calendar month number
		_ = v.RegisterValidation("month", func(fl validator.FieldLevel) bool {
			m := fl.Field().Int()
			return m >= 1 && m <= 12
		})
		// Custom: ISO calendar date, empty allowed with omitempty
		_ = v.RegisterValidation("yyyymmdd", func(fl validator.FieldLevel) bool {
			_, err := time.Parse("2006-01-02", strings.TrimSpace(fl.Field().String()))
			return err == nil
		})
		// Custom: a known metric name or alias
		_ = v.RegisterValidation("metric", func(fl validator.FieldLevel) bool {
			return facts.IsKnownMetric(fl.Field().String())
		})
		// Custom: cursor must be decodable via pagination.DecodeCursor
		_ = v.RegisterValidation("cursor", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return true // empty is allowed; use omitempty with this tag
			}
			if _, err := base64.RawURLEncoding.DecodeString(s); err != nil {
				return false
			}
			_, err := pagination.DecodeCursor(s)
			return err == nil
		})
	})
	return v
}

// ValidateStruct validates a struct and returns a user-friendly error string
// suitable for tool errors. Returns empty string when valid.
func ValidateStruct(s any) string {
	err := Validator().Struct(s)
	if err == nil {
		return ""
	}
	ve, ok := err.(validator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return "VALIDATION: invalid inputs"
	}
	fe := ve[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("VALIDATION: %s is required", field)
	case "required_with":
		return fmt.Sprintf("VALIDATION: %s is required when %s is set", field, strings.ToLower(fe.Param()))
	case "xlsx_or_html":
		return "VALIDATION: path must be an Excel workbook (.xlsx, .xlsm, .xltx, .xltm) or an HTML export (.html, .htm)"
	case "month":
		return fmt.Sprintf("VALIDATION: %s must be a month number between 1 and 12", field)
	case "yyyymmdd":
		return fmt.Sprintf("VALIDATION: %s must be a date formatted YYYY-MM-DD", field)
	case "metric":
		return fmt.Sprintf("VALIDATION: %s is not a known metric", field)
	case "cursor":
		return "CURSOR_INVALID: failed to decode cursor; restart listing from the first page"
	case "min", "max", "gte", "lte", "gt", "lt":
		return fmt.Sprintf("VALIDATION: %s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	case "oneof":
		return fmt.Sprintf("VALIDATION: %s must be one of [%s]", field, fe.Param())
	}
	return fmt.Sprintf("VALIDATION: invalid %s", field)
}
