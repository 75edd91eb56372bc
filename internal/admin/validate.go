package admin

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/memohai/chatgate/internal/apperr"
)

// Custom validator tags.
const (
	tagPassword = "chat_password"
	tagUsername = "chat_username"
	tagEmail    = "chat_email"
	tagName     = "chat_name"
)

const minPasswordLength = 10

var (
	usernamePattern = regexp.MustCompile(`^[a-z][a-z0-9._-]{2,21}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	namePattern     = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
)

var fieldReasons = map[string]string{
	tagPassword: "should be at least 10 characters including upper case, lower case, digits and symbols",
	tagUsername: "must begin with a lower case letter and contain 3 to 22 lower case letters, digits, '.', '_' or '-'",
	tagEmail:    "is not a valid email address",
	tagName:     "may only contain letters, digits and hyphens",
	"required":  "is required",
}

func newValidator() *validator.Validate {
	v := validator.New()
	lo.Must0(v.RegisterValidation(tagPassword, func(fl validator.FieldLevel) bool {
		return PasswordComplex(fl.Field().String())
	}))
	lo.Must0(v.RegisterValidation(tagUsername, func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	}))
	lo.Must0(v.RegisterValidation(tagEmail, func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	}))
	lo.Must0(v.RegisterValidation(tagName, func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	}))
	return v
}

var validate = newValidator()

// PasswordComplex reports whether s has at least 10 characters with an ASCII upper case
// letter, an ASCII lower case letter, a digit and a symbol that is neither a letter, a
// digit nor an underscore in any script.
func PasswordComplex(s string) bool {
	if len([]rune(s)) < minPasswordLength || strings.ContainsRune(s, '\n') {
		return false
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_':
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// check validates one value against tag and converts the failure to a ValidationError.
func check(field, value, tag string) error {
	err := validate.Var(value, "required,"+tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if reason, ok := fieldReasons[verrs[0].Tag()]; ok {
			return apperr.Validation(field, reason)
		}
	}
	return apperr.Validation(field, err.Error())
}

// ValidatePassword checks the password policy.
func ValidatePassword(password string) error { return check("password", password, tagPassword) }

// ValidateUsername checks the username pattern.
func ValidateUsername(username string) error { return check("username", username, tagUsername) }

// ValidateEmail checks the email pattern.
func ValidateEmail(email string) error { return check("email", email, tagEmail) }

// ValidateName checks a team or channel name.
func ValidateName(field, name string) error { return check(field, name, tagName) }

// ValidateNewUser runs the password, username and email checks in that order and returns
// the first failure.
func ValidateNewUser(in NewUser) error {
	if err := ValidatePassword(in.Password); err != nil {
		return err
	}
	if err := ValidateUsername(in.Username); err != nil {
		return err
	}
	return ValidateEmail(in.Email)
}
