// Package validate holds the pure input validators shared by every endpoint.
package validate

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Reason codes reported by validators.
const (
	ReasonRequired         = "required"
	ReasonEmailTooLong     = "email_too_long"
	ReasonEmailFormat      = "email_format"
	ReasonPasswordShort    = "password_too_short"
	ReasonPasswordLong     = "password_too_long"
	ReasonPasswordSpace    = "password_whitespace"
	ReasonPasswordUpper    = "password_missing_uppercase"
	ReasonPasswordLower    = "password_missing_lowercase"
	ReasonPasswordDigit    = "password_missing_digit"
	ReasonUserIDFormat     = "user_id_format"
	ReasonUnknownPlan      = "unknown_plan"
	ReasonAmountMismatch   = "amount_mismatch"
	ReasonUnknownPayType   = "unknown_pay_type"
	ReasonTooLong          = "too_long"
	maxEmailLength         = 254
	maxEmailLocalLength    = 64
	maxEmailLabelLength    = 63
	minPasswordLength      = 8
	maxPasswordLength      = 128
	emailLocalSpecialChars = "!#$%&'*+/=?^_`{|}~.-"
)

// Error is a user-visible validation failure.
type Error struct {
	Field   string
	Reason  string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(field, reason, format string, args ...any) *Error {
	return &Error{Field: field, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

var structValidator = validator.New()

// Email trims and lowercases raw and checks it against a conservative
// subset of RFC 5322 addresses.
func Email(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", newError("email", ReasonRequired, "Email is required")
	}
	if len(email) > maxEmailLength {
		return "", newError("email", ReasonEmailTooLong, "Email must be at most %d characters", maxEmailLength)
	}
	if strings.Count(email, "@") != 1 {
		return "", invalidEmail()
	}
	local, domain, _ := strings.Cut(email, "@")
	if !validLocalPart(local) || !validDomain(domain) {
		return "", invalidEmail()
	}
	return email, nil
}

func invalidEmail() *Error {
	return newError("email", ReasonEmailFormat, "Invalid email format")
}

func validLocalPart(local string) bool {
	if local == "" || len(local) > maxEmailLocalLength {
		return false
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return false
	}
	for _, r := range local {
		if r > unicode.MaxASCII {
			return false
		}
		if isASCIIAlnum(r) || strings.ContainsRune(emailLocalSpecialChars, r) {
			continue
		}
		return false
	}
	return true
}

func validDomain(domain string) bool {
	if !strings.Contains(domain, ".") || strings.Contains(domain, "..") {
		return false
	}
	labels := strings.Split(domain, ".")
	for _, label := range labels {
		if label == "" || len(label) > maxEmailLabelLength {
			return false
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		for _, r := range label {
			if !isASCIIAlnum(r) && r != '-' {
				return false
			}
		}
	}
	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// Password enforces length, whitespace, and character-class rules. Each
// failing rule carries its own reason code.
func Password(password string) error {
	n := utf8.RuneCountInString(password)
	if n == 0 {
		return newError("password", ReasonRequired, "Password is required")
	}
	if n < minPasswordLength {
		return newError("password", ReasonPasswordShort, "Password must be at least %d characters", minPasswordLength)
	}
	if n > maxPasswordLength {
		return newError("password", ReasonPasswordLong, "Password must be at most %d characters", maxPasswordLength)
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsSpace(r):
			return newError("password", ReasonPasswordSpace, "Password must not contain whitespace")
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	switch {
	case !hasUpper:
		return newError("password", ReasonPasswordUpper, "Password must contain an uppercase letter")
	case !hasLower:
		return newError("password", ReasonPasswordLower, "Password must contain a lowercase letter")
	case !hasDigit:
		return newError("password", ReasonPasswordDigit, "Password must contain a digit")
	}
	return nil
}

// UserID accepts a canonical 8-4-4-4-12 hex UUID in any case and returns it
// lowercased.
func UserID(raw string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	if id == "" {
		return "", newError("user_id", ReasonRequired, "User ID is required")
	}
	if err := structValidator.Var(id, "uuid"); err != nil {
		return "", newError("user_id", ReasonUserIDFormat, "Invalid user ID format")
	}
	return id, nil
}

// Prices maps plan ids to their canonical price.
type Prices map[string]decimal.Decimal

// Plan ids.
const (
	PlanProMonthly = "pro_monthly"
	PlanProYearly  = "pro_yearly"
	PlanLifetime   = "lifetime"
)

// DefaultPrices returns the canonical CNY price list.
func DefaultPrices() Prices {
	return Prices{
		PlanProMonthly: decimal.RequireFromString("29.00"),
		PlanProYearly:  decimal.RequireFromString("199.00"),
		PlanLifetime:   decimal.RequireFromString("1200.00"),
	}
}

// WithOverrides returns a copy of p with the configured prices applied.
func (p Prices) WithOverrides(overrides map[string]string) (Prices, error) {
	out := make(Prices, len(p))
	for k, v := range p {
		out[k] = v
	}
	for plan, raw := range overrides {
		if _, ok := out[plan]; !ok {
			return nil, fmt.Errorf("validate: price override for unknown plan %q", plan)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("validate: invalid price %q for plan %q", raw, plan)
		}
		out[plan] = price
	}
	return out, nil
}

// PlanType checks plan against the known plan ids and returns its price.
func PlanType(plan string, prices Prices) (decimal.Decimal, error) {
	plan = strings.TrimSpace(plan)
	if plan == "" {
		return decimal.Decimal{}, newError("plan_type", ReasonRequired, "Plan type is required")
	}
	price, ok := prices[plan]
	if !ok {
		return decimal.Decimal{}, newError("plan_type", ReasonUnknownPlan, "Unknown plan type: %s", plan)
	}
	return price, nil
}

// PaymentAmount requires amount to be within one cent of the canonical price
// of plan.
func PaymentAmount(plan string, amount decimal.Decimal, prices Prices) error {
	price, err := PlanType(plan, prices)
	if err != nil {
		return err
	}
	if !amount.Sub(price).Abs().LessThan(amountTolerance) {
		return newError("money", ReasonAmountMismatch, "Amount %s does not match plan price %s", amount.StringFixed(2), price.StringFixed(2))
	}
	return nil
}

var amountTolerance = decimal.New(1, -2)

// Payment channels accepted by order creation.
const (
	PayTypeAlipay = "alipay"
	PayTypeWxPay  = "wxpay"
	PayTypeStripe = "stripe"
)

// PayType normalizes the requested payment channel, defaulting to alipay.
func PayType(raw string) (string, error) {
	switch v := strings.ToLower(strings.TrimSpace(raw)); v {
	case "":
		return PayTypeAlipay, nil
	case PayTypeAlipay, PayTypeWxPay, PayTypeStripe:
		return v, nil
	default:
		return "", newError("pay_type", ReasonUnknownPayType, "Unsupported payment type: %s", raw)
	}
}
