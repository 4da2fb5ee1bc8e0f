package customvalidator

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/parts-pp/parts-pp-sub000/pkg/money"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

var (
	vinRe    = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{11,17}$`)
	yyyymmRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
)

// RegisterCustomValidations adds the bot's domain rules to v.
func RegisterCustomValidations(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"vin":      isVIN,
		"sa_phone": isSaudiPhone,
		"money":    isMoney,
		"yyyymm":   isYearMonth,
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

// New returns a validator with the custom rules registered.
func New() *validator.Validate {
	v := validator.New()
	if err := RegisterCustomValidations(v); err != nil {
		panic(err)
	}
	return v
}

// isVIN accepts 11 to 17 characters; older vehicles carry short chassis numbers.
func isVIN(fl validator.FieldLevel) bool {
	return vinRe.MatchString(strings.ToUpper(strings.TrimSpace(fl.Field().String())))
}

func isSaudiPhone(fl validator.FieldLevel) bool {
	return utils.NormalizeSaudiPhone(fl.Field().String()) != ""
}

func isMoney(fl validator.FieldLevel) bool {
	_, err := money.Parse(fl.Field().String())
	return err == nil
}

func isYearMonth(fl validator.FieldLevel) bool {
	return yyyymmRe.MatchString(fl.Field().String())
}
