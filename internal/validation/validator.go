package validation

import (
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/storefront-payments/internal/money"
)

// New returns a configured validator with the money tag and struct-level
// rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// "money": a finite, positive decimal amount given as number or string
	_ = v.RegisterValidation("money", func(fl validatorv10.FieldLevel) bool {
		_, err := money.Parse(fl.Field().String())
		return err == nil
	})

	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})
	v.RegisterStructValidation(emailStructValidation, EmailRequest{})

	return v
}

// createOrderStructValidation verifies the items total equals Amount in
// minor units.
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)
	if len(req.Items) == 0 {
		return
	}
	amount, err := money.Parse(string(req.Amount))
	if err != nil {
		return // reported by the money tag
	}

	sum := decimal.Zero
	for _, it := range req.Items {
		price, err := money.Parse(string(it.Price))
		if err != nil {
			return
		}
		sum = sum.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	if money.ToMinor(sum) != money.ToMinor(amount) {
		sl.ReportError(req.Amount, "amount", "Amount", "amount_match_items",
			fmt.Sprintf("items sum %s != amount %s", sum.StringFixed(2), amount.StringFixed(2)))
	}
}

func emailStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(EmailRequest)
	if req.Text == "" && req.HTML == "" {
		sl.ReportError(req.Text, "text", "Text", "required_without", "HTML")
	}
}
