package ledger

import (
	"time"

	"github.com/mcclellann/fredCredit/pkg/models"
	"github.com/mcclellann/fredCredit/pkg/money"
	"github.com/shopspring/decimal"
)

// reserveCredit commits amount of the customer's limit to a new loan.
func reserveCredit(c *models.Customer, amount decimal.Decimal, now time.Time) error {
	available := c.AvailableCredit()
	if available.LessThan(amount) {
		return invalid("Customer does not have enough credit limit. Available: %s, Requested: %s",
			available.StringFixed(money.Places), amount.StringFixed(money.Places))
	}
	c.UsedCreditLimit = c.UsedCreditLimit.Add(amount)
	c.UpdatedAt = now
	return nil
}

// releaseCredit returns a settled loan's principal to the customer's
// available credit. Used credit never drops below zero.
func releaseCredit(c *models.Customer, amount decimal.Decimal, now time.Time) {
	c.UsedCreditLimit = money.Max(c.UsedCreditLimit.Sub(amount), decimal.Zero)
	c.UpdatedAt = now
}
