// Package discount holds discount-code rules and the eligibility validator.
//
// Validation and redemption are deliberately separate: the validator only
// answers "would this code apply, and for how much" — the usage claim happens
// inside the order commit transaction so a code can never be redeemed twice
// by concurrent checkouts.
package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/streetfare/orderline/internal/domain/order"
)

// Kind enumerates the supported discount strategies.
type Kind string

const (
	// KindPercentage applies a percentage of the subtotal, capped at the subtotal.
	KindPercentage Kind = "percentage"
	// KindFixed applies a fixed monetary amount, capped at the subtotal.
	KindFixed Kind = "fixed"
)

// Code status values.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Rejection reasons, in the order the checks run.
const (
	ReasonNotFound             = "CODE_NOT_FOUND"
	ReasonExpired              = "CODE_EXPIRED"
	ReasonUsageLimitReached    = "USAGE_LIMIT_REACHED"
	ReasonAlreadyUsed          = "ALREADY_USED"
	ReasonBelowMinimumSpend    = "BELOW_MINIMUM_SPEND"
	ReasonOrderTypeNotEligible = "ORDER_TYPE_NOT_ELIGIBLE"
	ReasonNotApplicableToItems = "NOT_APPLICABLE_TO_ITEMS"
)

// ReasonCheckFailed is not an eligibility verdict: it reports that the code
// could not be checked at all (storage failure). The discount is simply not
// applied for this pricing pass.
const ReasonCheckFailed = "CODE_CHECK_FAILED"

// ErrCodeNotFound is returned by repositories when no code row exists.
var ErrCodeNotFound = errors.New("discount code not found")

// Code is a discount rule as stored in the back office. This core reads it;
// only the usage count is ever mutated here, and only inside an order commit.
type Code struct {
	Code                  string
	Kind                  Kind
	Value                 decimal.Decimal
	Description           string
	ValidFrom             *time.Time
	ValidUntil            *time.Time
	UsageLimit            int // 0 means unlimited
	PerUserLimit          int // 0 means unlimited
	MinimumSpend          decimal.Decimal
	ApplicableOrderTypes  []order.Type
	ApplicableCategoryIDs []string
	ApplicableItemIDs     []string
	Status                string
	UsageCount            int
}

// LineRef identifies one cart line for category/item scoping checks.
type LineRef struct {
	ItemID     string
	CategoryID string
}

// Request is one eligibility check against a priced cart.
type Request struct {
	Code      string
	Subtotal  decimal.Decimal
	OrderType order.Type
	OwnerID   string
	Lines     []LineRef
}

// Outcome is the validator's answer. A rejected outcome carries a reason code
// and a human message; it never blocks checkout by itself — the cart can
// still be purchased at full price.
type Outcome struct {
	Approved bool
	Amount   decimal.Decimal
	Reason   string
	Message  string
}

// Repository provides discount-code lookups. Usage claiming lives on the
// order repository because it must share the commit transaction.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Code, error)
	// CountOwnerUses returns how many committed orders by this owner have
	// redeemed the code.
	CountOwnerUses(ctx context.Context, code, ownerID string) (int, error)
}
