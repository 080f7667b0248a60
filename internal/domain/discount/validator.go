package discount

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Validator checks a discount code against eligibility rules and computes
// the discount amount. It never mutates state.
type Validator interface {
	Validate(ctx context.Context, req Request) (Outcome, error)
}

// RepoValidator implements Validator over a Repository lookup. The checks run
// in a fixed order and short-circuit on the first failure.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate runs the eligibility checks for req. A rejection is reported in
// the Outcome, not as an error; the returned error is reserved for storage
// failures.
func (v *RepoValidator) Validate(ctx context.Context, req Request) (Outcome, error) {
	code, err := v.repo.FindByCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return rejected(ReasonNotFound, fmt.Sprintf("discount code %q not found", req.Code)), nil
		}
		return Outcome{}, errors.Wrap(err, "lookup discount code")
	}
	if code.Status != StatusActive {
		return rejected(ReasonNotFound, fmt.Sprintf("discount code %q not found", req.Code)), nil
	}

	now := v.now()
	if code.ValidFrom != nil && now.Before(*code.ValidFrom) {
		return rejected(ReasonExpired, "discount code is not yet valid"), nil
	}
	if code.ValidUntil != nil && now.After(*code.ValidUntil) {
		return rejected(ReasonExpired, "discount code has expired"), nil
	}

	if code.UsageLimit > 0 && code.UsageCount >= code.UsageLimit {
		return rejected(ReasonUsageLimitReached, "discount code has reached its usage limit"), nil
	}

	if code.PerUserLimit > 0 {
		uses, err := v.repo.CountOwnerUses(ctx, code.Code, req.OwnerID)
		if err != nil {
			return Outcome{}, errors.Wrap(err, "count owner uses")
		}
		if uses >= code.PerUserLimit {
			return rejected(ReasonAlreadyUsed, "you have already used this discount code"), nil
		}
	}

	if code.MinimumSpend.IsPositive() && req.Subtotal.LessThan(code.MinimumSpend) {
		return rejected(ReasonBelowMinimumSpend,
			fmt.Sprintf("order must be at least %s to use this code", code.MinimumSpend.StringFixed(2))), nil
	}

	if len(code.ApplicableOrderTypes) > 0 && !slices.Contains(code.ApplicableOrderTypes, req.OrderType) {
		return rejected(ReasonOrderTypeNotEligible,
			fmt.Sprintf("discount code does not apply to %s orders", req.OrderType)), nil
	}

	if !scopeMatches(code, req.Lines) {
		return rejected(ReasonNotApplicableToItems, "discount code does not apply to any item in the cart"), nil
	}

	return Outcome{
		Approved: true,
		Amount:   Amount(code, req.Subtotal),
	}, nil
}

// scopeMatches checks category/item scoping: when either scope list is
// non-empty, at least one cart line must match one of them.
func scopeMatches(code *Code, lines []LineRef) bool {
	if len(code.ApplicableCategoryIDs) == 0 && len(code.ApplicableItemIDs) == 0 {
		return true
	}
	for _, line := range lines {
		if slices.Contains(code.ApplicableItemIDs, line.ItemID) {
			return true
		}
		if slices.Contains(code.ApplicableCategoryIDs, line.CategoryID) {
			return true
		}
	}
	return false
}

// Amount computes the discount amount for an approved code against the
// subtotal. The result is never negative and never exceeds the subtotal.
func Amount(code *Code, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch code.Kind {
	case KindPercentage:
		amount = subtotal.Mul(code.Value).Div(hundred)
	case KindFixed:
		amount = code.Value
	default:
		return decimal.Zero
	}
	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}

func rejected(reason, message string) Outcome {
	return Outcome{
		Approved: false,
		Amount:   decimal.Zero,
		Reason:   reason,
		Message:  message,
	}
}
