// Package entitlement decides whether a user's plan allows starting another interview.
package entitlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/hiready/internal/models"
	"github.com/yoockh/hiready/internal/utils"
)

// Rule is one independently sufficient plan condition.
type Rule struct {
	Name  string
	Check func(ctx context.Context, id *models.Identity) (bool, error)
}

// Checker answers whether an identity holds a plan flag.
type Checker interface {
	HasEntitlement(ctx context.Context, id *models.Identity, flag string) (bool, error)
}

// ActivationCounter counts a user's interviews that reached an active call.
type ActivationCounter interface {
	CountActivatedByOwner(ctx context.Context, userID string) (int64, error)
}

// Unlimited passes when the user holds the unlimited-interviews flag.
func Unlimited(c Checker) Rule {
	return Rule{
		Name: "unlimited",
		Check: func(ctx context.Context, id *models.Identity) (bool, error) {
			return c.HasEntitlement(ctx, id, models.EntitlementUnlimitedInterviews)
		},
	}
}

// SingleTrial passes when the user holds the single-interview flag and has no
// interview that ever connected.
func SingleTrial(c Checker, counter ActivationCounter) Rule {
	return Rule{
		Name: "single-trial",
		Check: func(ctx context.Context, id *models.Identity) (bool, error) {
			has, err := c.HasEntitlement(ctx, id, models.EntitlementSingleInterview)
			if err != nil || !has {
				return false, err
			}
			n, err := counter.CountActivatedByOwner(ctx, id.UserID)
			if err != nil {
				return false, fmt.Errorf("count interviews: %w", err)
			}
			return n < 1, nil
		},
	}
}

// Evaluator ORs its rules in order. The first rule returning true wins; a rule
// that errors is logged and skipped. No rule passing means false.
type Evaluator struct {
	rules []Rule
	log   *logrus.Logger
}

func NewEvaluator(log *logrus.Logger, rules ...Rule) *Evaluator {
	if log == nil {
		log = logrus.New()
	}
	return &Evaluator{rules: rules, log: log}
}

func (e *Evaluator) CanCreate(ctx context.Context, id *models.Identity) bool {
	if id == nil || id.UserID == "" {
		return false
	}
	for _, r := range e.rules {
		ok, err := r.Check(ctx, id)
		if err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"rule":    r.Name,
				"user_id": id.UserID,
			}).Warn("entitlement rule failed")
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// UserSource loads the stored user row.
type UserSource interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
}

type claimsOrStore struct {
	users UserSource
}

// NewChecker checks token claims first and falls back to entitlements stored on
// the user row. A missing row means no stored entitlements. users may be nil.
func NewChecker(users UserSource) Checker {
	return &claimsOrStore{users: users}
}

func (c *claimsOrStore) HasEntitlement(ctx context.Context, id *models.Identity, flag string) (bool, error) {
	if id == nil {
		return false, nil
	}
	if id.Has(flag) {
		return true, nil
	}
	if c.users == nil {
		return false, nil
	}
	u, err := c.users.GetByID(ctx, id.UserID)
	if errors.Is(err, utils.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, e := range u.Entitlements {
		if e == flag {
			return true, nil
		}
	}
	return false, nil
}
