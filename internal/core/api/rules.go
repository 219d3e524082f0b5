package api

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/solatis/labelkeeper/internal/rules"
	"github.com/solatis/labelkeeper/internal/types"
)

// ConditionInput is the wire form of a condition. A missing group joins
// the default group; a missing value is JSON null.
type ConditionInput struct {
	Group    *int        `json:"group,omitempty"`
	KeyPath  string      `json:"key_path"`
	Operator string      `json:"operator"`
	Value    types.Value `json:"value"`
}

// RuleInput is the body of create and update requests. Nil fields are
// absent: create applies defaults, update keeps the stored value.
type RuleInput struct {
	Name       *string           `json:"name"`
	Label      *string           `json:"label"`
	Priority   *int              `json:"priority"`
	Active     *bool             `json:"active"`
	Conditions *[]ConditionInput `json:"conditions"`
}

// ConditionView is the wire form of a stored condition.
type ConditionView struct {
	Group    int         `json:"group"`
	KeyPath  string      `json:"key_path"`
	Operator string      `json:"operator"`
	Value    types.Value `json:"value"`
}

// RuleView is the wire form of a stored rule.
type RuleView struct {
	ID         types.RuleID    `json:"id"`
	Name       string          `json:"name"`
	Label      string          `json:"label"`
	Priority   int             `json:"priority"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
	Conditions []ConditionView `json:"conditions"`
}

// NewRuleView converts a domain rule for the wire.
func NewRuleView(r types.Rule) RuleView {
	conds := make([]ConditionView, len(r.Conditions))
	for i, c := range r.Conditions {
		conds[i] = ConditionView{
			Group:    c.GroupID,
			KeyPath:  c.KeyPath,
			Operator: string(c.Operator),
			Value:    c.Value,
		}
	}
	return RuleView{
		ID:         r.ID,
		Name:       r.Name,
		Label:      r.Label,
		Priority:   r.Priority,
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
		Conditions: conds,
	}
}

// NewRuleViews converts a rule list; never returns nil.
func NewRuleViews(rs []types.Rule) []RuleView {
	views := make([]RuleView, len(rs))
	for i, r := range rs {
		views[i] = NewRuleView(r)
	}
	return views
}

// ListRules returns the user's rules in ascending priority order and an
// ETag over their content. The same rules always produce the same ETag.
func (s *LabelService) ListRules(ctx context.Context, user types.UserID) ([]types.Rule, string, error) {
	if err := s.store.EnsureUser(ctx, user); err != nil {
		return nil, "", err
	}
	rs, err := s.store.ListRules(ctx, user)
	if err != nil {
		return nil, "", err
	}
	etag, err := computeETag(rs)
	if err != nil {
		return nil, "", err
	}
	return rs, etag, nil
}

// GetRule returns one of the user's rules.
func (s *LabelService) GetRule(ctx context.Context, user types.UserID, id types.RuleID) (types.Rule, error) {
	return s.store.GetRule(ctx, user, id)
}

// CreateRule admits and stores a new rule. Name, label and conditions are
// required; priority defaults to 100 and active to true.
func (s *LabelService) CreateRule(ctx context.Context, user types.UserID, in RuleInput) (types.Rule, error) {
	rule, err := NewRule(user, in)
	if err != nil {
		return types.Rule{}, err
	}
	if err := rules.ValidateRule(rule); err != nil {
		return types.Rule{}, err
	}
	if err := s.store.EnsureUser(ctx, user); err != nil {
		return types.Rule{}, err
	}
	return s.store.CreateRule(ctx, rule)
}

// UpdateRule applies the fields present in in to an existing rule.
// Conditions, when present, replace the stored set. The merged rule must
// pass the same admission checks as a new one.
func (s *LabelService) UpdateRule(ctx context.Context, user types.UserID, id types.RuleID, in RuleInput) (types.Rule, error) {
	rule, err := s.store.GetRule(ctx, user, id)
	if err != nil {
		return types.Rule{}, err
	}
	if err := applyInput(&rule, in); err != nil {
		return types.Rule{}, err
	}
	if err := rules.ValidateRule(rule); err != nil {
		return types.Rule{}, err
	}
	if err := s.store.UpdateRule(ctx, rule); err != nil {
		return types.Rule{}, err
	}
	return rule, nil
}

// DeleteRule removes one of the user's rules.
func (s *LabelService) DeleteRule(ctx context.Context, user types.UserID, id types.RuleID) error {
	return s.store.DeleteRule(ctx, user, id)
}

// ToggleRule flips a rule's active flag and returns the new value.
func (s *LabelService) ToggleRule(ctx context.Context, user types.UserID, id types.RuleID) (bool, error) {
	return s.store.ToggleRule(ctx, user, id)
}

// ParseRuleID validates a rule id taken from a request path.
func ParseRuleID(raw string) (types.RuleID, error) {
	id, err := types.ParseRuleID(strings.TrimSpace(raw))
	if err != nil {
		// Not a UUID, so no such rule can exist.
		return "", fmt.Errorf("%w: %q", types.ErrRuleNotFound, raw)
	}
	return id, nil
}

// NewRule builds an unsaved rule from in, applying the create defaults.
// Unknown operators are rejected; everything else is left to
// rules.ValidateRule.
func NewRule(user types.UserID, in RuleInput) (types.Rule, error) {
	rule := types.Rule{
		UserID:   user,
		Priority: types.DefaultPriority,
		Active:   true,
	}
	if err := applyInput(&rule, in); err != nil {
		return types.Rule{}, err
	}
	return rule, nil
}

func applyInput(rule *types.Rule, in RuleInput) error {
	if in.Name != nil {
		rule.Name = strings.TrimSpace(*in.Name)
	}
	if in.Label != nil {
		rule.Label = strings.TrimSpace(*in.Label)
	}
	if in.Priority != nil {
		rule.Priority = *in.Priority
	}
	if in.Active != nil {
		rule.Active = *in.Active
	}
	if in.Conditions != nil {
		conds := make([]types.Condition, len(*in.Conditions))
		for i, c := range *in.Conditions {
			group := types.DefaultGroupID
			if c.Group != nil {
				group = *c.Group
			}
			op, err := rules.ParseOperator(c.Operator)
			if err != nil {
				return fmt.Errorf("%w: conditions[%d]: %w", types.ErrInvalidRule, i, err)
			}
			conds[i] = types.Condition{
				GroupID:  group,
				Operator: op,
				KeyPath:  strings.TrimSpace(c.KeyPath),
				Value:    c.Value,
			}
		}
		rule.Conditions = conds
	}
	return nil
}

// computeETag hashes the wire form of rules.
func computeETag(rs []types.Rule) (string, error) {
	data, err := json.Marshal(NewRuleViews(rs))
	if err != nil {
		return "", fmt.Errorf("encode rules: %w", err)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf(`"%x"`, sum[:16]), nil
}
