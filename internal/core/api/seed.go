package api

import (
	"context"

	"github.com/solatis/labelkeeper/internal/types"
)

// Demo account created by SeedDemo.
const (
	DemoUserID types.UserID = "demo_user"
	demoEmail               = "demo@example.com"
	demoName                = "Demo"
)

func demoRules() []types.Rule {
	chocolate := types.Condition{GroupID: 1, Operator: types.OpEq, KeyPath: "Product", Value: types.String("Chocolate")}
	return []types.Rule{
		{
			Name: "Choco Low", Label: "Green", Priority: 10, Active: true,
			Conditions: []types.Condition{
				chocolate,
				{GroupID: 1, Operator: types.OpLt, KeyPath: "Price", Value: types.Number(2)},
			},
		},
		{
			Name: "Choco Mid", Label: "Yellow", Priority: 20, Active: true,
			Conditions: []types.Condition{
				chocolate,
				{GroupID: 1, Operator: types.OpGte, KeyPath: "Price", Value: types.Number(2)},
				{GroupID: 1, Operator: types.OpLt, KeyPath: "Price", Value: types.Number(5)},
			},
		},
		{
			Name: "Choco High", Label: "Red", Priority: 30, Active: true,
			Conditions: []types.Condition{
				chocolate,
				{GroupID: 1, Operator: types.OpGte, KeyPath: "Price", Value: types.Number(5)},
			},
		},
		{
			// (CompanyName = Google) OR (CompanyName = Amazon AND Price < 2.5)
			Name: "Company Price Rule", Label: "Green", Priority: 5, Active: true,
			Conditions: []types.Condition{
				{GroupID: 1, Operator: types.OpEq, KeyPath: "CompanyName", Value: types.String("Google")},
				{GroupID: 2, Operator: types.OpEq, KeyPath: "CompanyName", Value: types.String("Amazon")},
				{GroupID: 2, Operator: types.OpLt, KeyPath: "Price", Value: types.Number(2.5)},
			},
		},
	}
}

// SeedDemo creates the demo user and, if that user has no rules yet, the
// demo rule set. Returns the number of rules created.
func (s *LabelService) SeedDemo(ctx context.Context) (int, error) {
	if err := s.store.EnsureUserProfile(ctx, DemoUserID, demoEmail, demoName); err != nil {
		return 0, err
	}
	existing, err := s.store.ListRules(ctx, DemoUserID)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	created := 0
	for _, r := range demoRules() {
		r.UserID = DemoUserID
		if _, err := s.store.CreateRule(ctx, r); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
