package api

import (
	"context"
	"errors"
	"testing"

	"github.com/solatis/labelkeeper/internal/types"
)

func chocoInput() RuleInput {
	return RuleInput{
		Name:  ptr("  Choco Low "),
		Label: ptr(" Green "),
		Conditions: &[]ConditionInput{
			{KeyPath: "Product", Operator: "=", Value: types.String("Chocolate")},
			{Group: ptr(1), KeyPath: "Price", Operator: "<", Value: types.Number(2)},
		},
	}
}

func TestCreateRule_Defaults(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	rule, err := env.svc.CreateRule(ctx, "alice", chocoInput())
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if rule.Name != "Choco Low" || rule.Label != "Green" {
		t.Errorf("name/label not trimmed: %q / %q", rule.Name, rule.Label)
	}
	if rule.Priority != types.DefaultPriority {
		t.Errorf("Priority = %d, want %d", rule.Priority, types.DefaultPriority)
	}
	if !rule.Active {
		t.Error("Active = false, want true by default")
	}
	for i, c := range rule.Conditions {
		if c.GroupID != types.DefaultGroupID {
			t.Errorf("conditions[%d].GroupID = %d, want %d", i, c.GroupID, types.DefaultGroupID)
		}
	}

	stored, err := env.svc.GetRule(ctx, "alice", rule.ID)
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if stored.Label != "Green" || len(stored.Conditions) != 2 {
		t.Errorf("stored rule = %+v", stored)
	}
}

func TestCreateRule_Invalid(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	tests := []struct {
		name   string
		mutate func(*RuleInput)
	}{
		{"missing name", func(in *RuleInput) { in.Name = nil }},
		{"blank label", func(in *RuleInput) { in.Label = ptr("   ") }},
		{"no conditions", func(in *RuleInput) { in.Conditions = &[]ConditionInput{} }},
		{"absent conditions", func(in *RuleInput) { in.Conditions = nil }},
		{"bad operator", func(in *RuleInput) {
			in.Conditions = &[]ConditionInput{{KeyPath: "Price", Operator: "~", Value: types.Number(1)}}
		}},
		{"empty key path", func(in *RuleInput) {
			in.Conditions = &[]ConditionInput{{KeyPath: "", Operator: "=", Value: types.Number(1)}}
		}},
		{"negative index", func(in *RuleInput) {
			in.Conditions = &[]ConditionInput{{KeyPath: "items[-1]", Operator: "=", Value: types.Number(1)}}
		}},
		{"signed index", func(in *RuleInput) {
			in.Conditions = &[]ConditionInput{{KeyPath: "items[+0]", Operator: "=", Value: types.Number(1)}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := chocoInput()
			tt.mutate(&in)
			if _, err := env.svc.CreateRule(ctx, "alice", in); !errors.Is(err, types.ErrInvalidRule) {
				t.Errorf("CreateRule() error = %v, want ErrInvalidRule", err)
			}
		})
	}

	rs, _, err := env.svc.ListRules(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 0 {
		t.Errorf("rejected rules were stored: %d", len(rs))
	}
}

func TestCreateRule_OperatorText(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	in := chocoInput()
	in.Conditions = &[]ConditionInput{{KeyPath: "Price", Operator: " <= ", Value: types.Number(2)}}
	rule, err := env.svc.CreateRule(ctx, "alice", in)
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if rule.Conditions[0].Operator != types.OpLte {
		t.Errorf("operator = %q, want %q", rule.Conditions[0].Operator, types.OpLte)
	}

	in.Conditions = &[]ConditionInput{{KeyPath: "Price", Operator: "=>", Value: types.Number(2)}}
	_, err = env.svc.CreateRule(ctx, "alice", in)
	if !errors.Is(err, types.ErrInvalidOperator) || !errors.Is(err, types.ErrInvalidRule) {
		t.Errorf("CreateRule(=>) error = %v, want ErrInvalidRule wrapping ErrInvalidOperator", err)
	}
}

func TestUpdateRule_Partial(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	rule, err := env.svc.CreateRule(ctx, "alice", chocoInput())
	if err != nil {
		t.Fatal(err)
	}

	updated, err := env.svc.UpdateRule(ctx, "alice", rule.ID, RuleInput{Label: ptr("Yellow"), Priority: ptr(7)})
	if err != nil {
		t.Fatalf("UpdateRule() error = %v", err)
	}
	if updated.Label != "Yellow" || updated.Priority != 7 || updated.Name != "Choco Low" {
		t.Errorf("UpdateRule() = %+v", updated)
	}
	if len(updated.Conditions) != 2 {
		t.Errorf("conditions changed without being supplied: %d", len(updated.Conditions))
	}

	updated, err = env.svc.UpdateRule(ctx, "alice", rule.ID, RuleInput{Conditions: &[]ConditionInput{
		{Group: ptr(2), KeyPath: "CompanyName", Operator: "=", Value: types.String("Google")},
	}})
	if err != nil {
		t.Fatalf("UpdateRule(conditions) error = %v", err)
	}
	stored, err := env.svc.GetRule(ctx, "alice", rule.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Conditions) != 1 || stored.Conditions[0].GroupID != 2 {
		t.Errorf("stored conditions = %+v, want one condition in group 2", stored.Conditions)
	}
	if stored.Label != updated.Label {
		t.Errorf("stored label %q, returned %q", stored.Label, updated.Label)
	}
}

func TestUpdateRule_RevalidatesMergedRule(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	rule, err := env.svc.CreateRule(ctx, "alice", chocoInput())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.UpdateRule(ctx, "alice", rule.ID, RuleInput{Conditions: &[]ConditionInput{}}); !errors.Is(err, types.ErrEmptyConditions) {
		t.Errorf("UpdateRule(empty conditions) error = %v, want ErrEmptyConditions", err)
	}
	if _, err := env.svc.UpdateRule(ctx, "alice", rule.ID, RuleInput{Label: ptr("")}); !errors.Is(err, types.ErrInvalidRule) {
		t.Errorf("UpdateRule(blank label) error = %v, want ErrInvalidRule", err)
	}

	stored, err := env.svc.GetRule(ctx, "alice", rule.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Label != "Green" || len(stored.Conditions) != 2 {
		t.Errorf("rejected update modified rule: %+v", stored)
	}
}

func TestRuleOperations_NotFound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	rule, err := env.svc.CreateRule(ctx, "alice", chocoInput())
	if err != nil {
		t.Fatal(err)
	}

	// Another user's rule is invisible.
	if _, err := env.svc.UpdateRule(ctx, "bob", rule.ID, RuleInput{Label: ptr("Red")}); !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("UpdateRule(other user) error = %v", err)
	}
	if _, err := env.svc.ToggleRule(ctx, "bob", rule.ID); !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("ToggleRule(other user) error = %v", err)
	}
	if err := env.svc.DeleteRule(ctx, "bob", rule.ID); !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("DeleteRule(other user) error = %v", err)
	}

	if err := env.svc.DeleteRule(ctx, "alice", rule.ID); err != nil {
		t.Fatalf("DeleteRule() error = %v", err)
	}
	if _, err := env.svc.GetRule(ctx, "alice", rule.ID); !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("GetRule(deleted) error = %v", err)
	}
}

func TestToggleRule(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	rule, err := env.svc.CreateRule(ctx, "alice", chocoInput())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []bool{false, true, false} {
		got, err := env.svc.ToggleRule(ctx, "alice", rule.ID)
		if err != nil {
			t.Fatalf("ToggleRule() error = %v", err)
		}
		if got != want {
			t.Errorf("ToggleRule() = %v, want %v", got, want)
		}
	}
}

func TestListRules_ETag(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	rule, err := env.svc.CreateRule(ctx, "alice", chocoInput())
	if err != nil {
		t.Fatal(err)
	}

	_, first, err := env.svc.ListRules(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	_, again, err := env.svc.ListRules(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if first != again {
		t.Errorf("ETag changed without modification: %s != %s", first, again)
	}

	if _, err := env.svc.ToggleRule(ctx, "alice", rule.ID); err != nil {
		t.Fatal(err)
	}
	_, after, err := env.svc.ListRules(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if after == first {
		t.Error("ETag unchanged after toggle")
	}
}

func TestParseRuleID(t *testing.T) {
	id := types.NewRuleID()
	got, err := ParseRuleID(" " + string(id) + " ")
	if err != nil || got != id {
		t.Errorf("ParseRuleID(valid) = %q, %v", got, err)
	}
	if _, err := ParseRuleID("42"); !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("ParseRuleID(42) error = %v, want ErrRuleNotFound", err)
	}
}
