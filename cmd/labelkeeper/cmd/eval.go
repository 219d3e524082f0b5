package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/solatis/labelkeeper/internal/core/api"
	"github.com/solatis/labelkeeper/internal/rules"
	"github.com/solatis/labelkeeper/internal/types"
	"github.com/spf13/cobra"
)

var evalCmd = &cobra.Command{
	Use:   "eval --rules FILE [RECORD_FILE|-]",
	Short: "Classify a JSON record against rules from a file, without a database",
	Long: `Reads a JSON array of rules (the format returned by GET /api/rules or
accepted by POST /api/rules) and classifies one JSON object record.
The record is read from RECORD_FILE, or from stdin when omitted or "-".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEval,
}

// fileRule is a rule as written in a rules file. Missing ids are generated
// from the rule's position.
type fileRule struct {
	ID types.RuleID `json:"id"`
	api.RuleInput
}

type evalOutput struct {
	Labels         []string       `json:"labels"`
	AppliedRuleIDs []types.RuleID `json:"applied_rule_ids"`
}

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().String("rules", "", "JSON file with an array of rules")
	evalCmd.Flags().Bool("single", false, "keep only the best matching rule")
	_ = evalCmd.MarkFlagRequired("rules")
}

func runEval(cmd *cobra.Command, args []string) error {
	rulesPath, _ := cmd.Flags().GetString("rules")
	single, _ := cmd.Flags().GetBool("single")

	ruleSet, err := loadRuleFile(rulesPath)
	if err != nil {
		return err
	}

	data, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	record, err := types.ParseJSON(data)
	if err != nil {
		return fmt.Errorf("parse record: %w", err)
	}
	if record.Kind() != types.KindObject {
		return types.ErrPayloadNotObject
	}

	result := rules.NewEngine().Classify(record, ruleSet, single)
	out := evalOutput{Labels: []string{}, AppliedRuleIDs: []types.RuleID{}}
	out.Labels = append(out.Labels, result.Labels...)
	out.AppliedRuleIDs = append(out.AppliedRuleIDs, result.RuleIDs...)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// loadRuleFile reads, validates and returns the active rules of path.
func loadRuleFile(path string) ([]types.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	var entries []fileRule
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}

	ruleSet := make([]types.Rule, 0, len(entries))
	for i, entry := range entries {
		rule, err := api.NewRule("", entry.RuleInput)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		rule.ID = entry.ID
		if rule.ID == "" {
			rule.ID = types.RuleID(fmt.Sprintf("rule-%03d", i+1))
		}
		if err := rules.ValidateRule(rule); err != nil {
			return nil, fmt.Errorf("rules[%d] (%s): %w", i, rule.ID, err)
		}
		if rule.Active {
			ruleSet = append(ruleSet, rule)
		}
	}
	return ruleSet, nil
}

// readInput returns the contents of args[0], or stdin when absent or "-".
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), types.MaxPayloadSize+1))
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		if len(data) > types.MaxPayloadSize {
			return nil, types.ErrPayloadTooLarge
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return data, nil
}
