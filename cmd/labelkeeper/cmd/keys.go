package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/solatis/labelkeeper/internal/rules"
	"github.com/solatis/labelkeeper/internal/types"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys [SAMPLE_FILE|-]",
	Short: "List the key paths of a sample JSON object",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.Flags().Bool("json", false, "print keys as a JSON object")
}

func runKeys(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	data, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	sample, err := types.ParseJSON(data)
	if err != nil {
		return fmt.Errorf("parse sample: %w", err)
	}
	if sample.Kind() != types.KindObject {
		return types.ErrPayloadNotObject
	}

	keys := rules.NewEngine().Keys(sample)
	out := cmd.OutOrStdout()
	if asJSON {
		return json.NewEncoder(out).Encode(map[string][]string{"keys": keys})
	}
	for _, k := range keys {
		fmt.Fprintln(out, k)
	}
	return nil
}
