package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lanehq/possync/internal/entity"
	"github.com/lanehq/possync/internal/output"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <entity>",
	Short: "Queue an entity for sync",
	Long: `Adds an entity to the durable retry queue. The request survives
restarts and is retried until a sync succeeds, so this works offline:
the next daemon start restores the queue and drains it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := entity.ID(args[0])

		eng, database, _, err := buildEngine()
		if err != nil {
			return err
		}
		defer database.Close()

		// Validate before persisting: a typo'd entity would be dropped by
		// the processor with only a log line to show for it.
		if _, err := entity.DefaultRegistry().Describe(id); err != nil {
			if jsonOut {
				output.JSONError(output.ErrCodeInvalidInput, err.Error())
			} else {
				output.Error("%v", err)
			}
			return err
		}

		eng.Enqueue(id)

		if jsonOut {
			return output.JSON(map[string]any{
				"status":  "queued",
				"entity":  id,
				"pending": eng.Queue().Len(),
			})
		}
		output.Success("%s queued (%d pending)", id, eng.Queue().Len())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}
