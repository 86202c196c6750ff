package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/datastore"
	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/scheduler"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	replayOpTransaction = "transaction"
	replayOpUndo        = "undo"
	replayOpRedo        = "redo"

	replayDrainCycles = 8
)

var errNoHistoryTarget = errors.New("replay: store has no undo history")

type replayStep struct {
	Op      string          `json:"op"`
	Updates json.RawMessage `json:"updates"`
}

func newReplayCommand() *cobra.Command {
	var scriptPath string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Apply a scripted list of transactions, undos and redos and print the final snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			script, err := os.ReadFile(scriptPath)
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}
			hosted, err := openStore(appConfig, logger, nil)
			if err != nil {
				return err
			}
			defer hosted.store.Dispose()

			if err := replayScript(hosted.store, hosted.loop, script, logger); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hosted.store.String())
			return err
		},
	}
	cmd.Flags().StringVar(&scriptPath, "script", "", "Path to the JSON replay script")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

// replayScript applies each step and drains the loop after it, so every step
// ends at a scheduling boundary.
func replayScript(store datastore.Datastore, loop *scheduler.Loop, script []byte, logger *zap.Logger) error {
	var steps []replayStep
	if err := json.Unmarshal(script, &steps); err != nil {
		return fmt.Errorf("parse script: %w", err)
	}
	for index, step := range steps {
		if err := applyReplayStep(store, step); err != nil {
			return fmt.Errorf("step %d (%s): %w", index, step.Op, err)
		}
		loop.Drain(replayDrainCycles)
		logger.Debug("replay step applied",
			zap.Int("step", index),
			zap.String("op", step.Op),
			zap.Uint64("version", store.Version()))
	}
	return nil
}

func applyReplayStep(store datastore.Datastore, step replayStep) error {
	switch step.Op {
	case replayOpTransaction:
		updates, err := datastore.DecodeChangeRequest(step.Updates, func(schemaID string) (datastore.Schema, error) {
			table, err := store.TableByID(schemaID)
			if err != nil {
				return datastore.Schema{}, err
			}
			return table.Schema(), nil
		})
		if err != nil {
			return err
		}
		_, err = datastore.Transact(store, func() error {
			for _, table := range store.Tables() {
				if update, ok := updates[table.Schema().ID]; ok {
					if err := table.Update(update); err != nil {
						return err
					}
				}
			}
			return nil
		})
		return err
	case replayOpUndo:
		targets, ok := store.(*datastore.HistoryStore)
		if !ok {
			return errNoHistoryTarget
		}
		target, ok := targets.UndoTarget()
		if !ok {
			return datastore.ErrNothingToUndo
		}
		return store.Undo(target)
	case replayOpRedo:
		targets, ok := store.(*datastore.HistoryStore)
		if !ok {
			return errNoHistoryTarget
		}
		target, ok := targets.RedoTarget()
		if !ok {
			return datastore.ErrNothingToRedo
		}
		return store.Redo(target)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}
