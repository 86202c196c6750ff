package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/config"
	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/datastore"
	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/metrics"
	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/scheduler"
	"go.uber.org/zap"
)

type hostedStore struct {
	store datastore.Datastore
	loop  *scheduler.Loop
}

// openStore builds the configured store on a fresh scheduler loop and wires
// the metrics collector to its notifications.
func openStore(appConfig config.AppConfig, logger *zap.Logger, collector *metrics.Collector) (hostedStore, error) {
	schemas, err := config.BuildSchemas(appConfig.Schemas)
	if err != nil {
		return hostedStore{}, err
	}

	restoreState := ""
	if appConfig.SnapshotPath != "" {
		content, err := os.ReadFile(appConfig.SnapshotPath)
		if err != nil {
			return hostedStore{}, fmt.Errorf("read snapshot: %w", err)
		}
		restoreState = string(content)
	}

	loop := scheduler.NewLoop()
	storeConfig := datastore.StoreConfig{
		Schemas:      schemas,
		StoreID:      appConfig.StoreID,
		RestoreState: restoreState,
		MaxHistory:   appConfig.MaxHistory,
		Scheduler:    loop,
		Logger:       logger.Named("datastore"),
	}
	if collector != nil {
		storeConfig.AutoCloseHook = collector.ObserveAutoClose
	}

	var store datastore.Datastore
	if appConfig.History {
		store, err = datastore.NewHistoryStore(storeConfig)
	} else {
		store, err = datastore.NewStore(storeConfig)
	}
	if err != nil {
		return hostedStore{}, err
	}
	if collector != nil {
		store.Changed().Connect(collector.Observe)
	}
	return hostedStore{store: store, loop: loop}, nil
}

func validateSchemas(out io.Writer, definitions []config.SchemaDefinition) error {
	schemas, err := config.BuildSchemas(definitions)
	if err != nil {
		return err
	}
	if err := datastore.ValidateSchemas(schemas); err != nil {
		fmt.Fprintln(out, err.Error())
		return err
	}
	for _, schema := range schemas {
		fmt.Fprintf(out, "%s: %s\n", schema.ID, strings.Join(schema.FieldNames(), ", "))
	}
	return nil
}
