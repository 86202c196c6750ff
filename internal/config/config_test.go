package config

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/datastore"
	"github.com/spf13/viper"
)

const sampleConfig = `
http:
  address: 127.0.0.1:9090
log:
  format: console
store:
  id: 7
  max_history: 50
schemas:
  - id: notes
    fields:
      - name: title
        type: text
      - name: pinned
        type: boolean
      - name: priority
        type: number
        default: 3
      - name: createdBy
        type: string
      - name: attachments
        type: list
      - name: labels
        type: map
      - name: settings
        type: register
        default:
          theme: dark
`

func mustViper(t *testing.T, content string) *viper.Viper {
	t.Helper()
	configViper := NewViper()
	configViper.SetConfigType("yaml")
	if err := configViper.ReadConfig(bytes.NewBufferString(content)); err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	return configViper
}

func TestLoadReadsFileAndDefaults(testContext *testing.T) {
	cfg, err := Load(mustViper(testContext, sampleConfig))
	if err != nil {
		testContext.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != "127.0.0.1:9090" || cfg.LogFormat != LogFormatConsole || cfg.LogLevel != "info" {
		testContext.Fatalf("unexpected config %#v", cfg)
	}
	if cfg.StoreID != 7 || cfg.MaxHistory != 50 || !cfg.History {
		testContext.Fatalf("unexpected store config %#v", cfg)
	}
	if cfg.TokenTTL != 30*time.Minute || cfg.Issuer != "datastore" || cfg.Audience != "datastore-api" {
		testContext.Fatalf("unexpected auth config %#v", cfg)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		testContext.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if len(cfg.Schemas) != 1 || len(cfg.Schemas[0].Fields) != 7 {
		testContext.Fatalf("unexpected schema definitions %#v", cfg.Schemas)
	}
	if err := cfg.RequireSigningSecret(); !errors.Is(err, ErrInvalidConfig) {
		testContext.Fatalf("expected missing signing secret error, got %v", err)
	}
}

func TestLoadHonorsEnvironment(testContext *testing.T) {
	testContext.Setenv("DATASTORE_AUTH_SIGNING_SECRET", "from-env")
	testContext.Setenv("DATASTORE_STORE_HISTORY", "false")
	cfg, err := Load(mustViper(testContext, sampleConfig))
	if err != nil {
		testContext.Fatalf("unexpected load error: %v", err)
	}
	if cfg.SigningSecret != "from-env" || cfg.History {
		testContext.Fatalf("expected environment overrides, got %#v", cfg)
	}
	if err := cfg.RequireSigningSecret(); err != nil {
		testContext.Fatalf("unexpected signing secret error: %v", err)
	}
}

func TestLoadRejectsInvalidValues(testContext *testing.T) {
	testCases := []struct {
		name string
		key  string
		bad  any
	}{
		{name: "log format", key: "log.format", bad: "xml"},
		{name: "negative history", key: "store.max_history", bad: -1},
		{name: "zero ttl", key: "auth.token_ttl_minutes", bad: 0},
		{name: "empty address", key: "http.address", bad: " "},
		{name: "store id", key: "store.id", bad: -3},
	}
	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(t *testing.T) {
			configViper := mustViper(t, sampleConfig)
			configViper.Set(testCase.key, testCase.bad)
			if _, err := Load(configViper); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadRequiresSchemas(testContext *testing.T) {
	if _, err := Load(NewViper()); !errors.Is(err, ErrInvalidConfig) {
		testContext.Fatalf("expected ErrInvalidConfig without schemas, got %v", err)
	}
}

func TestBuildSchemasMapsFieldTypes(testContext *testing.T) {
	cfg, err := Load(mustViper(testContext, sampleConfig))
	if err != nil {
		testContext.Fatalf("unexpected load error: %v", err)
	}
	schemas, err := BuildSchemas(cfg.Schemas)
	if err != nil {
		testContext.Fatalf("unexpected build error: %v", err)
	}
	fields := schemas[0].Fields
	expectedKinds := map[string]datastore.FieldKind{
		"title":       datastore.KindText,
		"pinned":      datastore.KindRegister,
		"priority":    datastore.KindRegister,
		"createdBy":   datastore.KindRegister,
		"attachments": datastore.KindList,
		"labels":      datastore.KindMap,
		"settings":    datastore.KindRegister,
	}
	for name, kind := range expectedKinds {
		field, ok := fields[name]
		if !ok || field.Kind() != kind {
			testContext.Fatalf("expected field %s of kind %s", name, kind)
		}
	}

	store, err := datastore.NewStore(datastore.StoreConfig{Schemas: schemas})
	if err != nil {
		testContext.Fatalf("unexpected store error: %v", err)
	}
	table, err := store.TableByID("notes")
	if err != nil {
		testContext.Fatalf("unexpected table error: %v", err)
	}
	if _, err := datastore.Transact(store, func() error {
		return table.Update(datastore.TableUpdate{"n1": {"pinned": true}})
	}); err != nil {
		testContext.Fatalf("unexpected transaction error: %v", err)
	}
	record, _ := table.Get("n1")
	if record.Value("priority") != float64(3) {
		testContext.Fatalf("expected numeric default 3, got %v", record.Value("priority"))
	}
	settings, ok := record.Value("settings").(map[string]any)
	if !ok || settings["theme"] != "dark" {
		testContext.Fatalf("expected register default, got %v", record.Value("settings"))
	}
}

func TestBuildSchemasRejectsBadDefinitions(testContext *testing.T) {
	testCases := []struct {
		name       string
		definition SchemaDefinition
	}{
		{name: "unknown type", definition: SchemaDefinition{ID: "s", Fields: []FieldDefinition{{Name: "a", Type: "blob"}}}},
		{name: "duplicate field", definition: SchemaDefinition{ID: "s", Fields: []FieldDefinition{{Name: "a", Type: "text"}, {Name: "a", Type: "map"}}}},
		{name: "text default", definition: SchemaDefinition{ID: "s", Fields: []FieldDefinition{{Name: "a", Type: "text", Default: "x"}}}},
		{name: "bad number", definition: SchemaDefinition{ID: "s", Fields: []FieldDefinition{{Name: "a", Type: "number", Default: "many"}}}},
	}
	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(t *testing.T) {
			if _, err := BuildSchemas([]SchemaDefinition{testCase.definition}); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
