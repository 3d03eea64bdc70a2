package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(newViper())
	require.NoError(t, err)

	e := cfg.Engine
	assert.Equal(t, 28, e.HorizonDays)
	assert.Equal(t, 0.95, e.ServiceLevel)
	assert.Equal(t, 7, e.LeadTimeDays)
	assert.Equal(t, 0.01, e.HoldingCostPerUnitDay)
	assert.Equal(t, 0.5, e.StockoutPenaltyPerUnit)
	assert.Equal(t, 0.6, e.CostFractionOfBase)
	assert.Equal(t, []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5}, e.MarkdownGrid)
	assert.Equal(t, 90.0, e.InventoryDaysOfSupply)
	assert.Equal(t, 14.0, e.InitialOnHandDays)
	assert.Equal(t, 200, e.MaxItemsPerStore)
	assert.Equal(t, 10, e.MinItemsPerCat)
	assert.Equal(t, -1.2, e.FallbackElasticity)
	assert.Equal(t, "linear", e.Model)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "merchops", cfg.Storage.Bucket)
}

func TestFromViper_Overrides(t *testing.T) {
	v := newViper()
	v.Set("ENGINE_MARKDOWN_GRID", " 0, 0.25 ,0.5 ")
	v.Set("ENGINE_MODEL", "NAIVE")
	v.Set("ENGINE_SERVICE_LEVEL", 0.99)

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.25, 0.5}, cfg.Engine.MarkdownGrid)
	assert.Equal(t, "naive", cfg.Engine.Model)
	assert.Equal(t, 0.99, cfg.Engine.ServiceLevel)
}

func TestFromViper_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  interface{}
	}{
		{"service level at 1", "ENGINE_SERVICE_LEVEL", 1.0},
		{"zero horizon", "ENGINE_HORIZON_DAYS", 0},
		{"negative lead time", "ENGINE_LEAD_TIME_DAYS", -1},
		{"descending grid", "ENGINE_MARKDOWN_GRID", "0.2,0.1"},
		{"grid reaches 1", "ENGINE_MARKDOWN_GRID", "0,1"},
		{"unparsable grid", "ENGINE_MARKDOWN_GRID", "0,ten"},
		{"empty grid", "ENGINE_MARKDOWN_GRID", ""},
		{"zero cap", "ENGINE_MAX_ITEMS_PER_STORE", 0},
		{"unknown model", "ENGINE_MODEL", "lightgbm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			v.Set(tt.key, tt.val)
			_, err := FromViper(v)
			assert.Error(t, err)
		})
	}
}

func TestDatabaseConfig_Strings(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "m", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=m sslmode=disable", d.DSN())
	assert.Equal(t, "postgres://u:p@db:5432/m?sslmode=disable", d.URL())
}
