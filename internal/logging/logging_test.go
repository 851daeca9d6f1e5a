package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/shoenig/test/must"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Output: &buf})
	must.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "pool", "p1")

	must.StrNotContains(t, buf.String(), "hidden")
	must.StrContains(t, buf.String(), "capledger: shown: pool=p1")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{JSON: true, Output: &buf})
	must.NoError(t, err)

	logger.Info("ledger loaded", "pools", 2)

	var entry map[string]interface{}
	must.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	must.Eq(t, "ledger loaded", entry["@message"])
	must.Eq(t, "capledger", entry["@module"])
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	must.ErrorContains(t, err, `invalid log level "loud"`)
}
