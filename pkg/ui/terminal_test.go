package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrinterPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Info("Subscription", "42")
	p.Error("Sync failed", "rate limited")
	p.Success("done")

	out := buf.String()
	assert.Contains(t, out, "Subscription: 42")
	assert.Contains(t, out, "Sync failed: rate limited")
	assert.Contains(t, out, "done")
	// a buffer is not a terminal, so no escape codes
	assert.NotContains(t, out, "\x1b[")
}

func TestPrinterQuietKeepsErrors(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.SetQuiet(true)

	p.Info("Handle", "nasa")
	p.Warning("slow")
	p.Error("broken")

	assert.Equal(t, "broken\n", buf.String())
}

func TestPrinterTable(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Table([]string{"ID", "HANDLE"}, [][]string{{"1", "nasa"}, {"2", "esa"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.GreaterOrEqual(t, len(lines), 4)
	assert.Contains(t, buf.String(), "HANDLE")
	assert.Contains(t, buf.String(), "nasa")
	assert.Contains(t, buf.String(), "esa")
}

func TestPackagePrinterRedirect(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(&bytes.Buffer{})

	PrintLine("%d ids", 3)
	PrintWarning("careful", "cooldown")

	assert.Contains(t, buf.String(), "3 ids")
	assert.Contains(t, buf.String(), "careful: cooldown")
}
