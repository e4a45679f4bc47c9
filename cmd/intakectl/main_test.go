package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpmiddleware "github.com/wolfman30/mealprep-intake/internal/http/middleware"
	"github.com/wolfman30/mealprep-intake/internal/intake"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CATALOG_PATH", "")
	t.Setenv("ADMIN_JWT_SECRET", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCatalogListsRequiredService(t *testing.T) {
	out, err := run(t, "", "catalog")
	require.NoError(t, err)
	required := intake.DefaultCatalog().Required()
	assert.Contains(t, out, required.ID)
	assert.Contains(t, out, "(required)")
}

func TestCatalogYAMLRoundTripsThroughLoader(t *testing.T) {
	out, err := run(t, "", "catalog", "--yaml")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o600))

	quoted, err := run(t, "", "--catalog", path, "quote")
	require.NoError(t, err)
	assert.Contains(t, quoted, intake.FormatCents(intake.DefaultCatalog().Required().UnitPriceCents))
}

func TestQuoteAlwaysIncludesRequiredItem(t *testing.T) {
	catalog := intake.DefaultCatalog()
	var extra intake.LineItem
	for _, item := range catalog.Items() {
		if !item.Required {
			extra = item
			break
		}
	}
	require.NotEmpty(t, extra.ID)

	out, err := run(t, "", "quote", extra.ID, extra.ID)
	require.NoError(t, err)
	total := catalog.Total([]string{catalog.Required().ID, extra.ID})
	assert.Contains(t, out, "Total")
	assert.Contains(t, out, intake.FormatCents(total))

	_, err = run(t, "", "quote", "no-such-service")
	assert.Error(t, err)
}

func TestValidateReportsFailingFields(t *testing.T) {
	out, err := run(t, "first_name: Ada\n", "validate", "-")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errInvalidIntake))
	assert.Contains(t, out, "email")
	assert.Contains(t, out, "step 1")
}

func TestValidateRejectsUnknownKeysAndBadTypes(t *testing.T) {
	_, err := run(t, "favourite_color: blue\n", "validate", "-")
	assert.ErrorIs(t, err, intake.ErrUnknownField)

	_, err = run(t, "age: many\n", "validate", "-")
	assert.ErrorIs(t, err, intake.ErrFieldType)

	_, err = run(t, "selected_services: []\n", "validate", "-")
	assert.ErrorIs(t, err, intake.ErrRequiredItem)
}

func TestTokenMintsVerifiableToken(t *testing.T) {
	out, err := run(t, "", "token", "ops@example.com", "--secret", "s3cret", "--role", "admin")
	require.NoError(t, err)

	claims, err := httpmiddleware.ParseAdminToken("s3cret", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, "admin", claims.Role)

	_, err = run(t, "", "token", "ops@example.com")
	assert.Error(t, err)
	_, err = run(t, "", "token", "ops@example.com", "--secret", "s", "--role", "root")
	assert.Error(t, err)
}
