package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "repval/pkg/domain-errors"
)

func TestLoad(t *testing.T) {
	s, err := Load("emir-refit-1")
	require.NoError(t, err)

	assert.Len(t, s.Fields(), FieldCount)
	assert.Len(t, s.FieldNames(), FieldCount)

	cp1, ok := s.Field("counterparty_1")
	require.True(t, ok)
	assert.True(t, cp1.Mandatory)
	assert.Equal(t, CategoryIdentifier, cp1.Category)
	assert.Equal(t, "LEI_FORMAT", cp1.FormatRuleID)

	isin, ok := s.Field("isin")
	require.True(t, ok)
	assert.Equal(t, "ISIN_FORMAT", isin.FormatRuleID)
	assert.False(t, isin.Mandatory)

	_, ok = s.Field("no_such_field")
	assert.False(t, ok)
}

func TestLoadUnknownVersion(t *testing.T) {
	_, err := Load("v99")
	require.ErrorIs(t, err, domerrors.ErrSchemaLoad)
}

func TestParseRejectsDuplicates(t *testing.T) {
	var b strings.Builder
	b.WriteString("name,mandatory,data_type,category,format_rule\n")
	for i := 0; i < FieldCount; i++ {
		b.WriteString("same_name,true,string,identifier,\n")
	}
	_, err := parse("test", strings.NewReader(b.String()))
	require.ErrorIs(t, err, domerrors.ErrSchemaLoad)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestParseRejectsWrongCount(t *testing.T) {
	in := "name,mandatory,data_type,category,format_rule\nuti,true,string,identifier,\n"
	_, err := parse("test", strings.NewReader(in))
	require.ErrorIs(t, err, domerrors.ErrSchemaLoad)
	assert.Contains(t, err.Error(), "expected 203")
}

func TestCategoriesCoverAllFields(t *testing.T) {
	s, err := Load("emir-refit-1")
	require.NoError(t, err)

	total := 0
	for _, n := range s.Categories() {
		total += n
	}
	assert.Equal(t, FieldCount, total)
}
