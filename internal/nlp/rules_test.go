package nlp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kra-assist/internal/models"
)

func extractBag(t *testing.T, text string) models.EntityBag {
	t.Helper()
	normalized, err := Normalize(text, models.LanguageSwahili)
	require.NoError(t, err)
	raw, err := NewRuleExtractor().Extract(context.Background(), normalized)
	require.NoError(t, err)
	return models.NewEntityBag(raw)
}

func TestRuleExtractor_PIN(t *testing.T) {
	bag := extractBag(t, "Nimelipa lakini PIN yangu A123456789K haionekani")
	assert.Equal(t, []string{"A123456789K"}, bag.Get(models.EntityKRAPin))
}

func TestRuleExtractor_NoPIN(t *testing.T) {
	bag := extractBag(t, "Nahitaji msaada na malipo ya VAT")
	assert.Empty(t, bag.Get(models.EntityKRAPin))
	assert.Equal(t, []string{"VAT"}, bag.Get(models.EntityTaxType))
}

func TestRuleExtractor_FormsCurrencyDates(t *testing.T) {
	bag := extractBag(t, "Nilituma P9A na IT1 tarehe 30 Juni 2024, nililipa KES 5,000 na 200 bob")

	assert.Equal(t, []string{"P9A", "IT1"}, bag.Get(models.EntityTaxForm))
	assert.Equal(t, []string{"30 juni 2024"}, bag.Get(models.EntityDate))
	assert.Equal(t, []string{"kes 5000", "200 bob"}, bag.Get(models.EntityCurrency))
	assert.Equal(t, []string{"5000", "200"}, bag.Get(models.EntityAmount))
}

func TestRuleExtractor_DiscoveryOrder(t *testing.T) {
	raw, err := NewRuleExtractor().Extract(context.Background(), "it1 kabla ya p9a kwa b987654321z")
	require.NoError(t, err)
	require.Len(t, raw, 3)
	assert.Equal(t, models.RawEntity{Kind: models.EntityTaxForm, Value: "IT1"}, raw[0])
	assert.Equal(t, models.RawEntity{Kind: models.EntityTaxForm, Value: "P9A"}, raw[1])
	assert.Equal(t, models.RawEntity{Kind: models.EntityKRAPin, Value: "B987654321Z"}, raw[2])
}

func TestExtractPIN(t *testing.T) {
	assert.Equal(t, "A123456789K", ExtractPIN("pin yangu ni a123456789k"))
	assert.Equal(t, "", ExtractPIN("sina pin"))
	assert.Equal(t, "", ExtractPIN("A12345678K"))
}

type stubExtractor struct {
	out []models.RawEntity
	err error
}

func (s stubExtractor) Extract(context.Context, string) ([]models.RawEntity, error) {
	return s.out, s.err
}

func TestChainExtractor(t *testing.T) {
	chain := ChainExtractor{
		stubExtractor{out: []models.RawEntity{{Kind: models.EntityKRAPin, Value: "A123456789K"}}},
		stubExtractor{out: []models.RawEntity{{Kind: models.EntityDate, Value: "30 juni"}}},
	}
	got, err := chain.Extract(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	boom := errors.New("ner down")
	_, err = append(chain, stubExtractor{err: boom}).Extract(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestChainExtractor_MergesOverlappingSources(t *testing.T) {
	text := "malipo ya vat kwa pin a123456789k tarehe 30 juni"
	ner := stubExtractor{out: []models.RawEntity{
		{Kind: models.EntityDate, Value: "30 juni"},
		{Kind: models.EntityKRAPin, Value: "a123456789k"},
		{Kind: models.EntityTaxType, Value: "vat"},
		{Kind: models.EntityTaxForm, Value: "it1"},
	}}
	chain := ChainExtractor{NewRuleExtractor(), ner}

	got, err := chain.Extract(context.Background(), text)
	require.NoError(t, err)

	bag := models.NewEntityBag(got)
	assert.Equal(t, []string{"A123456789K"}, bag.Get(models.EntityKRAPin))
	assert.Equal(t, []string{"VAT"}, bag.Get(models.EntityTaxType))
	assert.Equal(t, []string{"30 juni"}, bag.Get(models.EntityDate))
	// Not in text: kept, after everything located.
	assert.Equal(t, []string{"IT1"}, bag.Get(models.EntityTaxForm))

	assert.Equal(t, []models.RawEntity{
		{Kind: models.EntityTaxType, Value: "VAT"},
		{Kind: models.EntityKRAPin, Value: "A123456789K"},
		{Kind: models.EntityDate, Value: "30 juni"},
		{Kind: models.EntityTaxForm, Value: "IT1"},
	}, got)
}

func TestChainExtractor_KeepsRepeatsFromOneSourceOnce(t *testing.T) {
	chain := ChainExtractor{stubExtractor{out: []models.RawEntity{
		{Kind: models.EntityTaxType, Value: "PAYE"},
		{Kind: models.EntityTaxType, Value: "paye"},
		{Kind: models.EntityAmount, Value: " "},
	}}}
	got, err := chain.Extract(context.Background(), "paye na paye")
	require.NoError(t, err)
	assert.Equal(t, []models.RawEntity{{Kind: models.EntityTaxType, Value: "PAYE"}}, got)
}
