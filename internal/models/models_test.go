package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"printshop/internal/models"
)

func TestParseStatusLegacyVocabulary(t *testing.T) {
	cases := map[string]models.Status{
		"Pending Payment":               models.StatusPendingPayment,
		"PendingPayment":                models.StatusPendingPayment,
		"Paid - Waiting for Processing": models.StatusPaid,
		"Pending":                       models.StatusPaid,
		"paid":                          models.StatusPaid,
		"Ready to Print":                models.StatusReadyToPrint,
		"ReadyToPrint":                  models.StatusReadyToPrint,
		"Printing":                      models.StatusPrinting,
		"Processing":                    models.StatusPrinting,
		"Processing 50%":                models.StatusPrinting,
		"Ready for Pickup":              models.StatusCompleted,
		"Completed":                     models.StatusCompleted,
		"Delivered":                     models.StatusDelivered,
	}
	for in, want := range cases {
		assert.Equal(t, want, models.ParseStatus(in), "input %q", in)
	}
}

func TestParseStatusKeepsUnknownDisplayable(t *testing.T) {
	got := models.ParseStatus("Lost In Transit")
	assert.Equal(t, models.Status("Lost In Transit"), got)
	assert.False(t, got.Terminal())
}

func TestTerminal(t *testing.T) {
	assert.True(t, models.StatusCompleted.Terminal())
	assert.True(t, models.StatusDelivered.Terminal())
	assert.False(t, models.StatusPaid.Terminal())
	assert.False(t, models.StatusPendingPayment.Terminal())
}

func TestOrderActive(t *testing.T) {
	o := &models.Order{Status: "Delivered"}
	assert.False(t, o.Active())

	o.Status = "Processing 50%"
	assert.True(t, o.Active())
}
