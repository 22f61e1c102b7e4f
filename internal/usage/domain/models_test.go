package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayNormalizesToUTCMidnight(t *testing.T) {
	loc, err := time.LoadLocation("Pacific/Auckland")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	local := time.Date(2026, 2, 8, 23, 30, 0, 0, loc)
	got := Day(local)

	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 0, got.Hour())
	assert.Equal(t, local.UTC().Day(), got.Day())
}

func TestMonthStart(t *testing.T) {
	got := MonthStart(time.Date(2026, 2, 20, 15, 4, 5, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), got)
}
