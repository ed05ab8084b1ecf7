package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want *Severity
	}{
		{"critical", Ptr(SeverityCritical)},
		{" High ", Ptr(SeverityHigh)},
		{"LOW", Ptr(SeverityLow)},
		{"blocker", nil},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseSeverity(tt.in), tt.in)
	}
}

func TestParseFrequency(t *testing.T) {
	assert.Equal(t, Ptr(FrequencyOccasional), ParseFrequency("Occasional"))
	assert.Nil(t, ParseFrequency("weekly"))
}

func TestSeverityIndexOrdering(t *testing.T) {
	assert.Equal(t, 0, SeverityCritical.Index())
	assert.Equal(t, 3, SeverityLow.Index())
	assert.Equal(t, -1, Severity("nope").Index())
	assert.Less(t, SeverityHigh.Index(), SeverityMedium.Index())
}

func TestMaxSeverity(t *testing.T) {
	high, low := Ptr(SeverityHigh), Ptr(SeverityLow)
	assert.Equal(t, high, MaxSeverity(high, low))
	assert.Equal(t, high, MaxSeverity(low, high))
	assert.Equal(t, low, MaxSeverity(nil, low))
	assert.Equal(t, low, MaxSeverity(low, nil))
	assert.Nil(t, MaxSeverity(nil, nil))
}

func TestPriorityFor(t *testing.T) {
	assert.Equal(t, PriorityUrgent, PriorityFor(Ptr(SeverityCritical)))
	assert.Equal(t, PriorityHigh, PriorityFor(Ptr(SeverityHigh)))
	assert.Equal(t, PriorityMedium, PriorityFor(Ptr(SeverityMedium)))
	assert.Equal(t, PriorityMedium, PriorityFor(Ptr(SeverityLow)))
	assert.Equal(t, PriorityMedium, PriorityFor(nil))
}

func TestEffectiveInterpretation(t *testing.T) {
	s := &Signal{AIInterpretation: Ptr("ai")}
	assert.Equal(t, "ai", s.EffectiveInterpretation())

	s.Interpretation = Ptr("")
	assert.Equal(t, "ai", s.EffectiveInterpretation())

	s.Interpretation = Ptr("human")
	assert.Equal(t, "human", s.EffectiveInterpretation())

	assert.Equal(t, "", (&Signal{}).EffectiveInterpretation())
}

func TestInitiativeText(t *testing.T) {
	assert.Equal(t, "Exports", (&Initiative{Name: "Exports"}).Text())
	assert.Equal(t, "Exports\n\nCSV and PDF", (&Initiative{Name: "Exports", Description: "CSV and PDF"}).Text())
}
