package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPolicyTable_Defaults(t *testing.T) {
	table, err := NewPolicyTable()
	require.NoError(t, err)

	tests := []struct {
		name         string
		documentType DocumentType
		want         BundlingPolicy
	}{
		{
			name:         "aggregation notifications bundle up to six",
			documentType: DocumentNotifyAggregatedMeasureData,
			want:         BundlingPolicy{Category: CategoryAggregations, MaxSize: 6, FlushThreshold: time.Minute},
		},
		{
			name:         "aggregation rejections never share a bundle",
			documentType: DocumentRejectRequestAggregatedMeasureData,
			want:         BundlingPolicy{Category: CategoryAggregations, MaxSize: 1, FlushThreshold: 0},
		},
		{
			name:         "wholesale rejections never share a bundle",
			documentType: DocumentRejectRequestWholesaleSettlement,
			want:         BundlingPolicy{Category: CategoryWholesale, MaxSize: 1, FlushThreshold: 0},
		},
		{
			name:         "validated measure data runs large bundles",
			documentType: DocumentNotifyValidatedMeasureData,
			want:         BundlingPolicy{Category: CategoryMeasureData, MaxSize: 2000, FlushThreshold: 5 * time.Minute},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.Lookup(tt.documentType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewPolicyTable_Overrides(t *testing.T) {
	table, err := NewPolicyTable(PolicyOverride{
		DocumentType:   DocumentNotifyAggregatedMeasureData,
		MaxSize:        10,
		FlushThreshold: 2 * time.Minute,
	})
	require.NoError(t, err)

	got, err := table.Lookup(DocumentNotifyAggregatedMeasureData)
	require.NoError(t, err)
	assert.Equal(t, 10, got.MaxSize)
	assert.Equal(t, 2*time.Minute, got.FlushThreshold)
	assert.Equal(t, CategoryAggregations, got.Category)

	// Other document types keep their defaults.
	other, err := table.Lookup(DocumentNotifyWholesaleServices)
	require.NoError(t, err)
	assert.Equal(t, 6, other.MaxSize)
}

func TestNewPolicyTable_PartialOverrideKeepsDefault(t *testing.T) {
	table, err := NewPolicyTable(PolicyOverride{
		DocumentType: DocumentNotifyValidatedMeasureData,
		MaxSize:      500,
	})
	require.NoError(t, err)

	got, err := table.Lookup(DocumentNotifyValidatedMeasureData)
	require.NoError(t, err)
	assert.Equal(t, 500, got.MaxSize)
	assert.Equal(t, 5*time.Minute, got.FlushThreshold)
}

func TestNewPolicyTable_InvalidOverrides(t *testing.T) {
	tests := []struct {
		name     string
		override PolicyOverride
	}{
		{
			name:     "unknown document type",
			override: PolicyOverride{DocumentType: "NoSuchDocument", MaxSize: 5},
		},
		{
			name:     "negative max size",
			override: PolicyOverride{DocumentType: DocumentNotifyAggregatedMeasureData, MaxSize: -1},
		},
		{
			name:     "negative flush threshold",
			override: PolicyOverride{DocumentType: DocumentNotifyAggregatedMeasureData, FlushThreshold: -time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicyTable(tt.override)
			assert.Error(t, err)
		})
	}
}

func TestPolicyTable_Lookup_Unknown(t *testing.T) {
	table, err := NewPolicyTable()
	require.NoError(t, err)

	_, err = table.Lookup("NoSuchDocument")
	assert.Error(t, err)

	_, err = table.CategoryOf("NoSuchDocument")
	assert.Error(t, err)
}

func TestPolicyTable_CategoryOf(t *testing.T) {
	table, err := NewPolicyTable()
	require.NoError(t, err)

	c, err := table.CategoryOf(DocumentAcknowledgement)
	require.NoError(t, err)
	assert.Equal(t, CategoryMeasureData, c)
}

func TestKnownCategory(t *testing.T) {
	assert.True(t, KnownCategory(CategoryAggregations))
	assert.True(t, KnownCategory(CategoryWholesale))
	assert.True(t, KnownCategory(CategoryMeasureData))
	assert.False(t, KnownCategory("settlement"))
	assert.False(t, KnownCategory(""))
}
