package outbox

import (
	"fmt"
	"time"
)

// BundlingPolicy bounds a bundle for one document type. MaxSize caps the
// message count; FlushThreshold is the maximum age the oldest message in a
// partial bundle may reach before the scheduler closes it anyway.
type BundlingPolicy struct {
	Category       MessageCategory
	MaxSize        int
	FlushThreshold time.Duration
}

// Rejections answer a single request and never share a bundle. The bulk
// measure-data types run with large bundles and a longer linger since
// turnaround there is hours, not minutes.
var defaultPolicies = map[DocumentType]BundlingPolicy{
	DocumentNotifyAggregatedMeasureData:        {Category: CategoryAggregations, MaxSize: 6, FlushThreshold: time.Minute},
	DocumentRejectRequestAggregatedMeasureData: {Category: CategoryAggregations, MaxSize: 1, FlushThreshold: 0},
	DocumentNotifyWholesaleServices:            {Category: CategoryWholesale, MaxSize: 6, FlushThreshold: time.Minute},
	DocumentRejectRequestWholesaleSettlement:   {Category: CategoryWholesale, MaxSize: 1, FlushThreshold: 0},
	DocumentNotifyValidatedMeasureData:         {Category: CategoryMeasureData, MaxSize: 2000, FlushThreshold: 5 * time.Minute},
	DocumentAcknowledgement:                    {Category: CategoryMeasureData, MaxSize: 2000, FlushThreshold: 5 * time.Minute},
	DocumentReminderOfMissingMeasureData:       {Category: CategoryMeasureData, MaxSize: 2000, FlushThreshold: 5 * time.Minute},
}

// PolicyOverride adjusts limits for one document type from configuration.
// Zero fields keep the default.
type PolicyOverride struct {
	DocumentType   DocumentType
	MaxSize        int
	FlushThreshold time.Duration
}

// PolicyTable resolves the bundling policy for a document type. It is built
// once at startup and read-only afterwards, keeping the scheduler's loop
// policy-agnostic.
type PolicyTable struct {
	policies map[DocumentType]BundlingPolicy
}

func NewPolicyTable(overrides ...PolicyOverride) (*PolicyTable, error) {
	policies := make(map[DocumentType]BundlingPolicy, len(defaultPolicies))
	for dt, p := range defaultPolicies {
		policies[dt] = p
	}
	for _, o := range overrides {
		p, ok := policies[o.DocumentType]
		if !ok {
			return nil, fmt.Errorf("unknown document type in bundling override: %q", o.DocumentType)
		}
		if o.MaxSize < 0 || o.FlushThreshold < 0 {
			return nil, fmt.Errorf("negative bundling override for %q", o.DocumentType)
		}
		if o.MaxSize > 0 {
			p.MaxSize = o.MaxSize
		}
		if o.FlushThreshold > 0 {
			p.FlushThreshold = o.FlushThreshold
		}
		policies[o.DocumentType] = p
	}
	return &PolicyTable{policies: policies}, nil
}

func (t *PolicyTable) Lookup(dt DocumentType) (BundlingPolicy, error) {
	p, ok := t.policies[dt]
	if !ok {
		return BundlingPolicy{}, fmt.Errorf("no bundling policy for document type %q", dt)
	}
	return p, nil
}

func (t *PolicyTable) CategoryOf(dt DocumentType) (MessageCategory, error) {
	p, err := t.Lookup(dt)
	if err != nil {
		return "", err
	}
	return p.Category, nil
}

// KnownCategory reports whether the category is one actors may peek by.
func KnownCategory(c MessageCategory) bool {
	switch c {
	case CategoryAggregations, CategoryWholesale, CategoryMeasureData:
		return true
	}
	return false
}
