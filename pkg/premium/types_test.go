package premium_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mihaimyh/goentitle/pkg/premium"
)

func TestStatus_Active(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Second), now.Add(time.Hour)

	tests := []struct {
		name   string
		status *premium.Status
		want   bool
	}{
		{"nil", nil, false},
		{"free", &premium.Status{}, false},
		{"lifetime", &premium.Status{IsPremium: true}, true},
		{"not yet expired", &premium.Status{IsPremium: true, ExpiresAt: &future}, true},
		{"expired", &premium.Status{IsPremium: true, ExpiresAt: &past}, false},
		{"expires now", &premium.Status{IsPremium: true, ExpiresAt: &now}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Active(now))
		})
	}
}
