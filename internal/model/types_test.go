package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventKind(t *testing.T) {
	for _, k := range AllKinds {
		got, err := ParseEventKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseEventKind("session_start")
	assert.Error(t, err)
}

func TestLoginKindsStayDistinct(t *testing.T) {
	assert.NotEqual(t, KindLogin, KindLoginTS)
}

func TestUsageEventValueOr(t *testing.T) {
	marker := UsageEvent{Kind: KindLogout}
	assert.False(t, marker.HasValue())
	assert.Equal(t, 7.0, marker.ValueOr(7))

	hb := UsageEvent{Kind: KindHeartbeat, Value: Float(12.5)}
	assert.True(t, hb.HasValue())
	assert.Equal(t, 12.5, hb.ValueOr(0))
}

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "  ana.gomez ", want: "ana.gomez"},
		{in: "user_01-b", want: "user_01-b"},
		{in: "", wantErr: true},
		{in: "   ", wantErr: true},
		{in: "ana gomez", wantErr: true},
		{in: "josé", wantErr: true},
		{in: "abcdefghijklmnopqrstuvwxyz0123456", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SanitizeUsername(tt.in)
			if tt.wantErr {
				var ve ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, "username", ve.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateMetricName(t *testing.T) {
	assert.NoError(t, ValidateMetricName(MetricUserChanges))
	assert.Error(t, ValidateMetricName(" "))
	assert.Error(t, ValidateMetricName(string(make([]byte, 65))))
}
