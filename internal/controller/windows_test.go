package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
)

func TestWindowsAllow(t *testing.T) {
	t.Parallel()

	// Tuesday 12:30 UTC.
	now := time.Date(2025, 6, 10, 12, 30, 0, 0, time.UTC)

	noon := "0 12 * * *"
	midnight := "0 0 * * *"

	tests := []struct {
		name    string
		windows []v1alpha1.SyncWindow
		want    bool
	}{
		{
			name: "no windows allows",
			want: true,
		},
		{
			name: "active allow window",
			windows: []v1alpha1.SyncWindow{
				{Kind: v1alpha1.WindowAllow, Schedule: noon, Duration: "1h"},
			},
			want: true,
		},
		{
			name: "outside the only allow window",
			windows: []v1alpha1.SyncWindow{
				{Kind: v1alpha1.WindowAllow, Schedule: midnight, Duration: "1h"},
			},
			want: false,
		},
		{
			name: "active deny window",
			windows: []v1alpha1.SyncWindow{
				{Kind: v1alpha1.WindowDeny, Schedule: noon, Duration: "1h"},
			},
			want: false,
		},
		{
			name: "inactive deny window",
			windows: []v1alpha1.SyncWindow{
				{Kind: v1alpha1.WindowDeny, Schedule: midnight, Duration: "1h"},
			},
			want: true,
		},
		{
			name: "deny wins over overlapping allow",
			windows: []v1alpha1.SyncWindow{
				{Kind: v1alpha1.WindowAllow, Schedule: noon, Duration: "2h"},
				{Kind: v1alpha1.WindowDeny, Schedule: noon, Duration: "1h"},
			},
			want: false,
		},
		{
			name: "allow window that expired",
			windows: []v1alpha1.SyncWindow{
				{Kind: v1alpha1.WindowAllow, Schedule: noon, Duration: "10m"},
			},
			want: false,
		},
		{
			name: "one of several allow windows active",
			windows: []v1alpha1.SyncWindow{
				{Kind: v1alpha1.WindowAllow, Schedule: midnight, Duration: "1h"},
				{Kind: v1alpha1.WindowAllow, Schedule: noon, Duration: "1h"},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := windowsAllow(tt.windows, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWindowsAllowRejectsMalformedWindows(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 10, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		window v1alpha1.SyncWindow
	}{
		{
			name:   "bad schedule",
			window: v1alpha1.SyncWindow{Kind: v1alpha1.WindowDeny, Schedule: "often", Duration: "1h"},
		},
		{
			name:   "bad duration",
			window: v1alpha1.SyncWindow{Kind: v1alpha1.WindowDeny, Schedule: "0 12 * * *", Duration: "soon"},
		},
		{
			name:   "non-positive duration",
			window: v1alpha1.SyncWindow{Kind: v1alpha1.WindowDeny, Schedule: "0 12 * * *", Duration: "-5m"},
		},
		{
			name:   "unknown kind",
			window: v1alpha1.SyncWindow{Kind: "maybe", Schedule: "0 12 * * *", Duration: "1h"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := windowsAllow([]v1alpha1.SyncWindow{tt.window}, now)
			require.Error(t, err)
		})
	}
}

func TestWindowActiveAtBoundary(t *testing.T) {
	t.Parallel()

	window := &v1alpha1.SyncWindow{Kind: v1alpha1.WindowAllow, Schedule: "0 12 * * *", Duration: "30m"}

	start := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	active, err := windowActive(window, start)
	require.NoError(t, err)
	assert.True(t, active)

	active, err = windowActive(window, start.Add(29*time.Minute))
	require.NoError(t, err)
	assert.True(t, active)

	active, err = windowActive(window, start.Add(31*time.Minute))
	require.NoError(t, err)
	assert.False(t, active)
}
