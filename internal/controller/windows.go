package controller

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
)

// windowsAllow reports whether automated syncs may run at the given
// instant. An active deny window always wins; when any allow windows are
// declared, at least one must be active. With no windows at all, syncing is
// allowed.
func windowsAllow(windows []v1alpha1.SyncWindow, now time.Time) (bool, error) {
	hasAllow := false
	inAllow := false

	for i := range windows {
		w := &windows[i]

		active, err := windowActive(w, now)
		if err != nil {
			return false, err
		}

		switch w.Kind {
		case v1alpha1.WindowDeny:
			if active {
				return false, nil
			}
		case v1alpha1.WindowAllow:
			hasAllow = true

			if active {
				inAllow = true
			}
		default:
			return false, errors.Newf("unknown sync window kind %q", w.Kind)
		}
	}

	if hasAllow && !inAllow {
		return false, nil
	}

	return true, nil
}

// windowActive reports whether the window's most recent activation is still
// running at the given instant.
func windowActive(w *v1alpha1.SyncWindow, now time.Time) (bool, error) {
	schedule, err := cron.ParseStandard(w.Schedule)
	if err != nil {
		return false, errors.Wrapf(err, "invalid schedule %q", w.Schedule)
	}

	duration, err := time.ParseDuration(w.Duration)
	if err != nil {
		return false, errors.Wrapf(err, "invalid duration %q", w.Duration)
	}

	if duration <= 0 {
		return false, errors.Newf("window duration %q must be positive", w.Duration)
	}

	// A window is active when an activation inside the lookback period has
	// not yet expired. Looking back one duration from now finds exactly the
	// activations that could still be running.
	start := schedule.Next(now.Add(-duration))

	return !start.After(now), nil
}
