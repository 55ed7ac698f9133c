// Package observe reads the live counterparts of managed identities from a
// destination cluster. Reads run with bounded parallelism and never mutate
// target state.
//
// Absence is data: identities that do not exist land in Result.Missing, and
// kinds the destination does not serve count as absent too (their CRD may
// simply not be applied yet). Any other read failure fails the pass, unless
// the caller opts into a partial result — a failed read must never be
// mistaken for a deletion.
package observe

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	apimeta "k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/gitopslab/sync-controller/internal/cluster"
	"github.com/gitopslab/sync-controller/internal/metrics"
	"github.com/gitopslab/sync-controller/internal/reason"
	"github.com/gitopslab/sync-controller/internal/resource"
)

// DefaultParallelism bounds concurrent reads when Options.Parallelism is zero.
const DefaultParallelism = 8

// Options control one observation pass.
type Options struct {
	// AllowPartial records per-identity read failures in the result instead
	// of failing the whole pass.
	AllowPartial bool

	// Parallelism bounds concurrent reads. Zero means DefaultParallelism.
	Parallelism int
}

// Result is one observation pass over a set of identities.
type Result struct {
	// Live holds the objects that exist, keyed by identity.
	Live map[resource.Key]*unstructured.Unstructured

	// Missing lists the identities that do not exist, sorted.
	Missing []resource.Ref

	// Errors holds per-identity read failures. Populated only when the pass
	// ran with AllowPartial.
	Errors map[resource.Key]error
}

// Complete reports whether every identity was either read or found absent.
func (r *Result) Complete() bool {
	return len(r.Errors) == 0
}

// Observer reads live state from destination clusters.
type Observer struct {
	metrics metrics.Collector
	logger  *slog.Logger
}

// NewObserver creates an Observer.
func NewObserver(metricsCollector metrics.Collector, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Observer{
		metrics: metricsCollector,
		logger:  logger.With("component", "observer"),
	}
}

// Observe reads each identity from the target. Duplicate identities are read
// once. The refs slice is not retained.
func (o *Observer) Observe(
	ctx context.Context,
	target *cluster.Target,
	refs []resource.Ref,
	opts Options,
) (*Result, error) {
	start := time.Now()

	result, err := o.observe(ctx, target, refs, opts)
	if err != nil {
		o.metrics.RecordObserve(ctx, "error", time.Since(start), 0)

		return nil, err
	}

	o.metrics.RecordObserve(ctx, "success", time.Since(start), len(result.Live))
	o.logger.Debug("observed live state",
		"target", target.Description,
		"live", len(result.Live), "missing", len(result.Missing), "errors", len(result.Errors))

	return result, nil
}

func (o *Observer) observe(
	ctx context.Context,
	target *cluster.Target,
	refs []resource.Ref,
	opts Options,
) (*Result, error) {
	deduped := make([]resource.Ref, 0, len(refs))
	seen := make(map[resource.Key]struct{}, len(refs))

	for _, ref := range refs {
		if ref.Version == "" {
			return nil, reason.Mark(
				errors.Newf("identity %s carries no API version", ref.Key),
				reason.ReconcilerFault,
			)
		}

		if _, dup := seen[ref.Key]; dup {
			continue
		}

		seen[ref.Key] = struct{}{}
		deduped = append(deduped, ref)
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	result := &Result{
		Live:   make(map[resource.Key]*unstructured.Unstructured, len(deduped)),
		Errors: make(map[resource.Key]error),
	}

	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(parallelism)

	for _, ref := range deduped {
		group.Go(func() error {
			obj := &unstructured.Unstructured{}
			obj.SetGroupVersionKind(ref.GroupVersionKind())

			err := target.Client.Get(groupCtx, client.ObjectKey{Namespace: ref.Namespace, Name: ref.Name}, obj)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				result.Live[ref.Key] = obj
			case apierrors.IsNotFound(err) || apimeta.IsNoMatchError(err):
				result.Missing = append(result.Missing, ref)
			case opts.AllowPartial:
				result.Errors[ref.Key] = errors.Wrapf(err, "failed to read %s", ref.Key)
			default:
				return reason.Mark(errors.Wrapf(err, "failed to read %s", ref.Key), reason.ObserverUnavailable)
			}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(result.Missing, func(i, j int) bool {
		return resource.Compare(result.Missing[i].Key, result.Missing[j].Key) < 0
	})

	return result, nil
}
