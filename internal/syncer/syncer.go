package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"dario.cat/mergo"
	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/moby/locker"
	"golang.org/x/sync/semaphore"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	apimeta "k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/gitopslab/sync-controller/api/v1alpha1"
	"github.com/gitopslab/sync-controller/internal/cluster"
	"github.com/gitopslab/sync-controller/internal/diff"
	"github.com/gitopslab/sync-controller/internal/metrics"
	"github.com/gitopslab/sync-controller/internal/resource"
)

// DefaultParallelism bounds concurrent writes within one ordering band when
// the executor is configured with a non-positive value.
const DefaultParallelism = 4

// Policy carries the per-operation knobs derived from the application spec.
type Policy struct {
	// Prune allows delete candidates to be deleted. Without it they are
	// recorded as PruneSkipped and left alone.
	Prune bool

	// DryRun plans and reports without writing.
	DryRun bool

	// Per-resource retry budget: RetryLimit retries after the initial
	// attempt, delays growing from RetryBaseDelay by RetryFactor up to
	// RetryMaxDelay.
	RetryLimit     int32
	RetryBaseDelay time.Duration
	RetryFactor    float64
	RetryMaxDelay  time.Duration
}

// PolicyFor derives the operation policy from the application spec.
func PolicyFor(app *v1alpha1.Application, dryRun bool) Policy {
	return Policy{
		Prune:          app.Spec.IsPruneEnabled(),
		DryRun:         dryRun,
		RetryLimit:     app.Spec.GetRetryLimit(),
		RetryBaseDelay: app.Spec.GetRetryBaseDelay(),
		RetryFactor:    app.Spec.GetRetryFactor(),
		RetryMaxDelay:  app.Spec.GetRetryMaxDelay(),
	}
}

func (p Policy) backoff() wait.Backoff {
	base := p.RetryBaseDelay
	if base <= 0 {
		base = v1alpha1.DefaultRetryBaseDelay
	}

	factor := p.RetryFactor
	if factor < 1 {
		factor = v1alpha1.DefaultRetryFactor
	}

	maxDelay := p.RetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = v1alpha1.DefaultRetryMaxDelay
	}

	return wait.Backoff{
		Duration: base,
		Factor:   factor,
		Cap:      maxDelay,
		Steps:    int(p.RetryLimit) + 1,
	}
}

// Input is one sync operation handed to the executor.
type Input struct {
	// App is the owning application, carried for logging.
	App types.NamespacedName

	// Target is the destination cluster.
	Target *cluster.Target

	// Entries is the full diff of the operation. Every entry yields exactly
	// one result, including unchanged ones.
	Entries []diff.Entry

	Policy Policy
}

// Outcome is the terminal result of one sync operation.
type Outcome struct {
	// Phase is Succeeded, Failed when any resource failed, or Error when
	// the operation was aborted.
	Phase v1alpha1.OperationPhase

	// Message summarizes the outcome for the operation state.
	Message string

	// Results holds one entry per input entry, in identity order.
	Results []v1alpha1.ResourceResult

	// Applied lists identities the operation wrote or confirmed in sync,
	// Pruned the identities it deleted. Both feed the inventory update and
	// stay empty for dry runs.
	Applied []resource.Ref
	Pruned  []resource.Ref
}

// Executor runs sync operations against destination clusters. A single
// executor serves every application; per-identity locks serialize writes to
// the same object across concurrent operations.
type Executor struct {
	metrics metrics.Collector
	logger  *slog.Logger

	locks       *locker.Locker
	parallelism int64
}

// NewExecutor creates an Executor. parallelism bounds concurrent writes
// within one ordering band.
func NewExecutor(metricsCollector metrics.Collector, logger *slog.Logger, parallelism int) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	return &Executor{
		metrics:     metricsCollector,
		logger:      logger.With("component", "syncer"),
		locks:       locker.New(),
		parallelism: int64(parallelism),
	}
}

// Run executes one sync operation. It always returns a complete outcome
// with one result per entry: per-resource failures are data, not errors.
func (e *Executor) Run(ctx context.Context, in Input) *Outcome {
	applies := make([]diff.Entry, 0, len(in.Entries))
	deletes := make([]diff.Entry, 0)

	for _, entry := range in.Entries {
		if entry.Classification == diff.ClassDelete {
			deletes = append(deletes, entry)

			continue
		}

		applies = append(applies, entry)
	}

	out := &Outcome{Results: make([]v1alpha1.ResourceResult, 0, len(in.Entries))}

	var mu sync.Mutex

	record := func(entry diff.Entry, res v1alpha1.ResourceResult) {
		mu.Lock()
		defer mu.Unlock()

		out.Results = append(out.Results, res)

		if in.Policy.DryRun {
			return
		}

		switch res.Status {
		case v1alpha1.ResultSynced:
			out.Applied = append(out.Applied, entry.Ref)
		case v1alpha1.ResultPruned:
			out.Pruned = append(out.Pruned, entry.Ref)
		}
	}

	sem := semaphore.NewWeighted(e.parallelism)

	for _, b := range planApplies(applies) {
		e.runBatch(ctx, in, b, sem, record)
	}

	// Deletes only start after every apply finished.
	for _, b := range planDeletes(deletes) {
		e.runBatch(ctx, in, b, sem, record)
	}

	sortResults(out.Results)
	sortRefs(out.Applied)
	sortRefs(out.Pruned)

	e.finish(ctx, in, out)

	return out
}

// runBatch runs the entries of one batch in parallel and waits for all of
// them. A cancelled context records remaining entries as aborted instead of
// starting them.
func (e *Executor) runBatch(
	ctx context.Context,
	in Input,
	b batch,
	sem *semaphore.Weighted,
	record func(diff.Entry, v1alpha1.ResourceResult),
) {
	var wg sync.WaitGroup

	for _, entry := range b.entries {
		if err := sem.Acquire(ctx, 1); err != nil {
			res := newResult(entry)
			res.Action = actionFor(entry.Classification)
			res.Status = v1alpha1.ResultAborted
			res.Message = "operation aborted"
			record(entry, res)

			continue
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			defer sem.Release(1)

			record(entry, e.syncEntry(ctx, in, entry))
		}()
	}

	wg.Wait()
}

func (e *Executor) syncEntry(ctx context.Context, in Input, entry diff.Entry) v1alpha1.ResourceResult {
	if entry.Classification == diff.ClassDelete {
		return e.pruneEntry(ctx, in, entry)
	}

	if entry.Classification == diff.ClassUnchanged {
		res := newResult(entry)
		res.Action = v1alpha1.ActionNone
		res.Status = v1alpha1.ResultSynced
		res.Message = "in sync"

		return res
	}

	return e.applyEntry(ctx, in, entry)
}

// applyEntry converges one create, update, or conflict entry, retrying
// within the policy budget.
func (e *Executor) applyEntry(ctx context.Context, in Input, entry diff.Entry) v1alpha1.ResourceResult {
	res := newResult(entry)
	res.Action = actionFor(entry.Classification)

	if in.Policy.DryRun {
		res.Status = v1alpha1.ResultSynced
		res.Message = "dry run"

		return res
	}

	id := entry.Ref.InventoryID()
	e.locks.Lock(id)
	defer e.locks.Unlock(id) //nolint:errcheck // lock is held

	err := e.runAttempts(ctx, in.Policy, &res, func() error {
		action, applyErr := e.applyOnce(ctx, in.Target, entry.Desired)
		if action != "" {
			res.Action = action
		}

		return applyErr
	})

	switch {
	case err == nil:
		res.Status = v1alpha1.ResultSynced
		e.metrics.RecordResourceApply(ctx, res.Action, "success")
		e.logger.Debug("resource synced",
			"app", in.App, "resource", entry.Ref.Key.String(),
			"action", res.Action, "attempts", res.Attempts)
	case ctx.Err() != nil:
		res.Status = v1alpha1.ResultAborted
		res.Message = "operation aborted"
	case apierrors.IsConflict(err):
		res.Status = v1alpha1.ResultConflict
		res.Message = err.Error()
		e.metrics.RecordResourceApply(ctx, res.Action, "conflict")
		e.logger.Warn("resource sync exhausted retries on conflicts",
			"app", in.App, "resource", entry.Ref.Key.String(), "attempts", res.Attempts)
	default:
		res.Status = v1alpha1.ResultFailed
		res.Message = err.Error()
		e.metrics.RecordResourceApply(ctx, res.Action, "failure")
		e.logger.Warn("resource sync failed",
			"app", in.App, "resource", entry.Ref.Key.String(),
			"attempts", res.Attempts, "error", err)
	}

	return res
}

// applyOnce performs one read-modify-write cycle. The fresh read makes each
// retry a re-observation, so a stale concurrency marker heals on the next
// attempt once the live object settles.
func (e *Executor) applyOnce(
	ctx context.Context,
	target *cluster.Target,
	desired *unstructured.Unstructured,
) (string, error) {
	key := resource.KeyFor(desired)

	live := &unstructured.Unstructured{}
	live.SetGroupVersionKind(desired.GroupVersionKind())

	err := target.Client.Get(ctx, client.ObjectKey{Namespace: key.Namespace, Name: key.Name}, live)

	switch {
	case apierrors.IsNotFound(err) || apimeta.IsNoMatchError(err):
		if createErr := target.Client.Create(ctx, desired.DeepCopy()); createErr != nil {
			return v1alpha1.ActionCreate, errors.Wrapf(createErr, "failed to create %s", key)
		}

		return v1alpha1.ActionCreate, nil
	case err != nil:
		return "", errors.Wrapf(err, "failed to read %s before write", key)
	}

	// Another writer may have converged the object since the diff ran.
	fresh := diff.Calculate(
		[]*unstructured.Unstructured{desired},
		map[resource.Key]*unstructured.Unstructured{key: live},
	)
	if !fresh[0].Actionable() {
		return v1alpha1.ActionNone, nil
	}

	merged, err := mergeInto(live, desired)
	if err != nil {
		return v1alpha1.ActionUpdate, err
	}

	if updateErr := target.Client.Update(ctx, merged); updateErr != nil {
		return v1alpha1.ActionUpdate, errors.Wrapf(updateErr, "failed to update %s", key)
	}

	return v1alpha1.ActionUpdate, nil
}

// mergeInto lays the desired object over the live one, keeping live-only
// fields such as server defaults and the concurrency marker so the update
// does not wipe them.
func mergeInto(live, desired *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	merged := live.DeepCopy()

	err := mergo.Merge(&merged.Object, desired.Object, mergo.WithOverride, mergo.WithOverwriteWithEmptyValue)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to merge desired state of %s", resource.KeyFor(desired))
	}

	return merged, nil
}

// pruneEntry deletes one orphaned resource, or records why it did not.
func (e *Executor) pruneEntry(ctx context.Context, in Input, entry diff.Entry) v1alpha1.ResourceResult {
	res := newResult(entry)
	res.Action = v1alpha1.ActionDelete

	if !in.Policy.Prune {
		res.Status = v1alpha1.ResultPruneSkipped
		res.Message = "prune disabled"

		return res
	}

	if in.Policy.DryRun {
		res.Status = v1alpha1.ResultPruned
		res.Message = "dry run"

		return res
	}

	id := entry.Ref.InventoryID()
	e.locks.Lock(id)
	defer e.locks.Unlock(id) //nolint:errcheck // lock is held

	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(entry.Ref.GroupVersionKind())
	obj.SetNamespace(entry.Ref.Namespace)
	obj.SetName(entry.Ref.Name)

	err := e.runAttempts(ctx, in.Policy, &res, func() error {
		deleteErr := in.Target.Client.Delete(ctx, obj)
		if deleteErr == nil || apierrors.IsNotFound(deleteErr) || apimeta.IsNoMatchError(deleteErr) {
			return nil
		}

		return errors.Wrapf(deleteErr, "failed to delete %s", entry.Ref.Key)
	})

	switch {
	case err == nil:
		res.Status = v1alpha1.ResultPruned
		e.metrics.RecordResourceApply(ctx, res.Action, "success")
		e.logger.Debug("resource pruned", "app", in.App, "resource", entry.Ref.Key.String())
	case ctx.Err() != nil:
		res.Status = v1alpha1.ResultAborted
		res.Message = "operation aborted"
	default:
		res.Status = v1alpha1.ResultFailed
		res.Message = err.Error()
		e.metrics.RecordResourceApply(ctx, res.Action, "failure")
		e.logger.Warn("resource prune failed",
			"app", in.App, "resource", entry.Ref.Key.String(), "error", err)
	}

	return res
}

// runAttempts drives the retry loop around op, recording the attempt count
// on res. It returns nil on success, the context error on abort, and the
// last op error once the budget is spent.
func (e *Executor) runAttempts(
	ctx context.Context,
	policy Policy,
	res *v1alpha1.ResourceResult,
	op func() error,
) error {
	backoff := policy.backoff()

	attempts := policy.RetryLimit + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error

	for attempt := int32(1); attempt <= attempts; attempt++ {
		res.Attempts = attempt

		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		e.metrics.RecordApplyRetry(ctx, res.Action)

		if err := sleepWithContext(ctx, backoff.Step()); err != nil {
			return err
		}
	}

	return lastErr
}

// finish derives the operation phase and message from the collected results.
func (e *Executor) finish(ctx context.Context, in Input, out *Outcome) {
	var (
		synced, pruned, skipped int
		aborted                 bool
		failures                *multierror.Error
	)

	for _, res := range out.Results {
		switch res.Status {
		case v1alpha1.ResultSynced:
			synced++
		case v1alpha1.ResultPruned:
			pruned++
		case v1alpha1.ResultPruneSkipped:
			skipped++
		case v1alpha1.ResultAborted:
			aborted = true
		case v1alpha1.ResultFailed, v1alpha1.ResultConflict:
			identity := resource.Key{Group: res.Group, Kind: res.Kind, Namespace: res.Namespace, Name: res.Name}
			failures = multierror.Append(failures, errors.Newf("%s: %s", identity, res.Message))
		}
	}

	switch {
	case aborted || ctx.Err() != nil:
		out.Phase = v1alpha1.OperationError
		out.Message = "operation aborted"
		e.metrics.RecordAbort(ctx)
	case failures.ErrorOrNil() != nil:
		failures.ErrorFormat = compactErrors
		out.Phase = v1alpha1.OperationFailed
		out.Message = failures.Error()
	default:
		out.Phase = v1alpha1.OperationSucceeded
		out.Message = fmt.Sprintf("synced %d resources, pruned %d, skipped %d", synced, pruned, skipped)

		if in.Policy.DryRun {
			out.Message = "dry run: " + out.Message
		}
	}
}

// compactErrors renders aggregated failures on a single line for the
// operation message. Per-resource detail stays in the results.
func compactErrors(errs []error) string {
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = err.Error()
	}

	return fmt.Sprintf("%d resources failed: %s", len(errs), strings.Join(parts, "; "))
}

func newResult(entry diff.Entry) v1alpha1.ResourceResult {
	return v1alpha1.ResourceResult{
		Group:     entry.Ref.Group,
		Version:   entry.Ref.Version,
		Kind:      entry.Ref.Kind,
		Namespace: entry.Ref.Namespace,
		Name:      entry.Ref.Name,
	}
}

func actionFor(c diff.Classification) string {
	switch c {
	case diff.ClassCreate:
		return v1alpha1.ActionCreate
	case diff.ClassUpdate, diff.ClassConflict:
		return v1alpha1.ActionUpdate
	case diff.ClassDelete:
		return v1alpha1.ActionDelete
	case diff.ClassUnchanged:
		return v1alpha1.ActionNone
	}

	return v1alpha1.ActionNone
}

func resultIdentity(r v1alpha1.ResourceResult) resource.Key {
	return resource.Key{Group: r.Group, Kind: r.Kind, Namespace: r.Namespace, Name: r.Name}
}

func sortResults(results []v1alpha1.ResourceResult) {
	sort.Slice(results, func(i, j int) bool {
		return resource.Compare(resultIdentity(results[i]), resultIdentity(results[j])) < 0
	})
}

func sortRefs(refs []resource.Ref) {
	sort.Slice(refs, func(i, j int) bool {
		return resource.Compare(refs[i].Key, refs[j].Key) < 0
	})
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
