// Package stack deploys the tracking stack onto a kubernetes cluster,
// reports its readiness and tears it down.
//
// A stack is four components: the artifact store (an S3-compatible
// object store), the metadata database (postgres), the tracking server
// and the metrics gateway. Apply submits their manifests and waits on
// each component in dependency order, so a returned error names the
// first component which did not come up.
package stack

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/opst/trackfab-api-types/stacks"
	"github.com/opst/trackfab/pkg/cluster"
	"github.com/opst/trackfab/pkg/cluster/forward"
	config "github.com/opst/trackfab/pkg/configs/stack"
	"github.com/opst/trackfab/pkg/db/postgres/gate"
	"github.com/opst/trackfab/pkg/tracking"
	"github.com/opst/trackfab/pkg/utils/retry"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/rest"
)

// Step names the phase of a stack operation.
type Step string

const (
	StepManifests      Step = "manifests"
	StepGitOps         Step = "gitops"
	StepArtifactStore  Step = "artifact store"
	StepMetadataDB     Step = "metadata database"
	StepTrackingServer Step = "tracking server"
	StepMetricsGateway Step = "metrics gateway"
	StepTeardown       Step = "teardown"
)

// StepError tells which step of Apply or Down failed.
type StepError struct {
	Step  Step
	cause error
}

func newStepError(step Step, cause error) *StepError {
	return &StepError{Step: step, cause: cause}
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s", e.Step, e.cause)
}

func (e *StepError) Unwrap() error {
	return e.cause
}

// TunnelOpener opens a port-forwarding into the stack's namespace.
type TunnelOpener func(ctx context.Context, spec forward.Spec) (forward.Tunnel, error)

// DBProbe verifies that the database at url accepts connections.
type DBProbe func(ctx context.Context, url string) error

// HealthProbe verifies that the server at baseUrl reports healthy.
type HealthProbe func(ctx context.Context, baseUrl string) error

// Stack operates one deployment of the tracking stack.
type Stack struct {
	cluster    cluster.Cluster
	conf       *config.StackConfig
	logger     *log.Logger
	backoff    func() retry.Backoff
	force      bool
	openTunnel TunnelOpener
	probeDB    DBProbe
	probeHTTP  HealthProbe
}

type Option func(*Stack) *Stack

// WithBackoff sets how waits on cluster resources pace their polling.
//
// newBackoff is called once per wait, since a backoff carries state.
func WithBackoff(newBackoff func() retry.Backoff) Option {
	return func(s *Stack) *Stack {
		s.backoff = newBackoff
		return s
	}
}

// WithForce lets Apply take over fields owned by other field managers
// instead of failing on the conflict.
func WithForce(force bool) Option {
	return func(s *Stack) *Stack {
		s.force = force
		return s
	}
}

func WithTunnelOpener(open TunnelOpener) Option {
	return func(s *Stack) *Stack {
		s.openTunnel = open
		return s
	}
}

func WithDBProbe(probe DBProbe) Option {
	return func(s *Stack) *Stack {
		s.probeDB = probe
		return s
	}
}

func WithHealthProbe(probe HealthProbe) Option {
	return func(s *Stack) *Stack {
		s.probeHTTP = probe
		return s
	}
}

// New builds a Stack over c.
//
// restConf is needed for the default port-forwarding probes. It may be
// nil when WithTunnelOpener replaces them.
func New(
	c cluster.Cluster, restConf *rest.Config, conf *config.StackConfig,
	logger *log.Logger, options ...Option,
) *Stack {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	s := &Stack{
		cluster: c,
		conf:    conf,
		logger:  logger,
		backoff: func() retry.Backoff {
			return retry.ExponentialBackoff(500*time.Millisecond, 1.2)
		},
		openTunnel: func(ctx context.Context, spec forward.Spec) (forward.Tunnel, error) {
			return forward.Open(ctx, restConf, c.Client(), conf.Namespace(), spec)
		},
		probeDB: func(ctx context.Context, url string) error {
			pool, err := gate.Connect(ctx, url)
			if err != nil {
				return err
			}
			defer pool.Close()
			return pool.Ping(ctx)
		},
		probeHTTP: func(ctx context.Context, baseUrl string) error {
			cli, err := tracking.NewClient(baseUrl)
			if err != nil {
				return err
			}
			_, err = retry.Blocking(ctx, retry.StaticBackoff(1*time.Second), func() (struct{}, error) {
				if err := cli.Health(ctx); err != nil {
					return struct{}{}, fmt.Errorf("%w: %s", retry.ErrRetry, err)
				}
				return struct{}{}, nil
			})
			return err
		},
	}

	for _, o := range options {
		s = o(s)
	}
	return s
}

// Apply submits the stack manifests and waits until every component is
// ready, the database accepts connections and the tracking API answers
// its health check.
//
// An error is a *StepError naming the step which failed.
func (s *Stack) Apply(ctx context.Context) error {
	hasInitJob := false
	initJob := InitJobName(s.conf.ArtifactStore().Component().Name())

	if s.conf.GitOps() != nil {
		if err := s.applyGitOps(ctx); err != nil {
			return err
		}

		// whether the reconciled manifests include the bucket job is
		// only knowable by asking.
		_, err := s.cluster.Client().GetJob(ctx, s.conf.Namespace(), initJob)
		switch {
		case err == nil:
			hasInitJob = true
		case kubeerr.IsNotFound(err):
		default:
			return newStepError(StepGitOps, err)
		}
	} else {
		objs, err := s.loadManifests()
		if err != nil {
			return newStepError(StepManifests, err)
		}
		if err := s.applyAll(ctx, objs); err != nil {
			return newStepError(StepManifests, err)
		}
		for _, obj := range objs {
			if obj.GetKind() == "Job" && obj.GetName() == initJob {
				hasInitJob = true
				break
			}
		}
	}

	if err := s.waitArtifactStore(ctx, hasInitJob); err != nil {
		return newStepError(StepArtifactStore, err)
	}
	if err := s.waitMetadataDB(ctx); err != nil {
		return newStepError(StepMetadataDB, err)
	}
	if err := s.waitTrackingServer(ctx); err != nil {
		return newStepError(StepTrackingServer, err)
	}
	if err := s.waitMetricsGateway(ctx); err != nil {
		return newStepError(StepMetricsGateway, err)
	}

	s.logger.Println("stack is ready")
	return nil
}

// Status snapshots the stack without waiting.
//
// Components which are not deployed are reported not ready, not as an
// error. Errors are reserved for the cluster not answering.
func (s *Stack) Status(ctx context.Context) (stacks.Report, error) {
	components := make([]stacks.Component, 0, 4)

	for _, q := range []func(context.Context) (stacks.Component, error){
		func(ctx context.Context) (stacks.Component, error) {
			return s.deploymentStatus(ctx, s.conf.ArtifactStore().Component())
		},
		func(ctx context.Context) (stacks.Component, error) {
			return s.statefulSetStatus(ctx, s.conf.MetadataDB().Component())
		},
		func(ctx context.Context) (stacks.Component, error) {
			return s.deploymentStatus(ctx, s.conf.TrackingServer())
		},
		func(ctx context.Context) (stacks.Component, error) {
			return s.deploymentStatus(ctx, s.conf.MetricsGateway())
		},
	} {
		c, err := q(ctx)
		if err != nil {
			return stacks.Report{}, err
		}
		components = append(components, c)
	}

	ready := true
	for _, c := range components {
		ready = ready && c.Ready
	}
	return stacks.Report{Components: components, Ready: ready}, nil
}

// DownOptions control how far Down tears the stack down.
type DownOptions struct {
	// KeepData leaves the data volumes behind, and with them the
	// namespace holding them.
	KeepData bool
}

// Down removes the stack, waiting until each resource is gone.
func (s *Stack) Down(ctx context.Context, opts DownOptions) error {
	refs := []cluster.ResourceRef{}

	// the kustomization goes first, so its controller cannot re-apply
	// what is removed next.
	if s.conf.GitOps() != nil {
		gitops := GitOpsManifests(s.conf)
		for i := len(gitops) - 1; i >= 0; i-- {
			refs = append(refs, cluster.RefOf(gitops[i]))
		}
	}

	objs, err := s.loadManifests()
	if err != nil {
		return newStepError(StepTeardown, err)
	}
	for i := len(objs) - 1; i >= 0; i-- {
		refs = append(refs, cluster.RefOf(objs[i]))
	}

	for _, ref := range refs {
		if opts.KeepData {
			switch ref.GroupVersionKind.Kind {
			case "PersistentVolumeClaim", "Namespace":
				s.logger.Printf("kept %s", ref)
				continue
			}
		}

		bctx, cancel := s.bounded(ctx)
		res := <-s.cluster.DeleteResource(bctx, s.backoff(), ref)
		cancel()
		if res.Err != nil {
			return newStepError(StepTeardown, fmt.Errorf("%s: %w", ref, res.Err))
		}
		s.logger.Printf("removed %s", ref)
	}

	return nil
}

// bounded puts the per-component wait budget on ctx.
func (s *Stack) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.conf.Timeout())
}

func (s *Stack) loadManifests() ([]*unstructured.Unstructured, error) {
	dir := s.conf.Manifests()
	if dir == "" {
		return BuiltinManifests(s.conf)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	objs := []*unstructured.Unstructured{}
	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		found, err := cluster.DecodeManifests(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		objs = append(objs, found...)
	}
	return objs, nil
}

func (s *Stack) applyAll(ctx context.Context, objs []*unstructured.Unstructured) error {
	for _, obj := range objs {
		if _, err := s.cluster.Dynamic().Apply(ctx, obj, s.force); err != nil {
			return fmt.Errorf("%s: %w", cluster.RefOf(obj), err)
		}
		s.logger.Printf("applied %s", cluster.RefOf(obj))
	}
	return nil
}

func (s *Stack) applyGitOps(ctx context.Context) error {
	// the gitops resources live in the stack namespace; reconciliation
	// cannot create it first.
	ns, err := toUnstructured(namespaceOf(s.conf.Namespace()))
	if err != nil {
		return newStepError(StepGitOps, err)
	}
	if _, err := s.cluster.Dynamic().Apply(ctx, ns, s.force); err != nil {
		return newStepError(StepGitOps, fmt.Errorf("%s: %w", cluster.RefOf(ns), err))
	}
	s.logger.Printf("applied %s", cluster.RefOf(ns))

	gitops := GitOpsManifests(s.conf)

	for _, obj := range gitops {
		if _, err := s.cluster.Dynamic().Apply(ctx, obj, s.force); err != nil {
			return newStepError(StepGitOps, fmt.Errorf("%s: %w", cluster.RefOf(obj), err))
		}
		s.logger.Printf("applied %s", cluster.RefOf(obj))
	}

	for _, obj := range gitops {
		ref := cluster.RefOf(obj)
		bctx, cancel := s.bounded(ctx)
		res := <-s.cluster.GetResource(bctx, s.backoff(), ref, cluster.ResourceIsReady)
		cancel()
		if res.Err != nil {
			return newStepError(StepGitOps, fmt.Errorf("%s: %w", ref, res.Err))
		}
		s.logger.Printf("%s is ready", ref)
	}
	return nil
}

func (s *Stack) waitArtifactStore(ctx context.Context, hasInitJob bool) error {
	name := s.conf.ArtifactStore().Component().Name()
	bctx, cancel := s.bounded(ctx)
	defer cancel()

	if res := <-s.cluster.GetPVC(bctx, s.backoff(), DataVolumeName(name)); res.Err != nil {
		return fmt.Errorf("volume %s: %w", DataVolumeName(name), res.Err)
	}
	if res := <-s.cluster.GetDeployment(bctx, s.backoff(), name); res.Err != nil {
		return fmt.Errorf("deployment %s: %w", name, res.Err)
	}
	if res := <-s.cluster.GetService(bctx, s.backoff(), name); res.Err != nil {
		return fmt.Errorf("service %s: %w", name, res.Err)
	}
	if hasInitJob {
		if res := <-s.cluster.GetJob(bctx, s.backoff(), InitJobName(name)); res.Err != nil {
			return fmt.Errorf("job %s: %w", InitJobName(name), res.Err)
		}
	}

	s.logger.Printf("artifact store %s is ready", name)
	return nil
}

func (s *Stack) waitMetadataDB(ctx context.Context) error {
	db := s.conf.MetadataDB()
	name := db.Component().Name()
	bctx, cancel := s.bounded(ctx)
	defer cancel()

	if res := <-s.cluster.GetPVC(bctx, s.backoff(), DataVolumeName(name)); res.Err != nil {
		return fmt.Errorf("volume %s: %w", DataVolumeName(name), res.Err)
	}
	if res := <-s.cluster.GetStatefulSet(bctx, s.backoff(), name); res.Err != nil {
		return fmt.Errorf("statefulset %s: %w", name, res.Err)
	}
	if res := <-s.cluster.GetService(bctx, s.backoff(), name); res.Err != nil {
		return fmt.Errorf("service %s: %w", name, res.Err)
	}

	// connect the way training clients will: through a tunnel.
	tun, err := s.openTunnel(bctx, forward.Spec{Service: name, Port: PortNamePostgres})
	if err != nil {
		return fmt.Errorf("cannot reach database %s: %w", name, err)
	}
	defer tun.Close()

	if err := s.probeDB(bctx, DatabaseURL(db, tun.LocalAddr())); err != nil {
		return fmt.Errorf("database %s does not accept connections: %w", name, err)
	}

	s.logger.Printf("metadata database %s is ready", name)
	return nil
}

func (s *Stack) waitTrackingServer(ctx context.Context) error {
	name := s.conf.TrackingServer().Name()
	bctx, cancel := s.bounded(ctx)
	defer cancel()

	if res := <-s.cluster.GetDeployment(bctx, s.backoff(), name); res.Err != nil {
		return fmt.Errorf("deployment %s: %w", name, res.Err)
	}
	if res := <-s.cluster.GetService(bctx, s.backoff(), name); res.Err != nil {
		return fmt.Errorf("service %s: %w", name, res.Err)
	}

	tun, err := s.openTunnel(bctx, forward.Spec{Service: name, Port: PortNameHTTP})
	if err != nil {
		return fmt.Errorf("cannot reach tracking server %s: %w", name, err)
	}
	defer tun.Close()

	if err := s.probeHTTP(bctx, "http://"+tun.LocalAddr()); err != nil {
		return fmt.Errorf("tracking server %s is not healthy: %w", name, err)
	}

	s.logger.Printf("tracking server %s is ready", name)
	return nil
}

func (s *Stack) waitMetricsGateway(ctx context.Context) error {
	name := s.conf.MetricsGateway().Name()
	bctx, cancel := s.bounded(ctx)
	defer cancel()

	if res := <-s.cluster.GetDeployment(bctx, s.backoff(), name); res.Err != nil {
		return fmt.Errorf("deployment %s: %w", name, res.Err)
	}
	if res := <-s.cluster.GetService(bctx, s.backoff(), name); res.Err != nil {
		return fmt.Errorf("service %s: %w", name, res.Err)
	}

	s.logger.Printf("metrics gateway %s is ready", name)
	return nil
}

func (s *Stack) deploymentStatus(ctx context.Context, c *config.ComponentConfig) (stacks.Component, error) {
	image := c.Image()
	comp := stacks.Component{
		Name:      c.Name(),
		Namespace: s.conf.Namespace(),
		Image:     &image,
	}

	depl, err := s.cluster.Client().GetDeployment(ctx, s.conf.Namespace(), c.Name())
	if err != nil {
		if kubeerr.IsNotFound(err) {
			comp.Message = "not deployed"
			return comp, nil
		}
		return comp, err
	}

	desired := int32(1)
	if depl.Spec.Replicas != nil {
		desired = *depl.Spec.Replicas
	}
	if depl.Status.AvailableReplicas < desired {
		comp.Message = fmt.Sprintf(
			"%d/%d replicas available", depl.Status.AvailableReplicas, desired,
		)
		return comp, nil
	}

	comp.Ready = true
	return comp, nil
}

func (s *Stack) statefulSetStatus(ctx context.Context, c *config.ComponentConfig) (stacks.Component, error) {
	image := c.Image()
	comp := stacks.Component{
		Name:      c.Name(),
		Namespace: s.conf.Namespace(),
		Image:     &image,
	}

	sts, err := s.cluster.Client().GetStatefulSet(ctx, s.conf.Namespace(), c.Name())
	if err != nil {
		if kubeerr.IsNotFound(err) {
			comp.Message = "not deployed"
			return comp, nil
		}
		return comp, err
	}

	desired := int32(1)
	if sts.Spec.Replicas != nil {
		desired = *sts.Spec.Replicas
	}
	if sts.Status.ReadyReplicas < desired {
		comp.Message = fmt.Sprintf(
			"%d/%d replicas ready", sts.Status.ReadyReplicas, desired,
		)
		return comp, nil
	}

	comp.Ready = true
	return comp, nil
}
