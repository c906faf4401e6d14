package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	kerr "github.com/opst/trackfab/pkg/cluster/k8serrors"
	"github.com/opst/trackfab/pkg/utils/retry"
	kubeapps "k8s.io/api/apps/v1"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	kubeapiresource "k8s.io/apimachinery/pkg/api/resource"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	k8s "k8s.io/client-go/kubernetes"
)

// subset of k8s.Clientset.
//
// It reads; writes go through DynamicClient so that everything the stack
// touches is declared in a manifest.
type K8sClient interface {
	GetService(ctx context.Context, namespace string, svcname string) (*kubecore.Service, error)

	GetDeployment(ctx context.Context, namespace string, deplname string) (*kubeapps.Deployment, error)

	GetStatefulSet(ctx context.Context, namespace string, name string) (*kubeapps.StatefulSet, error)

	GetPVC(ctx context.Context, namespace string, pvcname string) (*kubecore.PersistentVolumeClaim, error)

	GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error)

	GetPod(ctx context.Context, namespace string, name string) (*kubecore.Pod, error)
	FindPods(ctx context.Context, namespace string, labelSelector LabelSelector) ([]kubecore.Pod, error)

	Log(ctx context.Context, namespace string, podname string, container string) (io.ReadCloser, error)
}

// A wrapper for the type k8s.Clientset; because it does not prefer method chain-style invocations of that type.
type k8sClient struct {
	client *k8s.Clientset
}

// type check: k8sClient implements K8sClient
var _ K8sClient = &k8sClient{}

func (k *k8sClient) GetService(ctx context.Context, namespace string, svcname string) (*kubecore.Service, error) {
	return k.client.CoreV1().Services(namespace).Get(ctx, svcname, kubeapimeta.GetOptions{})
}

func (k *k8sClient) GetDeployment(ctx context.Context, namespace string, deplname string) (*kubeapps.Deployment, error) {
	return k.client.AppsV1().Deployments(namespace).Get(ctx, deplname, kubeapimeta.GetOptions{})
}

func (k *k8sClient) GetStatefulSet(ctx context.Context, namespace string, name string) (*kubeapps.StatefulSet, error) {
	return k.client.AppsV1().StatefulSets(namespace).Get(ctx, name, kubeapimeta.GetOptions{})
}

func (k *k8sClient) GetPVC(ctx context.Context, namespace string, pvcname string) (*kubecore.PersistentVolumeClaim, error) {
	return k.client.CoreV1().PersistentVolumeClaims(namespace).Get(ctx, pvcname, kubeapimeta.GetOptions{})
}

func (k *k8sClient) GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
	return k.client.BatchV1().Jobs(namespace).Get(ctx, name, kubeapimeta.GetOptions{})
}

func (k *k8sClient) GetPod(ctx context.Context, namespace string, name string) (*kubecore.Pod, error) {
	return k.client.CoreV1().Pods(namespace).Get(ctx, name, kubeapimeta.GetOptions{})
}

func (k *k8sClient) FindPods(ctx context.Context, namespace string, labels LabelSelector) ([]kubecore.Pod, error) {
	resp, err := k.client.CoreV1().Pods(namespace).List(ctx, kubeapimeta.ListOptions{
		LabelSelector: labels.QueryString(),
	})
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (k *k8sClient) Log(ctx context.Context, namespace string, podname string, container string) (io.ReadCloser, error) {
	return k.client.
		CoreV1().
		Pods(namespace).
		GetLogs(podname, &kubecore.PodLogOptions{Container: container}).
		Stream(ctx)
}

func WrapK8sClient(c *k8s.Clientset) K8sClient {
	return &k8sClient{client: c}
}

type service struct {
	resource *kubecore.Service
	domain   string
}

// Abstraction of k8s Service
type Service interface {
	Namespace() string
	Name() string

	// get service domain name.
	Host() string

	// get service cluster IP
	IP() string

	// get named port number.
	Port(name string) int32
}

func (s *service) Namespace() string {
	return s.resource.GetNamespace()
}

func (s *service) Name() string {
	return s.resource.GetName()
}

func (s *service) IP() string {
	return s.resource.Spec.ClusterIP
}

func (s *service) Host() string {
	return fmt.Sprintf("%s.%s.svc.%s", s.Name(), s.Namespace(), s.domain)
}

// Get port number named as parameter `name`
//
// If not found, return `0`.
func (s *service) Port(name string) int32 {
	for _, p := range s.resource.Spec.Ports {
		if p.Name == name {
			return p.Port
		}
	}
	return 0
}

// Abstraction of k8s Deployment
type Deployment interface {
	Name() string
	Namespace() string

	// replicas wanted by the spec. Defaults to 1 when unset.
	DesiredReplicas() int32

	// replicas available now.
	AvailableReplicas() int32
}

type deployment struct {
	resource *kubeapps.Deployment
}

func (d *deployment) Namespace() string {
	return d.resource.GetNamespace()
}

func (d *deployment) Name() string {
	return d.resource.GetName()
}

func (d *deployment) DesiredReplicas() int32 {
	if r := d.resource.Spec.Replicas; r != nil {
		return *r
	}
	return 1
}

func (d *deployment) AvailableReplicas() int32 {
	return d.resource.Status.AvailableReplicas
}

// Abstraction of k8s StatefulSet
type StatefulSet interface {
	Name() string
	Namespace() string

	// replicas wanted by the spec. Defaults to 1 when unset.
	DesiredReplicas() int32

	// replicas passing their readiness probe now.
	ReadyReplicas() int32
}

type statefulSet struct {
	resource *kubeapps.StatefulSet
}

func (s *statefulSet) Namespace() string {
	return s.resource.GetNamespace()
}

func (s *statefulSet) Name() string {
	return s.resource.GetName()
}

func (s *statefulSet) DesiredReplicas() int32 {
	if r := s.resource.Spec.Replicas; r != nil {
		return *r
	}
	return 1
}

func (s *statefulSet) ReadyReplicas() int32 {
	return s.resource.Status.ReadyReplicas
}

// Abstraction of Persistent Volume Claim
type PVC interface {
	Name() string
	Namespace() string
	VolumeName() string

	// Capacity in claim.
	ClaimedCapacity() kubeapiresource.Quantity

	Bound() bool
}

type pvc struct {
	resource *kubecore.PersistentVolumeClaim
}

func (p *pvc) Name() string {
	return p.resource.GetName()
}

func (p *pvc) Namespace() string {
	return p.resource.GetNamespace()
}

func (p *pvc) VolumeName() string {
	return p.resource.Spec.VolumeName
}

func (p *pvc) ClaimedCapacity() kubeapiresource.Quantity {
	return p.resource.Spec.Resources.Requests["storage"]
}

func (p *pvc) Bound() bool {
	return p.resource.Status.Phase == kubecore.ClaimBound
}

type JobStatus string

const (
	// no pods have been started.
	Pending JobStatus = "Pending"

	// at least one pod has started, and the job has not completed.
	Running JobStatus = "Running"

	// the job is succeeded.
	Succeeded JobStatus = "Succeeded"

	// the job is failed.
	Failed JobStatus = "Failed"
)

// abstraction of k8s job.
type Job interface {
	// the name of the job
	Name() string

	// the namespace where the job is placed in
	Namespace() string

	// how does the job progress.
	//
	// This value is just a SNAPSHOT of the job when you get the instance.
	// To refresh, you should get a new instance with `Cluster.GetJob`.
	Status() JobStatus

	// ExitCode returns the exit code of the named container.
	//
	// # Return
	//
	// - exitCode : the exit code of the container.
	//
	// - reason: the reason of the termination.
	//
	// - ok : true if the container has been stopped, false otherwise.
	ExitCode(container string) (uint8, string, bool)

	// Log get log stream of the job's first pod.
	Log(ctx context.Context, containerName string) (io.ReadCloser, error)
}

type job struct {
	job    *kubebatch.Job
	pods   []kubecore.Pod
	client K8sClient
}

var _ Job = &job{}

func (j *job) Name() string {
	return j.job.Name
}

func (j *job) Namespace() string {
	return j.job.Namespace
}

func (j *job) Status() JobStatus {
	for _, sc := range j.job.Status.Conditions {
		if sc.Status != kubecore.ConditionTrue {
			continue
		}
		switch sc.Type {
		case kubebatch.JobComplete:
			return Succeeded
		case kubebatch.JobFailed:
			return Failed
		}
	}

	for _, p := range j.pods {
		// if at least one pod has been run, the job has been run.
		switch p.Status.Phase {
		case kubecore.PodRunning, kubecore.PodSucceeded, kubecore.PodFailed:
			return Running
		}
	}

	return Pending
}

func (j *job) Log(ctx context.Context, containerName string) (io.ReadCloser, error) {
	if len(j.pods) == 0 {
		return nil, errors.New("no pods")
	}
	pod := j.pods[0]
	return j.client.Log(ctx, pod.Namespace, pod.Name, containerName)
}

func (j *job) ExitCode(container string) (uint8, string, bool) {
	for _, p := range j.pods {
		for _, c := range p.Status.ContainerStatuses {
			if c.Name != container {
				continue
			}
			if term := c.State.Terminated; term != nil {
				return uint8(term.ExitCode), term.Reason, true
			}
			break
		}
	}
	return 0, "", false
}

type PodPhase kubecore.PodPhase

var (
	PodPending   PodPhase = PodPhase(kubecore.PodPending)
	PodRunning   PodPhase = PodPhase(kubecore.PodRunning)
	PodSucceeded PodPhase = PodPhase(kubecore.PodSucceeded)
	PodFailed    PodPhase = PodPhase(kubecore.PodFailed)
	PodUnknown   PodPhase = PodPhase(kubecore.PodUnknown)
)

type Pod interface {
	Name() string
	Status() PodPhase
	Host() string
	Ports() map[string]int32
}

type pod struct {
	description kubecore.Pod
}

func (p *pod) Name() string {
	return p.description.Name
}

func (p *pod) Status() PodPhase {
	return PodPhase(p.description.Status.Phase)
}

func (p *pod) Host() string {
	return p.description.Status.PodIP
}

func (p *pod) Ports() map[string]int32 {
	ports := map[string]int32{}
	for _, c := range p.description.Spec.Containers {
		for _, p := range c.Ports {
			ports[p.Name] = p.ContainerPort
		}
	}
	return ports
}

// PodOf wraps a raw pod into the Pod view.
func PodOf(description kubecore.Pod) Pod {
	return &pod{description: description}
}

// Cluster is the view of one namespace in a kubernetes cluster.
//
// Get* methods poll until the named resource exists AND satisfies all
// requirements, and resolve their promise with an abstraction of it.
// Bound the wait with the context or with WithCheckpoint.
type Cluster interface {
	Namespace() string
	Domain() string

	// raw read access, for callers needing the underlying spec.
	Client() K8sClient

	// write access by manifest.
	Dynamic() DynamicClient

	// Get existing Service and wait for it to satisfy all requirements.
	//
	// If no requirements are given, ServiceIsReady is used.
	GetService(context.Context, retry.Backoff, string, ...Requirement[*kubecore.Service]) retry.Promise[Service]

	// Get existing Deployment and wait for it to satisfy all requirements.
	//
	// If no requirements are given, EnoughReplicas is used.
	GetDeployment(context.Context, retry.Backoff, string, ...Requirement[*kubeapps.Deployment]) retry.Promise[Deployment]

	// Get existing StatefulSet and wait for it to satisfy all requirements.
	//
	// If no requirements are given, StatefulSetReady is used.
	GetStatefulSet(context.Context, retry.Backoff, string, ...Requirement[*kubeapps.StatefulSet]) retry.Promise[StatefulSet]

	// Get existing PVC and wait for it to satisfy all requirements.
	//
	// If no requirements are given, PVCIsBound is used.
	GetPVC(context.Context, retry.Backoff, string, ...Requirement[*kubecore.PersistentVolumeClaim]) retry.Promise[PVC]

	// Get existing Job and wait for it to satisfy all requirements.
	//
	// If no requirements are given, JobSucceeded is used.
	// The promise fails with ErrJobFailed when the job reports its Failed condition.
	GetJob(context.Context, retry.Backoff, string, ...Requirement[*kubebatch.Job]) retry.Promise[Job]

	// Get an arbitrary resource by reference and wait for it to satisfy all
	// requirements.
	//
	// If no requirements are given, ResourceExists is used.
	GetResource(context.Context, retry.Backoff, ResourceRef, ...Requirement[*unstructured.Unstructured]) retry.Promise[Resource]

	// Delete a resource by reference and wait until it is gone.
	//
	// Deleting a resource which does not exist is not an error.
	DeleteResource(context.Context, retry.Backoff, ResourceRef) retry.Promise[ResourceRef]

	// List pods matching the selector. Snapshot, no waiting.
	FindPods(context.Context, LabelSelector) ([]Pod, error)
}

type k8sCluster struct {
	client    K8sClient
	dynamic   DynamicClient
	namespace string
	domain    string
}

// Requirement is a function that checks if a k8s resource satisfies the requirement.
//
// # Return
//
// - error: When the value satisfies the requirement, return nil.
// If it is waiting to satisfy the requirement, return `retry.ErrRetry`.
// Otherwise, return error.
type Requirement[T any] func(value T) error

// WithCheckpoint bounds a requirement with a deadline.
//
// Once the requirement has been satisfied it stays satisfied;
// after the deadline it fails with k8serrors.ErrDeadlineExceeded.
func WithCheckpoint[T any](requirement Requirement[T], deadline time.Time) Requirement[T] {
	satisfied := false
	return func(value T) error {
		if satisfied {
			return nil
		}
		if time.Now().After(deadline) {
			return kerr.ErrDeadlineExceeded
		}

		err := requirement(value)
		if err != nil {
			return err
		}

		satisfied = true
		return nil
	}
}

func satisfyAll[T any](value T, req []Requirement[T]) error {
	for _, r := range req {
		if err := r(value); err != nil {
			return err
		}
	}
	return nil
}

// type check: k8sCluster implements Cluster
var _ Cluster = &k8sCluster{}

// Attach a kubernetes cluster.
//
// args:
//   - client: read client
//   - dyn: manifest-based write client
//   - namespace: k8s namespace
//   - domain: k8s-internal domain name. If empty string is passed, it uses `"cluster.local"` as default.
func AttachCluster(client K8sClient, dyn DynamicClient, namespace string, domain string) Cluster {
	if domain == "" {
		domain = "cluster.local"
	}
	return &k8sCluster{client: client, dynamic: dyn, namespace: namespace, domain: domain}
}

func (c *k8sCluster) Namespace() string {
	return c.namespace
}

func (c *k8sCluster) Domain() string {
	return c.domain
}

func (c *k8sCluster) Client() K8sClient {
	return c.client
}

func (c *k8sCluster) Dynamic() DynamicClient {
	return c.dynamic
}

var ServiceIsReady Requirement[*kubecore.Service] = func(value *kubecore.Service) error {
	if value.Spec.ClusterIP != "" {
		return nil
	}
	return retry.ErrRetry
}

func (c *k8sCluster) GetService(
	ctx context.Context, backoff retry.Backoff, name string,
	requirements ...Requirement[*kubecore.Service],
) retry.Promise[Service] {
	if len(requirements) == 0 {
		requirements = []Requirement[*kubecore.Service]{ServiceIsReady}
	}

	return retry.Go(ctx, backoff, func() (Service, error) {
		svc, err := c.client.GetService(ctx, c.namespace, name)
		if err != nil {
			if kubeerr.IsNotFound(err) {
				return nil, retry.ErrRetry
			}
			return nil, err
		}
		if err := satisfyAll(svc, requirements); err != nil {
			return nil, err
		}
		return &service{resource: svc, domain: c.domain}, nil
	})
}

var EnoughReplicas Requirement[*kubeapps.Deployment] = func(value *kubeapps.Deployment) error {
	replicas := int32(1)
	if value.Spec.Replicas != nil {
		replicas = *value.Spec.Replicas
	}
	if replicas <= value.Status.AvailableReplicas {
		return nil
	}
	return retry.ErrRetry
}

func (c *k8sCluster) GetDeployment(
	ctx context.Context, backoff retry.Backoff, name string,
	requirements ...Requirement[*kubeapps.Deployment],
) retry.Promise[Deployment] {
	if len(requirements) == 0 {
		requirements = []Requirement[*kubeapps.Deployment]{EnoughReplicas}
	}

	return retry.Go(ctx, backoff, func() (Deployment, error) {
		depl, err := c.client.GetDeployment(ctx, c.namespace, name)
		if err != nil {
			if kubeerr.IsNotFound(err) {
				return nil, retry.ErrRetry
			}
			return nil, err
		}
		if err := satisfyAll(depl, requirements); err != nil {
			return nil, err
		}
		return &deployment{resource: depl}, nil
	})
}

var StatefulSetReady Requirement[*kubeapps.StatefulSet] = func(value *kubeapps.StatefulSet) error {
	replicas := int32(1)
	if value.Spec.Replicas != nil {
		replicas = *value.Spec.Replicas
	}
	if replicas <= value.Status.ReadyReplicas {
		return nil
	}
	return retry.ErrRetry
}

func (c *k8sCluster) GetStatefulSet(
	ctx context.Context, backoff retry.Backoff, name string,
	requirements ...Requirement[*kubeapps.StatefulSet],
) retry.Promise[StatefulSet] {
	if len(requirements) == 0 {
		requirements = []Requirement[*kubeapps.StatefulSet]{StatefulSetReady}
	}

	return retry.Go(ctx, backoff, func() (StatefulSet, error) {
		sts, err := c.client.GetStatefulSet(ctx, c.namespace, name)
		if err != nil {
			if kubeerr.IsNotFound(err) {
				return nil, retry.ErrRetry
			}
			return nil, err
		}
		if err := satisfyAll(sts, requirements); err != nil {
			return nil, err
		}
		return &statefulSet{resource: sts}, nil
	})
}

var PVCIsBound Requirement[*kubecore.PersistentVolumeClaim] = func(value *kubecore.PersistentVolumeClaim) error {
	if value.Status.Phase == kubecore.ClaimBound {
		return nil
	}
	return retry.ErrRetry
}

func (c *k8sCluster) GetPVC(
	ctx context.Context, backoff retry.Backoff, pvcname string,
	requirements ...Requirement[*kubecore.PersistentVolumeClaim],
) retry.Promise[PVC] {
	if len(requirements) == 0 {
		requirements = []Requirement[*kubecore.PersistentVolumeClaim]{PVCIsBound}
	}

	return retry.Go(ctx, backoff, func() (PVC, error) {
		_pvc, err := c.client.GetPVC(ctx, c.namespace, pvcname)
		if err != nil {
			if kubeerr.IsNotFound(err) {
				return nil, retry.ErrRetry
			}
			return nil, err
		}
		if err := satisfyAll(_pvc, requirements); err != nil {
			return nil, err
		}
		return &pvc{resource: _pvc}, nil
	})
}

// ErrJobFailed is the error of waiting for a job which reports its Failed condition.
var ErrJobFailed = errors.New("job failed")

var JobSucceeded Requirement[*kubebatch.Job] = func(value *kubebatch.Job) error {
	for _, cond := range value.Status.Conditions {
		if cond.Status != kubecore.ConditionTrue {
			continue
		}
		switch cond.Type {
		case kubebatch.JobComplete:
			return nil
		case kubebatch.JobFailed:
			return fmt.Errorf("%w: %s: %s", ErrJobFailed, cond.Reason, cond.Message)
		}
	}
	return retry.ErrRetry
}

func (c *k8sCluster) GetJob(
	ctx context.Context, backoff retry.Backoff, name string,
	requirements ...Requirement[*kubebatch.Job],
) retry.Promise[Job] {
	if len(requirements) == 0 {
		requirements = []Requirement[*kubebatch.Job]{JobSucceeded}
	}

	return retry.Go(ctx, backoff, func() (Job, error) {
		_job, err := c.client.GetJob(ctx, c.namespace, name)
		if err != nil {
			if kubeerr.IsNotFound(err) {
				return nil, retry.ErrRetry
			}
			return nil, err
		}

		if err := satisfyAll(_job, requirements); err != nil {
			return nil, err
		}

		ret := &job{job: _job, client: c.client}
		if _job.Spec.Selector != nil {
			pods, err := c.client.FindPods(
				ctx, c.namespace,
				LabelsToSelector(_job.Spec.Selector.MatchLabels),
			)
			if err == nil {
				ret.pods = pods
			}
		}
		return ret, nil
	})
}

func (c *k8sCluster) FindPods(ctx context.Context, ls LabelSelector) ([]Pod, error) {
	found, err := c.client.FindPods(ctx, c.namespace, ls)
	if err != nil {
		return nil, err
	}
	pods := make([]Pod, 0, len(found))
	for _, p := range found {
		pods = append(pods, &pod{description: p})
	}
	return pods, nil
}
