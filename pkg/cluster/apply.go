package cluster

import (
	"context"
	"errors"
	"fmt"

	kerr "github.com/opst/trackfab/pkg/cluster/k8serrors"
	"github.com/opst/trackfab/pkg/utils/retry"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	kubeschema "k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
)

// ResourceRef points at one resource of any kind, including custom ones.
type ResourceRef struct {
	GroupVersionKind kubeschema.GroupVersionKind
	Namespace        string
	Name             string
}

func RefOf(obj *unstructured.Unstructured) ResourceRef {
	return ResourceRef{
		GroupVersionKind: obj.GroupVersionKind(),
		Namespace:        obj.GetNamespace(),
		Name:             obj.GetName(),
	}
}

func (r ResourceRef) String() string {
	apiVersion, kind := r.GroupVersionKind.ToAPIVersionAndKind()
	if r.Namespace == "" {
		return fmt.Sprintf("%s %s %s", apiVersion, kind, r.Name)
	}
	return fmt.Sprintf("%s %s %s/%s", apiVersion, kind, r.Namespace, r.Name)
}

// DynamicClient applies, reads and deletes resources by manifest.
// It is the write path to the cluster.
type DynamicClient interface {
	// Get the current state of the referred resource.
	Get(ctx context.Context, ref ResourceRef) (*unstructured.Unstructured, error)

	// Apply the object server-side.
	//
	// With force, field ownership conflicts with other managers are taken over.
	// Without, they surface as k8serrors.ErrConflict.
	Apply(ctx context.Context, obj *unstructured.Unstructured, force bool) (*unstructured.Unstructured, error)

	// Delete the referred resource, cascading to its dependents.
	//
	// Deleting what does not exist is not an error.
	Delete(ctx context.Context, ref ResourceRef) error
}

type dynamicClient struct {
	client       dynamic.Interface
	mapper       meta.RESTMapper
	fieldManager string

	// fallback for namespaced objects which do not name one.
	namespace string
}

// type check: dynamicClient implements DynamicClient
var _ DynamicClient = &dynamicClient{}

func WrapDynamicClient(client dynamic.Interface, mapper meta.RESTMapper, fieldManager string, namespace string) DynamicClient {
	return &dynamicClient{
		client: client, mapper: mapper,
		fieldManager: fieldManager, namespace: namespace,
	}
}

// resolve maps GroupVersionKind to the REST endpoint serving it.
//
// A kind the cluster does not serve (missing CRD, typically the cluster
// lacks its controller) becomes k8serrors.ErrMissing.
func (d *dynamicClient) resolve(ref ResourceRef) (dynamic.ResourceInterface, error) {
	gvk := ref.GroupVersionKind
	mapping, err := d.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		if meta.IsNoMatchError(err) {
			return nil, kerr.NewMissingCausedBy(
				fmt.Sprintf("kind %s %s is not served by the cluster", gvk.GroupVersion(), gvk.Kind), err,
			)
		}
		return nil, err
	}

	if mapping.Scope.Name() != meta.RESTScopeNameNamespace {
		return d.client.Resource(mapping.Resource), nil
	}
	ns := ref.Namespace
	if ns == "" {
		ns = d.namespace
	}
	return d.client.Resource(mapping.Resource).Namespace(ns), nil
}

func (d *dynamicClient) Get(ctx context.Context, ref ResourceRef) (*unstructured.Unstructured, error) {
	ri, err := d.resolve(ref)
	if err != nil {
		return nil, err
	}
	return ri.Get(ctx, ref.Name, kubeapimeta.GetOptions{})
}

func (d *dynamicClient) Apply(ctx context.Context, obj *unstructured.Unstructured, force bool) (*unstructured.Unstructured, error) {
	ref := RefOf(obj)
	ri, err := d.resolve(ref)
	if err != nil {
		return nil, err
	}

	applied, err := ri.Apply(ctx, ref.Name, obj, kubeapimeta.ApplyOptions{
		FieldManager: d.fieldManager,
		Force:        force,
	})
	if err != nil {
		if kubeerr.IsConflict(err) {
			return nil, kerr.NewConflictCausedBy(
				fmt.Sprintf("%s is managed by another field manager", ref), err,
			)
		}
		return nil, err
	}
	return applied, nil
}

func (d *dynamicClient) Delete(ctx context.Context, ref ResourceRef) error {
	ri, err := d.resolve(ref)
	if err != nil {
		return err
	}
	foreground := kubeapimeta.DeletePropagationForeground
	err = ri.Delete(ctx, ref.Name, kubeapimeta.DeleteOptions{PropagationPolicy: &foreground})
	if err != nil && !kubeerr.IsNotFound(err) {
		return err
	}
	return nil
}

// Condition is one entry of status.conditions.
type Condition struct {
	Type    string
	Status  string
	Reason  string
	Message string
}

// ConditionsOf reads status.conditions of any resource following the
// metav1.Condition convention. Resources without conditions yield nil.
func ConditionsOf(obj *unstructured.Unstructured) []Condition {
	raw, ok, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if !ok || err != nil {
		return nil
	}

	conds := make([]Condition, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		c := Condition{}
		c.Type, _ = m["type"].(string)
		c.Status, _ = m["status"].(string)
		c.Reason, _ = m["reason"].(string)
		c.Message, _ = m["message"].(string)
		conds = append(conds, c)
	}
	return conds
}

// FindCondition picks the condition with the given type.
func FindCondition(obj *unstructured.Unstructured, condType string) (Condition, bool) {
	for _, c := range ConditionsOf(obj) {
		if c.Type == condType {
			return c, true
		}
	}
	return Condition{}, false
}

// Abstraction of a manifest-applied resource.
type Resource interface {
	Ref() ResourceRef

	// last observed state.
	Object() *unstructured.Unstructured

	// status.conditions, empty when the resource reports none.
	Conditions() []Condition
}

type unstructuredResource struct {
	object *unstructured.Unstructured
}

var _ Resource = &unstructuredResource{}

func (u *unstructuredResource) Ref() ResourceRef {
	return RefOf(u.object)
}

func (u *unstructuredResource) Object() *unstructured.Unstructured {
	return u.object
}

func (u *unstructuredResource) Conditions() []Condition {
	return ConditionsOf(u.object)
}

// ResourceExists is satisfied by any resource the cluster returns.
var ResourceExists Requirement[*unstructured.Unstructured] = func(value *unstructured.Unstructured) error {
	return nil
}

// ErrResourceStalled: reconciliation of the resource stopped making progress.
var ErrResourceStalled = errors.New("resource stalled")

// ResourceIsReady is satisfied when the resource reports condition Ready=True.
//
// Controllers flip Ready while reconciling, so Ready=False keeps the wait
// going. Condition Stalled=True ends it with ErrResourceStalled.
var ResourceIsReady Requirement[*unstructured.Unstructured] = func(value *unstructured.Unstructured) error {
	for _, c := range ConditionsOf(value) {
		if c.Type == "Stalled" && c.Status == "True" {
			return fmt.Errorf("%w: %s: %s", ErrResourceStalled, c.Reason, c.Message)
		}
	}
	if c, ok := FindCondition(value, "Ready"); ok && c.Status == "True" {
		return nil
	}
	return retry.ErrRetry
}

func (c *k8sCluster) GetResource(
	ctx context.Context, backoff retry.Backoff, ref ResourceRef,
	requirements ...Requirement[*unstructured.Unstructured],
) retry.Promise[Resource] {
	if len(requirements) == 0 {
		requirements = []Requirement[*unstructured.Unstructured]{ResourceExists}
	}

	return retry.Go(ctx, backoff, func() (Resource, error) {
		obj, err := c.dynamic.Get(ctx, ref)
		if err != nil {
			if kubeerr.IsNotFound(err) {
				return nil, retry.ErrRetry
			}
			return nil, err
		}
		if err := satisfyAll(obj, requirements); err != nil {
			return nil, err
		}
		return &unstructuredResource{object: obj}, nil
	})
}

func (c *k8sCluster) DeleteResource(
	ctx context.Context, backoff retry.Backoff, ref ResourceRef,
) retry.Promise[ResourceRef] {
	select {
	case <-ctx.Done():
		return retry.Failed[ResourceRef](ctx.Err())
	default:
	}

	if err := c.dynamic.Delete(ctx, ref); err != nil {
		if kerr.AsMissingError(err) {
			// the kind itself is not served; nothing can be left.
			return retry.Ok(ref)
		}
		return retry.Failed[ResourceRef](err)
	}

	return retry.Go(ctx, backoff, func() (ResourceRef, error) {
		_, err := c.dynamic.Get(ctx, ref)
		if err == nil {
			return ref, retry.ErrRetry // still terminating
		}
		if kubeerr.IsNotFound(err) || kerr.AsMissingError(err) {
			return ref, nil
		}
		return ref, err
	})
}
