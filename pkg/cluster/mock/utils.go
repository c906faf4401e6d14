package mock

import (
	"context"
	"errors"
	"io"

	"github.com/opst/trackfab/pkg/cluster"
	kubeapps "k8s.io/api/apps/v1"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// get mocked cluster.Cluster
//
// # returns
//
//   - cluster.Cluster : using *MockClient and *MockDynamic as base clients
//   - *MockClient : mock for reads. You can fake k8s behaviours or spy its usage.
//   - *MockDynamic : mock for manifest-based writes.
func NewCluster() (cluster.Cluster, *MockClient, *MockDynamic) {
	client := NewMockClient()
	dyn := NewMockDynamic()

	namespace := "fake-namespace"
	domain := "fake.local"

	return cluster.AttachCluster(client, dyn, namespace, domain), client, dyn
}

type MockClient struct {
	Impl struct {
		GetService     func(ctx context.Context, namespace string, svcname string) (*kubecore.Service, error)
		GetDeployment  func(ctx context.Context, namespace string, deplname string) (*kubeapps.Deployment, error)
		GetStatefulSet func(ctx context.Context, namespace string, name string) (*kubeapps.StatefulSet, error)
		GetPVC         func(ctx context.Context, namespace string, pvcname string) (*kubecore.PersistentVolumeClaim, error)
		GetJob         func(ctx context.Context, namespace string, name string) (*kubebatch.Job, error)
		GetPod         func(ctx context.Context, namespace string, name string) (*kubecore.Pod, error)
		FindPods       func(ctx context.Context, namespace string, ls cluster.LabelSelector) ([]kubecore.Pod, error)
		Log            func(ctx context.Context, namespace string, pod string, container string) (io.ReadCloser, error)
	}
	Called struct {
		GetService     uint64
		GetDeployment  uint64
		GetStatefulSet uint64
		GetPVC         uint64
		GetJob         uint64
		GetPod         uint64
		FindPods       uint64
		Log            uint64
	}
}

// MockClient implements cluster.K8sClient
var _ cluster.K8sClient = &MockClient{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) GetService(ctx context.Context, namespace string, svcname string) (*kubecore.Service, error) {
	m.Called.GetService += 1
	if m.Impl.GetService == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.GetService(ctx, namespace, svcname)
}

func (m *MockClient) GetDeployment(ctx context.Context, namespace string, deplname string) (*kubeapps.Deployment, error) {
	m.Called.GetDeployment += 1
	if m.Impl.GetDeployment == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.GetDeployment(ctx, namespace, deplname)
}

func (m *MockClient) GetStatefulSet(ctx context.Context, namespace string, name string) (*kubeapps.StatefulSet, error) {
	m.Called.GetStatefulSet += 1
	if m.Impl.GetStatefulSet == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.GetStatefulSet(ctx, namespace, name)
}

func (m *MockClient) GetPVC(ctx context.Context, namespace string, pvcname string) (*kubecore.PersistentVolumeClaim, error) {
	m.Called.GetPVC += 1
	if m.Impl.GetPVC == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.GetPVC(ctx, namespace, pvcname)
}

func (m *MockClient) GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
	m.Called.GetJob += 1
	if m.Impl.GetJob == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.GetJob(ctx, namespace, name)
}

func (m *MockClient) GetPod(ctx context.Context, namespace string, name string) (*kubecore.Pod, error) {
	m.Called.GetPod += 1
	if m.Impl.GetPod == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.GetPod(ctx, namespace, name)
}

func (m *MockClient) FindPods(ctx context.Context, namespace string, ls cluster.LabelSelector) ([]kubecore.Pod, error) {
	m.Called.FindPods += 1
	if m.Impl.FindPods == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.FindPods(ctx, namespace, ls)
}

func (m *MockClient) Log(ctx context.Context, namespace string, pod string, container string) (io.ReadCloser, error) {
	m.Called.Log += 1
	if m.Impl.Log == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.Log(ctx, namespace, pod, container)
}

type MockDynamic struct {
	Impl struct {
		Get    func(ctx context.Context, ref cluster.ResourceRef) (*unstructured.Unstructured, error)
		Apply  func(ctx context.Context, obj *unstructured.Unstructured, force bool) (*unstructured.Unstructured, error)
		Delete func(ctx context.Context, ref cluster.ResourceRef) error
	}
	Called struct {
		Get    uint64
		Apply  uint64
		Delete uint64
	}
}

// MockDynamic implements cluster.DynamicClient
var _ cluster.DynamicClient = &MockDynamic{}

func NewMockDynamic() *MockDynamic {
	return &MockDynamic{}
}

func (m *MockDynamic) Get(ctx context.Context, ref cluster.ResourceRef) (*unstructured.Unstructured, error) {
	m.Called.Get += 1
	if m.Impl.Get == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.Get(ctx, ref)
}

func (m *MockDynamic) Apply(ctx context.Context, obj *unstructured.Unstructured, force bool) (*unstructured.Unstructured, error) {
	m.Called.Apply += 1
	if m.Impl.Apply == nil {
		return nil, errors.New("[MOCK] not implemented")
	}
	return m.Impl.Apply(ctx, obj, force)
}

func (m *MockDynamic) Delete(ctx context.Context, ref cluster.ResourceRef) error {
	m.Called.Delete += 1
	if m.Impl.Delete == nil {
		return errors.New("[MOCK] not implemented")
	}
	return m.Impl.Delete(ctx, ref)
}
