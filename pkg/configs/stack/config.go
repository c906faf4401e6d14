package stack

import (
	"time"

	"github.com/opst/trackfab-api-types/images"
	"k8s.io/apimachinery/pkg/api/resource"
)

// Configuration of a trackfab stack deployment.
//
// to get `StackConfig` instance, use `StackConfigMarshall.TrySeal()` .
type StackConfig struct {
	namespace      string
	timeout        time.Duration
	gitOps         *GitOpsConfig
	manifests      string
	artifactStore  *ArtifactStoreConfig
	metadataDB     *MetadataDBConfig
	trackingServer *ComponentConfig
	metricsGateway *ComponentConfig
}

// k8s namespace where the stack is deployed.
func (c *StackConfig) Namespace() string {
	return c.namespace
}

// Budget for waiting on each component to come ready (or to be gone).
func (c *StackConfig) Timeout() time.Duration {
	return c.timeout
}

// GitOps source to be applied. nil means the stack is applied directly
// from manifests.
func (c *StackConfig) GitOps() *GitOpsConfig {
	return c.gitOps
}

// Directory holding stack manifests. Empty means builtin manifests.
func (c *StackConfig) Manifests() string {
	return c.manifests
}

func (c *StackConfig) ArtifactStore() *ArtifactStoreConfig {
	return c.artifactStore
}

func (c *StackConfig) MetadataDB() *MetadataDBConfig {
	return c.metadataDB
}

func (c *StackConfig) TrackingServer() *ComponentConfig {
	return c.trackingServer
}

func (c *StackConfig) MetricsGateway() *ComponentConfig {
	return c.metricsGateway
}

// GitOps controller resources declaring the stack.
type GitOpsConfig struct {
	sourceName        string
	kustomizationName string
	url               string
	ref               string
	path              string
}

// Name of the source custom resource.
func (g *GitOpsConfig) SourceName() string {
	return g.sourceName
}

// Name of the kustomization custom resource.
func (g *GitOpsConfig) KustomizationName() string {
	return g.kustomizationName
}

// Repository URL the controller pulls manifests from.
func (g *GitOpsConfig) URL() string {
	return g.url
}

// Branch or tag to track. default = "main"
func (g *GitOpsConfig) Ref() string {
	return g.ref
}

// Path of the manifests inside the repository.
func (g *GitOpsConfig) Path() string {
	return g.path
}

// A deployed component: its workload/service name, image and service port.
type ComponentConfig struct {
	name  string
	image images.Ref
	port  int32
}

// Name of the Deployment (or StatefulSet) and the Service of the component.
func (c *ComponentConfig) Name() string {
	return c.name
}

func (c *ComponentConfig) Image() images.Ref {
	return c.image
}

func (c *ComponentConfig) Port() int32 {
	return c.port
}

type ArtifactStoreConfig struct {
	component *ComponentConfig
	volume    *VolumeConfig
	bucket    string
	initImage images.Ref
	user      string
	password  string
}

func (c *ArtifactStoreConfig) Component() *ComponentConfig {
	return c.component
}

func (c *ArtifactStoreConfig) Volume() *VolumeConfig {
	return c.volume
}

// Bucket to be created in the store at deploy time.
func (c *ArtifactStoreConfig) Bucket() string {
	return c.bucket
}

// Image running the one-shot bucket initialization job.
func (c *ArtifactStoreConfig) InitImage() images.Ref {
	return c.initImage
}

func (c *ArtifactStoreConfig) User() string {
	return c.user
}

func (c *ArtifactStoreConfig) Password() string {
	return c.password
}

type MetadataDBConfig struct {
	component *ComponentConfig
	volume    *VolumeConfig
	user      string
	password  string
	database  string
}

func (c *MetadataDBConfig) Component() *ComponentConfig {
	return c.component
}

func (c *MetadataDBConfig) Volume() *VolumeConfig {
	return c.volume
}

func (c *MetadataDBConfig) User() string {
	return c.user
}

func (c *MetadataDBConfig) Password() string {
	return c.password
}

// Name of the database the tracking daemon stores metadata in.
func (c *MetadataDBConfig) Database() string {
	return c.database
}

// Setting for volumes.
type VolumeConfig struct {
	storageClassName string
	capacity         resource.Quantity
}

// What storage class should be used. Empty means the cluster default.
func (v *VolumeConfig) StorageClassName() string {
	return v.storageClassName
}

// How large should the PV be.
func (v *VolumeConfig) Capacity() resource.Quantity {
	return v.capacity
}
