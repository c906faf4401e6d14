package stack

import (
	"fmt"
	"time"

	"github.com/opst/trackfab-api-types/images"
	"k8s.io/apimachinery/pkg/api/resource"
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `pkg/configs/stack.XxxMarshall` are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

// Defaults of the stack. A zero StackConfigMarshall seals into a stack
// built entirely from these.
//
// Credentials here are development defaults. Override them for any stack
// reachable from outside the cluster.
const (
	DefaultNamespace = "trackfab"
	DefaultTimeout   = 3 * time.Minute

	DefaultArtifactStoreName      = "artifact-store"
	DefaultArtifactStoreImage     = "minio/minio:RELEASE.2024-06-13T22-53-53Z"
	DefaultArtifactStorePort      = int32(9000)
	DefaultArtifactStoreCapacity  = "10Gi"
	DefaultArtifactStoreBucket    = "trackfab"
	DefaultArtifactStoreInitImage = "minio/mc:RELEASE.2024-06-12T14-34-03Z"
	DefaultArtifactStoreUser      = "minio"
	DefaultArtifactStorePassword  = "minio123"

	DefaultMetadataDBName     = "metadata-db"
	DefaultMetadataDBImage    = "postgres:16.3"
	DefaultMetadataDBPort     = int32(5432)
	DefaultMetadataDBCapacity = "8Gi"
	DefaultMetadataDBUser     = "trackfab"
	DefaultMetadataDBPassword = "trackfab"
	DefaultMetadataDBDatabase = "trackdb"

	DefaultTrackingServerName  = "tracking-server"
	DefaultTrackingServerImage = "ghcr.io/opst/trackfab/trackd:latest"
	DefaultTrackingServerPort  = int32(5000)

	DefaultMetricsGatewayName  = "metrics-gateway"
	DefaultMetricsGatewayImage = "prom/pushgateway:v1.9.0"
	DefaultMetricsGatewayPort  = int32(9091)

	DefaultGitOpsSourceName        = "trackfab-source"
	DefaultGitOpsKustomizationName = "trackfab-stack"
	DefaultGitOpsRef               = "main"
)

type StackConfigMarshall struct {
	Namespace      string                       `yaml:"namespace,omitempty"`
	Timeout        string                       `yaml:"timeout,omitempty"`
	GitOps         *GitOpsConfigMarshall        `yaml:"gitOps,omitempty"`
	Manifests      string                       `yaml:"manifests,omitempty"`
	ArtifactStore  *ArtifactStoreConfigMarshall `yaml:"artifactStore,omitempty"`
	MetadataDB     *MetadataDBConfigMarshall    `yaml:"metadataDB,omitempty"`
	TrackingServer *ComponentConfigMarshall     `yaml:"trackingServer,omitempty"`
	MetricsGateway *ComponentConfigMarshall     `yaml:"metricsGateway,omitempty"`
}

var _ Marshalled[*StackConfig] = &StackConfigMarshall{}

// verify configuration value and create "readonly" version of this.
//
// IT WILL PANIC if any misconfiguration is found.
func (m *StackConfigMarshall) TrySeal() *StackConfig {
	return m.trySeal("(root)")
}

func (m *StackConfigMarshall) trySeal(path string) *StackConfig {
	var gitOps *GitOpsConfig
	if m.GitOps != nil {
		gitOps = m.GitOps.trySeal(path + ".gitOps")
	}
	return &StackConfig{
		namespace:      fallback(m.Namespace, DefaultNamespace),
		timeout:        parseDuration(fallback(m.Timeout, DefaultTimeout.String()), path+".timeout"),
		gitOps:         gitOps,
		manifests:      m.Manifests,
		artifactStore:  orNew(m.ArtifactStore).trySeal(path + ".artifactStore"),
		metadataDB:     orNew(m.MetadataDB).trySeal(path + ".metadataDB"),
		trackingServer: orNew(m.TrackingServer).trySeal(path+".trackingServer", DefaultTrackingServerName, DefaultTrackingServerImage, DefaultTrackingServerPort),
		metricsGateway: orNew(m.MetricsGateway).trySeal(path+".metricsGateway", DefaultMetricsGatewayName, DefaultMetricsGatewayImage, DefaultMetricsGatewayPort),
	}
}

type GitOpsConfigMarshall struct {
	SourceName        string `yaml:"sourceName,omitempty"`
	KustomizationName string `yaml:"kustomizationName,omitempty"`
	URL               string `yaml:"url"`
	Ref               string `yaml:"ref,omitempty"`
	Path              string `yaml:"path"`
}

func (gm *GitOpsConfigMarshall) trySeal(path string) *GitOpsConfig {
	return &GitOpsConfig{
		sourceName:        fallback(gm.SourceName, DefaultGitOpsSourceName),
		kustomizationName: fallback(gm.KustomizationName, DefaultGitOpsKustomizationName),
		url:               required(gm.URL, path+".url"),
		ref:               fallback(gm.Ref, DefaultGitOpsRef),
		path:              required(gm.Path, path+".path"),
	}
}

type ComponentConfigMarshall struct {
	Name  string `yaml:"name,omitempty"`
	Image string `yaml:"image,omitempty"`
	Port  int32  `yaml:"port,omitempty"`
}

func (cm *ComponentConfigMarshall) trySeal(path string, name string, image string, port int32) *ComponentConfig {
	return &ComponentConfig{
		name:  fallback(cm.Name, name),
		image: parseImage(fallback(cm.Image, image), path+".image"),
		port:  fallback(cm.Port, port),
	}
}

type ArtifactStoreConfigMarshall struct {
	Name      string                `yaml:"name,omitempty"`
	Image     string                `yaml:"image,omitempty"`
	Port      int32                 `yaml:"port,omitempty"`
	Volume    *VolumeConfigMarshall `yaml:"volume,omitempty"`
	Bucket    string                `yaml:"bucket,omitempty"`
	InitImage string                `yaml:"initImage,omitempty"`
	User      string                `yaml:"user,omitempty"`
	Password  string                `yaml:"password,omitempty"`
}

func (am *ArtifactStoreConfigMarshall) trySeal(path string) *ArtifactStoreConfig {
	return &ArtifactStoreConfig{
		component: &ComponentConfig{
			name:  fallback(am.Name, DefaultArtifactStoreName),
			image: parseImage(fallback(am.Image, DefaultArtifactStoreImage), path+".image"),
			port:  fallback(am.Port, DefaultArtifactStorePort),
		},
		volume:    orNew(am.Volume).trySeal(path+".volume", DefaultArtifactStoreCapacity),
		bucket:    fallback(am.Bucket, DefaultArtifactStoreBucket),
		initImage: parseImage(fallback(am.InitImage, DefaultArtifactStoreInitImage), path+".initImage"),
		user:      fallback(am.User, DefaultArtifactStoreUser),
		password:  fallback(am.Password, DefaultArtifactStorePassword),
	}
}

type MetadataDBConfigMarshall struct {
	Name     string                `yaml:"name,omitempty"`
	Image    string                `yaml:"image,omitempty"`
	Port     int32                 `yaml:"port,omitempty"`
	Volume   *VolumeConfigMarshall `yaml:"volume,omitempty"`
	User     string                `yaml:"user,omitempty"`
	Password string                `yaml:"password,omitempty"`
	Database string                `yaml:"database,omitempty"`
}

func (dm *MetadataDBConfigMarshall) trySeal(path string) *MetadataDBConfig {
	return &MetadataDBConfig{
		component: &ComponentConfig{
			name:  fallback(dm.Name, DefaultMetadataDBName),
			image: parseImage(fallback(dm.Image, DefaultMetadataDBImage), path+".image"),
			port:  fallback(dm.Port, DefaultMetadataDBPort),
		},
		volume:   orNew(dm.Volume).trySeal(path+".volume", DefaultMetadataDBCapacity),
		user:     fallback(dm.User, DefaultMetadataDBUser),
		password: fallback(dm.Password, DefaultMetadataDBPassword),
		database: fallback(dm.Database, DefaultMetadataDBDatabase),
	}
}

type VolumeConfigMarshall struct {
	StorageClassName string `yaml:"storageClassName,omitempty"`
	Capacity         string `yaml:"capacity,omitempty"`
}

func (vm *VolumeConfigMarshall) trySeal(path string, capacity string) *VolumeConfig {
	return &VolumeConfig{
		storageClassName: vm.StorageClassName,
		capacity:         parseQuantity(fallback(vm.Capacity, capacity), path+".capacity"),
	}
}

func parseImage(s string, path string) images.Ref {
	ref := images.Ref{}
	if err := ref.Parse(s); err != nil {
		panic(fmt.Errorf("%s can not be parsed as an image reference: %w", path, err))
	}
	return ref
}

func parseQuantity(s string, path string) resource.Quantity {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		panic(fmt.Errorf("%s can not be parsed: %w", path, err))
	}
	return q
}

func parseDuration(s string, path string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Errorf("%s can not be parsed: %w", path, err))
	}
	return d
}

func orNew[T any](v *T) *T {
	if v == nil {
		return new(T)
	}
	return v
}

func fallback[T comparable](v T, def T) T {
	if v == *new(T) {
		return def
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}
