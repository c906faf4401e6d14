package stack

import (
	"fmt"
	"net/url"

	config "github.com/opst/trackfab/pkg/configs/stack"
	trackdcfg "github.com/opst/trackfab/pkg/configs/trackd"
	ptr "github.com/opst/trackfab/pkg/utils/pointer"
	"gopkg.in/yaml.v3"
	kubeapps "k8s.io/api/apps/v1"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// LabelApp marks every builtin resource with the component it belongs to.
const LabelApp = "app"

// Names of the service ports. Port-forwarding and probes address ports
// by these names, so custom manifests should keep them.
const (
	PortNameAPI      = "api"      // artifact store S3 API
	PortNamePostgres = "postgres" // metadata database
	PortNameHTTP     = "http"     // tracking server and metrics gateway
)

// Ports the builtin containers listen on. Services map their configured
// port onto these by name.
const (
	artifactStorePort  = 9000
	metadataDBPort     = 5432
	trackingServerPort = 5000
	metricsGatewayPort = 9091
)

// DataVolumeName is the PVC name of a component's data volume.
func DataVolumeName(component string) string {
	return component + "-data"
}

// InitJobName is the name of the one-shot bucket initialization job.
func InitJobName(artifactStore string) string {
	return artifactStore + "-init"
}

// ConfigMapName is the name of the tracking server's config map.
func ConfigMapName(trackingServer string) string {
	return trackingServer + "-config"
}

// DatabaseURL renders the connection string of the metadata database
// listening at addr ("host:port").
func DatabaseURL(db *config.MetadataDBConfig, addr string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(db.User(), db.Password()),
		Host:   addr,
		Path:   "/" + db.Database(),
	}
	return u.String()
}

// BuiltinManifests renders the whole stack from its config, in apply
// order: namespace, artifact store (volume, workload, service, bucket
// job), metadata database, tracking server, metrics gateway.
func BuiltinManifests(conf *config.StackConfig) ([]*unstructured.Unstructured, error) {
	ns := conf.Namespace()

	typed := []runtime.Object{
		namespaceOf(ns),

		dataVolumeOf(ns, conf.ArtifactStore().Component().Name(), conf.ArtifactStore().Volume()),
		artifactStoreOf(ns, conf.ArtifactStore()),
		serviceOf(ns, conf.ArtifactStore().Component(), PortNameAPI),
		initJobOf(ns, conf.ArtifactStore()),

		dataVolumeOf(ns, conf.MetadataDB().Component().Name(), conf.MetadataDB().Volume()),
		metadataDBOf(ns, conf.MetadataDB()),
		serviceOf(ns, conf.MetadataDB().Component(), PortNamePostgres),
	}

	trackdConf, err := trackingServerConfigOf(ns, conf)
	if err != nil {
		return nil, err
	}
	typed = append(typed,
		trackdConf,
		trackingServerOf(ns, conf.TrackingServer()),
		serviceOf(ns, conf.TrackingServer(), PortNameHTTP),

		metricsGatewayOf(ns, conf.MetricsGateway()),
		serviceOf(ns, conf.MetricsGateway(), PortNameHTTP),
	)

	objs := make([]*unstructured.Unstructured, 0, len(typed))
	for _, t := range typed {
		obj, err := toUnstructured(t)
		if err != nil {
			return nil, err
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// GitOpsManifests renders the source and kustomization resources
// declaring the stack, in apply order.
//
// Prune is left off: teardown is driven by Down, which must be able to
// keep the data volumes behind.
func GitOpsManifests(conf *config.StackConfig) []*unstructured.Unstructured {
	g := conf.GitOps()
	ns := conf.Namespace()

	source := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "source.toolkit.fluxcd.io/v1",
		"kind":       "GitRepository",
		"metadata": map[string]any{
			"name":      g.SourceName(),
			"namespace": ns,
		},
		"spec": map[string]any{
			"interval": "1m",
			"url":      g.URL(),
			"ref": map[string]any{
				"branch": g.Ref(),
			},
		},
	}}

	kustomization := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "kustomize.toolkit.fluxcd.io/v1",
		"kind":       "Kustomization",
		"metadata": map[string]any{
			"name":      g.KustomizationName(),
			"namespace": ns,
		},
		"spec": map[string]any{
			"interval": "5m",
			"path":     g.Path(),
			"prune":    false,
			"sourceRef": map[string]any{
				"kind": "GitRepository",
				"name": g.SourceName(),
			},
			"targetNamespace": ns,
		},
	}}

	return []*unstructured.Unstructured{source, kustomization}
}

func toUnstructured(obj runtime.Object) (*unstructured.Unstructured, error) {
	raw, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return nil, fmt.Errorf("cannot render manifest: %w", err)
	}
	return &unstructured.Unstructured{Object: raw}, nil
}

func componentLabels(name string) map[string]string {
	return map[string]string{LabelApp: name}
}

func namespaceOf(ns string) *kubecore.Namespace {
	return &kubecore.Namespace{
		TypeMeta: kubeapimeta.TypeMeta{APIVersion: "v1", Kind: "Namespace"},
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name: ns,
		},
	}
}

func dataVolumeOf(ns string, component string, vol *config.VolumeConfig) *kubecore.PersistentVolumeClaim {
	var storageClassName *string
	if scn := vol.StorageClassName(); scn != "" {
		storageClassName = &scn
	}

	return &kubecore.PersistentVolumeClaim{
		TypeMeta: kubeapimeta.TypeMeta{APIVersion: "v1", Kind: "PersistentVolumeClaim"},
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:      DataVolumeName(component),
			Namespace: ns,
			Labels:    componentLabels(component),
		},
		Spec: kubecore.PersistentVolumeClaimSpec{
			AccessModes:      []kubecore.PersistentVolumeAccessMode{kubecore.ReadWriteOnce},
			StorageClassName: storageClassName,
			Resources: kubecore.VolumeResourceRequirements{
				Requests: kubecore.ResourceList{
					kubecore.ResourceStorage: vol.Capacity(),
				},
			},
		},
	}
}

func serviceOf(ns string, c *config.ComponentConfig, portName string) *kubecore.Service {
	return &kubecore.Service{
		TypeMeta: kubeapimeta.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:      c.Name(),
			Namespace: ns,
			Labels:    componentLabels(c.Name()),
		},
		Spec: kubecore.ServiceSpec{
			Selector: componentLabels(c.Name()),
			Ports: []kubecore.ServicePort{{
				Name:       portName,
				Port:       c.Port(),
				TargetPort: intstr.FromString(portName),
			}},
		},
	}
}

func artifactStoreOf(ns string, as *config.ArtifactStoreConfig) *kubeapps.Deployment {
	name := as.Component().Name()
	labels := componentLabels(name)

	return &kubeapps.Deployment{
		TypeMeta: kubeapimeta.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:      name,
			Namespace: ns,
			Labels:    labels,
		},
		Spec: kubeapps.DeploymentSpec{
			Replicas: ptr.Ref[int32](1),
			Selector: &kubeapimeta.LabelSelector{MatchLabels: labels},
			// the data volume is ReadWriteOnce: the old pod must release
			// it before a new one can start.
			Strategy: kubeapps.DeploymentStrategy{Type: kubeapps.RecreateDeploymentStrategyType},
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{Labels: labels},
				Spec: kubecore.PodSpec{
					Containers: []kubecore.Container{{
						Name:  name,
						Image: as.Component().Image().String(),
						Args:  []string{"server", "/data"},
						Env: []kubecore.EnvVar{
							{Name: "MINIO_ROOT_USER", Value: as.User()},
							{Name: "MINIO_ROOT_PASSWORD", Value: as.Password()},
						},
						Ports: []kubecore.ContainerPort{{
							Name:          PortNameAPI,
							ContainerPort: artifactStorePort,
						}},
						VolumeMounts: []kubecore.VolumeMount{{
							Name:      "data",
							MountPath: "/data",
						}},
						ReadinessProbe: &kubecore.Probe{
							ProbeHandler: kubecore.ProbeHandler{
								HTTPGet: &kubecore.HTTPGetAction{
									Path: "/minio/health/ready",
									Port: intstr.FromString(PortNameAPI),
								},
							},
							InitialDelaySeconds: 5,
							PeriodSeconds:       5,
						},
						LivenessProbe: &kubecore.Probe{
							ProbeHandler: kubecore.ProbeHandler{
								HTTPGet: &kubecore.HTTPGetAction{
									Path: "/minio/health/live",
									Port: intstr.FromString(PortNameAPI),
								},
							},
							InitialDelaySeconds: 10,
							PeriodSeconds:       15,
						},
					}},
					Volumes: []kubecore.Volume{{
						Name: "data",
						VolumeSource: kubecore.VolumeSource{
							PersistentVolumeClaim: &kubecore.PersistentVolumeClaimVolumeSource{
								ClaimName: DataVolumeName(name),
							},
						},
					}},
				},
			},
		},
	}
}

func initJobOf(ns string, as *config.ArtifactStoreConfig) *kubebatch.Job {
	name := as.Component().Name()
	endpoint := fmt.Sprintf("http://%s:%d", name, as.Component().Port())

	script := fmt.Sprintf(
		`until mc alias set store %s "${MINIO_USER}" "${MINIO_PASSWORD}"; do sleep 2; done
mc mb --ignore-existing store/%s`,
		endpoint, as.Bucket(),
	)

	return &kubebatch.Job{
		TypeMeta: kubeapimeta.TypeMeta{APIVersion: "batch/v1", Kind: "Job"},
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:      InitJobName(name),
			Namespace: ns,
			Labels:    componentLabels(name),
		},
		Spec: kubebatch.JobSpec{
			BackoffLimit: ptr.Ref[int32](6),
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{Labels: componentLabels(name)},
				Spec: kubecore.PodSpec{
					RestartPolicy: kubecore.RestartPolicyOnFailure,
					Containers: []kubecore.Container{{
						Name:    "init-bucket",
						Image:   as.InitImage().String(),
						Command: []string{"sh", "-c", script},
						Env: []kubecore.EnvVar{
							{Name: "MINIO_USER", Value: as.User()},
							{Name: "MINIO_PASSWORD", Value: as.Password()},
						},
					}},
				},
			},
		},
	}
}

func metadataDBOf(ns string, db *config.MetadataDBConfig) *kubeapps.StatefulSet {
	name := db.Component().Name()
	labels := componentLabels(name)

	return &kubeapps.StatefulSet{
		TypeMeta: kubeapimeta.TypeMeta{APIVersion: "apps/v1", Kind: "StatefulSet"},
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:      name,
			Namespace: ns,
			Labels:    labels,
		},
		Spec: kubeapps.StatefulSetSpec{
			ServiceName: name,
			Replicas:    ptr.Ref[int32](1),
			Selector:    &kubeapimeta.LabelSelector{MatchLabels: labels},
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{Labels: labels},
				Spec: kubecore.PodSpec{
					Containers: []kubecore.Container{{
						Name:  name,
						Image: db.Component().Image().String(),
						Env: []kubecore.EnvVar{
							{Name: "POSTGRES_USER", Value: db.User()},
							{Name: "POSTGRES_PASSWORD", Value: db.Password()},
							{Name: "POSTGRES_DB", Value: db.Database()},
							// the volume root holds lost+found; initdb needs an empty dir.
							{Name: "PGDATA", Value: "/var/lib/postgresql/data/pgdata"},
						},
						Ports: []kubecore.ContainerPort{{
							Name:          PortNamePostgres,
							ContainerPort: metadataDBPort,
						}},
						VolumeMounts: []kubecore.VolumeMount{{
							Name:      "data",
							MountPath: "/var/lib/postgresql/data",
						}},
						ReadinessProbe: &kubecore.Probe{
							ProbeHandler: kubecore.ProbeHandler{
								Exec: &kubecore.ExecAction{
									Command: []string{"pg_isready", "-U", db.User(), "-d", db.Database()},
								},
							},
							InitialDelaySeconds: 5,
							PeriodSeconds:       5,
						},
					}},
					Volumes: []kubecore.Volume{{
						Name: "data",
						VolumeSource: kubecore.VolumeSource{
							PersistentVolumeClaim: &kubecore.PersistentVolumeClaimVolumeSource{
								ClaimName: DataVolumeName(name),
							},
						},
					}},
				},
			},
		},
	}
}

func trackingServerConfigOf(ns string, conf *config.StackConfig) (*kubecore.ConfigMap, error) {
	db := conf.MetadataDB()
	dbAddr := fmt.Sprintf("%s:%d", db.Component().Name(), db.Component().Port())

	content, err := yaml.Marshal(&trackdcfg.TrackdConfig{
		ServerPort:   fmt.Sprint(trackingServerPort),
		DBURI:        DatabaseURL(db, dbAddr),
		ArtifactRoot: "/srv/artifacts",
	})
	if err != nil {
		return nil, fmt.Errorf("cannot render tracking server config: %w", err)
	}

	name := conf.TrackingServer().Name()
	return &kubecore.ConfigMap{
		TypeMeta: kubeapimeta.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:      ConfigMapName(name),
			Namespace: ns,
			Labels:    componentLabels(name),
		},
		Data: map[string]string{
			"config.yaml": string(content),
		},
	}, nil
}

func trackingServerOf(ns string, c *config.ComponentConfig) *kubeapps.Deployment {
	name := c.Name()
	labels := componentLabels(name)

	return &kubeapps.Deployment{
		TypeMeta: kubeapimeta.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:      name,
			Namespace: ns,
			Labels:    labels,
		},
		Spec: kubeapps.DeploymentSpec{
			Replicas: ptr.Ref[int32](1),
			Selector: &kubeapimeta.LabelSelector{MatchLabels: labels},
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{Labels: labels},
				Spec: kubecore.PodSpec{
					Containers: []kubecore.Container{{
						Name:  name,
						Image: c.Image().String(),
						Args:  []string{"--config-path", "/etc/trackd/config.yaml"},
						Ports: []kubecore.ContainerPort{{
							Name:          PortNameHTTP,
							ContainerPort: trackingServerPort,
						}},
						VolumeMounts: []kubecore.VolumeMount{
							{Name: "config", MountPath: "/etc/trackd", ReadOnly: true},
							{Name: "artifacts", MountPath: "/srv/artifacts"},
						},
						ReadinessProbe: &kubecore.Probe{
							ProbeHandler: kubecore.ProbeHandler{
								HTTPGet: &kubecore.HTTPGetAction{
									Path: "/health",
									Port: intstr.FromString(PortNameHTTP),
								},
							},
							InitialDelaySeconds: 5,
							PeriodSeconds:       5,
						},
					}},
					Volumes: []kubecore.Volume{
						{
							Name: "config",
							VolumeSource: kubecore.VolumeSource{
								ConfigMap: &kubecore.ConfigMapVolumeSource{
									LocalObjectReference: kubecore.LocalObjectReference{
										Name: ConfigMapName(name),
									},
								},
							},
						},
						{
							Name: "artifacts",
							VolumeSource: kubecore.VolumeSource{
								EmptyDir: &kubecore.EmptyDirVolumeSource{},
							},
						},
					},
				},
			},
		},
	}
}

func metricsGatewayOf(ns string, c *config.ComponentConfig) *kubeapps.Deployment {
	name := c.Name()
	labels := componentLabels(name)

	return &kubeapps.Deployment{
		TypeMeta: kubeapimeta.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:      name,
			Namespace: ns,
			Labels:    labels,
		},
		Spec: kubeapps.DeploymentSpec{
			Replicas: ptr.Ref[int32](1),
			Selector: &kubeapimeta.LabelSelector{MatchLabels: labels},
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{Labels: labels},
				Spec: kubecore.PodSpec{
					Containers: []kubecore.Container{{
						Name:  name,
						Image: c.Image().String(),
						Ports: []kubecore.ContainerPort{{
							Name:          PortNameHTTP,
							ContainerPort: metricsGatewayPort,
						}},
						ReadinessProbe: &kubecore.Probe{
							ProbeHandler: kubecore.ProbeHandler{
								HTTPGet: &kubecore.HTTPGetAction{
									Path: "/-/ready",
									Port: intstr.FromString(PortNameHTTP),
								},
							},
							InitialDelaySeconds: 3,
							PeriodSeconds:       5,
						},
					}},
				},
			},
		},
	}
}
