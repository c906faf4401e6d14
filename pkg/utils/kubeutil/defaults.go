package kubeutil

import (
	"os"
	"path/filepath"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"

	xe "github.com/opst/trackfab/pkg/errors"
)

// Connection bundles the clients speaking to one cluster.
type Connection struct {
	Clientset *kubernetes.Clientset
	Dynamic   dynamic.Interface
	Mapper    meta.RESTMapper
	Config    *rest.Config
}

// FindKubeconfig returns the kubeconfig path to be used, or "" when none
// is found (meaning: try in-cluster configuration).
//
// # It searches kubeconfig from
//
// - `~/.kube/config`
//
// - environmental variable `KUBECONFIG`
//
// - the file found first from the kubeconfigSearchPath
//
// Later entries take priority.
func FindKubeconfig(kubeconfigSearchPath ...string) string {
	kubeconfig := ""

	// priority 1 (least): ~/.kube/config
	if home := homedir.HomeDir(); home != "" {
		_kubeconfig := filepath.Join(home, ".kube", "config")
		if s, err := os.Stat(_kubeconfig); err == nil && !s.IsDir() {
			kubeconfig = _kubeconfig
		}
	}

	// priority 2: envvar KUBECONFIG
	if k := os.Getenv("KUBECONFIG"); k != "" {
		if s, err := os.Stat(k); err == nil && !s.IsDir() {
			kubeconfig = k
		}
	}

	// priority 3 (most): search path
	for _, sp := range kubeconfigSearchPath {
		if s, err := os.Stat(sp); err == nil && !s.IsDir() {
			kubeconfig = sp
			break
		}
	}

	return kubeconfig
}

// LoadConfig builds a client configuration from FindKubeconfig's pick,
// falling back to in-cluster configuration when no kubeconfig is found.
func LoadConfig(kubeconfigSearchPath ...string) (*rest.Config, error) {
	kubeconfig := FindKubeconfig(kubeconfigSearchPath...)

	if kubeconfig == "" {
		config, err := rest.InClusterConfig()
		if err != nil {
			return nil, xe.WrapWithNote("no kubeconfig found and not running in a cluster", err)
		}
		return config, nil
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, xe.WrapWithNote("kubeconfig "+kubeconfig, err)
	}
	return config, nil
}

// ConnectToK8s dials the cluster found by LoadConfig.
func ConnectToK8s(kubeconfigSearchPath ...string) (*Connection, error) {
	config, err := LoadConfig(kubeconfigSearchPath...)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	dyn, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	mapper := restmapper.NewDeferredDiscoveryRESTMapper(
		memory.NewMemCacheClient(clientset.Discovery()),
	)

	return &Connection{
		Clientset: clientset,
		Dynamic:   dyn,
		Mapper:    mapper,
		Config:    config,
	}, nil
}

// ServerVersion asks the apiserver for its version. Cheap reachability probe.
func (c *Connection) ServerVersion() (string, error) {
	info, err := c.Clientset.Discovery().ServerVersion()
	if err != nil {
		return "", err
	}
	return info.GitVersion, nil
}
