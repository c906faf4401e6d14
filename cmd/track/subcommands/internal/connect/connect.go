package connect

import (
	"log"

	cerr "github.com/opst/trackfab/cmd/track/errors"
	"github.com/opst/trackfab/pkg/cluster"
	config "github.com/opst/trackfab/pkg/configs/stack"
	"github.com/opst/trackfab/pkg/stack"
	"github.com/opst/trackfab/pkg/utils/kubeutil"
	kpath "github.com/opst/trackfab/pkg/utils/path"
)

// FieldManager identifies this commandline in server-side apply.
const FieldManager = "track"

// Load reads a stack configuration file, or builds the builtin defaults
// when filepath is empty.
func Load(filepath string) (*config.StackConfig, error) {
	if filepath == "" {
		return config.Default(), nil
	}
	resolved, err := kpath.Resolve(filepath)
	if err != nil {
		return nil, err
	}
	return config.LoadStackConfig(resolved)
}

// ClusterConnection resolves a kubeconfig and dials the cluster.
func ClusterConnection() (*kubeutil.Connection, error) {
	conn, err := kubeutil.ConnectToK8s()
	if err != nil {
		return nil, cerr.NewCuiError(
			"cannot connect to the kubernetes cluster",
			cerr.WithAdvice("Check your kubeconfig ($KUBECONFIG or ~/.kube/config), or run from inside the cluster."),
			cerr.WithCause(err),
		)
	}
	return conn, nil
}

// Connect attaches to the current kubernetes cluster and builds the stack
// driver for conf.
func Connect(conf *config.StackConfig, logger *log.Logger, options ...stack.Option) (*stack.Stack, error) {
	conn, err := ClusterConnection()
	if err != nil {
		return nil, err
	}

	clu := cluster.AttachCluster(
		cluster.WrapK8sClient(conn.Clientset),
		cluster.WrapDynamicClient(conn.Dynamic, conn.Mapper, FieldManager, conf.Namespace()),
		conf.Namespace(),
		"",
	)
	return stack.New(clu, conn.Config, conf, logger, options...), nil
}
