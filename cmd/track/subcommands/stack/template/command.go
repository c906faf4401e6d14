package template

import (
	"context"
	"fmt"
	"log"

	config "github.com/opst/trackfab/pkg/configs/stack"
	y "github.com/opst/trackfab/pkg/utils/yamler"
	"github.com/youta-t/flarc"
	"gopkg.in/yaml.v3"
)

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Write a stack configuration file, pre-filled with the builtin defaults.",
		struct{}{},
		flarc.Args{},
		Task(),
		flarc.WithDescription(`
Generate a stack configuration and write it to stdout.

The generated configuration describes the builtin defaults, with comments
explaining each field. Redirect it to a file, modify it as you like, and
pass the file to "track stack apply --config".

Example
-------

generate a configuration, then deploy with it:

	{{ .Command }} > ./STACK_CONFIG.yml
	track stack apply --config ./STACK_CONFIG.yml
`),
	)
}

func Task() flarc.Task[struct{}] {
	return func(
		ctx context.Context, cl flarc.Commandline[struct{}], params []any,
	) error {
		logger := log.New(
			cl.Stderr(), fmt.Sprintf("[%s] ", cl.Fullname()), log.LstdFlags,
		)

		enc := yaml.NewEncoder(cl.Stdout())
		defer enc.Close()
		enc.SetIndent(2)
		if err := enc.Encode(configWithDocument{conf: config.Default()}); err != nil {
			return fmt.Errorf("cannot write stack configuration: %w", err)
		}

		logger.Println("# stack configuration is generated. modify it as you like.")
		return nil
	}
}

// configWithDocument renders a StackConfig as a yaml document with
// comments for humans.
type configWithDocument struct {
	conf *config.StackConfig
}

func (c configWithDocument) MarshalYAML() (interface{}, error) {
	conf := c.conf

	doc := y.Map(
		y.Entry(
			y.Text("namespace", y.WithHeadComment(`
namespace (optional; default = "trackfab"):
  Kubernetes namespace where the stack is deployed.
`)),
			y.Text(conf.Namespace(), y.WithStyle(yaml.DoubleQuotedStyle)),
		),
		y.Entry(
			y.Text("timeout", y.WithHeadComment(`
timeout (optional; default = "3m0s"):
  Budget for waiting on each component to come ready (or to be gone).
`)),
			y.Text(conf.Timeout().String(), y.WithStyle(yaml.DoubleQuotedStyle)),
		),
		y.Entry(
			y.Text("artifactStore", y.WithHeadComment(`
artifactStore:
  S3-compatible object store holding Run artifacts.
  All fields are optional. Missing fields fall back to the defaults below.
`)),
			artifactStoreNode(conf.ArtifactStore()),
		),
		y.Entry(
			y.Text("metadataDB", y.WithHeadComment(`
metadataDB:
  PostgreSQL holding Experiments, Runs and their Params/Metrics/Tags.
`)),
			metadataDBNode(conf.MetadataDB()),
		),
		y.Entry(
			y.Text("trackingServer", y.WithHeadComment(`
trackingServer:
  The tracking daemon, speaking the REST API which "track" and training
  code talk to.
`)),
			componentNode(conf.TrackingServer()),
		),
		y.Entry(
			y.Text("metricsGateway", y.WithHeadComment(`
metricsGateway:
  Push gateway where training code publishes its metrics.
`)),
			componentNode(conf.MetricsGateway()),
		),
	)

	doc.FootComment = `
# # gitOps (optional):
# #   Declare the stack with custom resources for a GitOps controller,
# #   instead of applying manifests from this machine. The controller
# #   pulls manifests from the repository and keeps the cluster in sync.
# #
# #   "url" and "path" are required. Other fields have defaults.
# gitOps:
#   sourceName: "trackfab-source"
#   kustomizationName: "trackfab-stack"
#   url: "https://github.com/your-org/trackfab-stack.git"
#   ref: "main"
#   path: "./deploy"
#
# # manifests (optional):
# #   Directory with your own stack manifests, applied instead of the
# #   builtin ones. Ignored when gitOps is set.
# manifests: "./manifests"
`

	return doc, nil
}

func componentNode(c *config.ComponentConfig) *yaml.Node {
	return y.Map(
		y.Entry(y.Text("name"), y.Text(c.Name(), y.WithStyle(yaml.DoubleQuotedStyle))),
		y.Entry(y.Text("image"), y.Text(c.Image().String(), y.WithStyle(yaml.DoubleQuotedStyle))),
		y.Entry(y.Text("port"), y.Number(c.Port())),
	)
}

func volumeNode(v *config.VolumeConfig) *yaml.Node {
	capacity := v.Capacity()
	return y.Map(
		y.Entry(
			y.Text("storageClassName", y.WithHeadComment(`
storageClassName (optional):
  Storage class of the persistent volume. Empty means the cluster default.
`)),
			y.Text(v.StorageClassName(), y.WithStyle(yaml.DoubleQuotedStyle)),
		),
		y.Entry(y.Text("capacity"), y.Text(capacity.String(), y.WithStyle(yaml.DoubleQuotedStyle))),
	)
}

func artifactStoreNode(a *config.ArtifactStoreConfig) *yaml.Node {
	component := a.Component()
	return y.Map(
		y.Entry(y.Text("name"), y.Text(component.Name(), y.WithStyle(yaml.DoubleQuotedStyle))),
		y.Entry(y.Text("image"), y.Text(component.Image().String(), y.WithStyle(yaml.DoubleQuotedStyle))),
		y.Entry(y.Text("port"), y.Number(component.Port())),
		y.Entry(y.Text("volume"), volumeNode(a.Volume())),
		y.Entry(
			y.Text("bucket", y.WithHeadComment(`
bucket:
  Created in the store at deploy time. Runs store artifacts under it.
`)),
			y.Text(a.Bucket(), y.WithStyle(yaml.DoubleQuotedStyle)),
		),
		y.Entry(
			y.Text("initImage", y.WithHeadComment(`
initImage:
  Image running the one-shot job which creates the bucket.
`)),
			y.Text(a.InitImage().String(), y.WithStyle(yaml.DoubleQuotedStyle)),
		),
		y.Entry(
			y.Text("user", y.WithHeadComment(`
user, password:
  Credentials of the store. The defaults are for development only.
  Override them for any stack reachable from outside the cluster.
`)),
			y.Text(a.User(), y.WithStyle(yaml.DoubleQuotedStyle)),
		),
		y.Entry(y.Text("password"), y.Text(a.Password(), y.WithStyle(yaml.DoubleQuotedStyle))),
	)
}

func metadataDBNode(d *config.MetadataDBConfig) *yaml.Node {
	component := d.Component()
	return y.Map(
		y.Entry(y.Text("name"), y.Text(component.Name(), y.WithStyle(yaml.DoubleQuotedStyle))),
		y.Entry(y.Text("image"), y.Text(component.Image().String(), y.WithStyle(yaml.DoubleQuotedStyle))),
		y.Entry(y.Text("port"), y.Number(component.Port())),
		y.Entry(y.Text("volume"), volumeNode(d.Volume())),
		y.Entry(
			y.Text("user", y.WithHeadComment(`
user, password, database:
  Credentials and database name of the metadata db. The tracking server
  connects with these. The default credentials are for development only.
`)),
			y.Text(d.User(), y.WithStyle(yaml.DoubleQuotedStyle)),
		),
		y.Entry(y.Text("password"), y.Text(d.Password(), y.WithStyle(yaml.DoubleQuotedStyle))),
		y.Entry(y.Text("database"), y.Text(d.Database(), y.WithStyle(yaml.DoubleQuotedStyle))),
	)
}
