package template_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/opst/trackfab/cmd/track/subcommands/internal/commandline"
	stack_template "github.com/opst/trackfab/cmd/track/subcommands/stack/template"
	config "github.com/opst/trackfab/pkg/configs/stack"
)

func TestTemplateCommand(t *testing.T) {
	t.Run("the generated configuration seals into the builtin defaults", func(t *testing.T) {
		stdout := new(bytes.Buffer)

		testee := stack_template.Task()
		err := testee(
			context.Background(),
			commandline.MockCommandline[struct{}]{
				Fullname_: "track stack template",
				Stdout_:   stdout,
				Stderr_:   io.Discard,
				Flags_:    struct{}{},
			},
			[]any{},
		)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		actual, err := config.Unmarshal(stdout.Bytes())
		if err != nil {
			t.Fatalf("generated configuration can not be loaded back: %s", err)
		}

		expected := config.Default()
		if actual.Namespace() != expected.Namespace() {
			t.Errorf(
				"namespace: (actual, expected) = (%s, %s)",
				actual.Namespace(), expected.Namespace(),
			)
		}
		if actual.Timeout() != expected.Timeout() {
			t.Errorf(
				"timeout: (actual, expected) = (%s, %s)",
				actual.Timeout(), expected.Timeout(),
			)
		}
		if actual.GitOps() != nil {
			t.Errorf("gitOps: should not be set: %+v", actual.GitOps())
		}
		if actual.Manifests() != "" {
			t.Errorf("manifests: should not be set: %s", actual.Manifests())
		}

		{
			a, x := actual.ArtifactStore(), expected.ArtifactStore()
			if a.Component().Image().String() != x.Component().Image().String() ||
				a.Component().Name() != x.Component().Name() ||
				a.Component().Port() != x.Component().Port() {
				t.Errorf(
					"artifactStore: (actual, expected) = (%+v, %+v)",
					a.Component(), x.Component(),
				)
			}
			if a.Bucket() != x.Bucket() ||
				a.InitImage().String() != x.InitImage().String() ||
				a.User() != x.User() || a.Password() != x.Password() {
				t.Errorf("artifactStore: (actual, expected) = (%+v, %+v)", a, x)
			}
			actualCap, expectedCap := a.Volume().Capacity(), x.Volume().Capacity()
			if !expectedCap.Equal(actualCap) ||
				a.Volume().StorageClassName() != x.Volume().StorageClassName() {
				t.Errorf(
					"artifactStore volume: (actual, expected) = (%+v, %+v)",
					a.Volume(), x.Volume(),
				)
			}
		}

		{
			a, x := actual.MetadataDB(), expected.MetadataDB()
			if a.Component().Image().String() != x.Component().Image().String() ||
				a.Component().Name() != x.Component().Name() ||
				a.Component().Port() != x.Component().Port() {
				t.Errorf(
					"metadataDB: (actual, expected) = (%+v, %+v)",
					a.Component(), x.Component(),
				)
			}
			if a.User() != x.User() || a.Password() != x.Password() ||
				a.Database() != x.Database() {
				t.Errorf("metadataDB: (actual, expected) = (%+v, %+v)", a, x)
			}
			actualCap, expectedCap := a.Volume().Capacity(), x.Volume().Capacity()
			if !expectedCap.Equal(actualCap) {
				t.Errorf(
					"metadataDB volume: (actual, expected) = (%+v, %+v)",
					a.Volume(), x.Volume(),
				)
			}
		}

		{
			a, x := actual.TrackingServer(), expected.TrackingServer()
			if a.Image().String() != x.Image().String() || a.Name() != x.Name() || a.Port() != x.Port() {
				t.Errorf("trackingServer: (actual, expected) = (%+v, %+v)", a, x)
			}
		}
		{
			a, x := actual.MetricsGateway(), expected.MetricsGateway()
			if a.Image().String() != x.Image().String() || a.Name() != x.Name() || a.Port() != x.Port() {
				t.Errorf("metricsGateway: (actual, expected) = (%+v, %+v)", a, x)
			}
		}
	})

	t.Run("the generated configuration is commented for humans", func(t *testing.T) {
		stdout := new(bytes.Buffer)

		testee := stack_template.Task()
		err := testee(
			context.Background(),
			commandline.MockCommandline[struct{}]{
				Fullname_: "track stack template",
				Stdout_:   stdout,
				Stderr_:   io.Discard,
				Flags_:    struct{}{},
			},
			[]any{},
		)
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}

		content := stdout.String()
		for _, phrase := range []string{
			"# namespace", "# artifactStore", "# metadataDB",
			"# trackingServer", "# metricsGateway", "# gitOps", "# manifests",
		} {
			if !strings.Contains(content, phrase) {
				t.Errorf("comment %q is missed:\n%s", phrase, content)
			}
		}
	})
}
