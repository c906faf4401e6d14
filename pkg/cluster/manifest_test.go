package cluster_test

import (
	"strings"
	"testing"

	"github.com/opst/trackfab/pkg/cluster"
	"github.com/opst/trackfab/pkg/utils/cmp"
	"github.com/opst/trackfab/pkg/utils/slices"
	"github.com/opst/trackfab/pkg/utils/try"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func TestDecodeManifests(t *testing.T) {
	t.Run("it decodes a multi-document stream in order", func(t *testing.T) {
		manifest := `
apiVersion: v1
kind: Namespace
metadata:
  name: trackfab
---
apiVersion: v1
kind: Service
metadata:
  name: mlflow
  namespace: trackfab
spec:
  ports:
    - name: http
      port: 5000
---
# gitops source for the tracking server
apiVersion: kustomize.toolkit.fluxcd.io/v1
kind: Kustomization
metadata:
  name: tracking-server
  namespace: trackfab
spec:
  interval: 1m
  path: ./tracking-server
`
		objs := try.To(cluster.DecodeManifests(strings.NewReader(manifest))).OrFatal(t)

		kinds := slices.Map(objs, func(o *unstructured.Unstructured) string { return o.GetKind() })
		if !cmp.SliceEq(kinds, []string{"Namespace", "Service", "Kustomization"}) {
			t.Errorf("unexpected kinds: %v", kinds)
		}

		names := slices.Map(objs, func(o *unstructured.Unstructured) string { return o.GetName() })
		if !cmp.SliceEq(names, []string{"trackfab", "mlflow", "tracking-server"}) {
			t.Errorf("unexpected names: %v", names)
		}

		if ns := objs[1].GetNamespace(); ns != "trackfab" {
			t.Errorf("service namespace: (actual, expected) = (%s, %s)", ns, "trackfab")
		}
	})

	t.Run("it skips empty documents", func(t *testing.T) {
		manifest := `
---
apiVersion: v1
kind: Namespace
metadata:
  name: trackfab
---
---
`
		objs := try.To(cluster.DecodeManifests(strings.NewReader(manifest))).OrFatal(t)
		if len(objs) != 1 {
			t.Errorf("decoded %d documents, expected 1", len(objs))
		}
	})

	t.Run("it rejects a document without kind", func(t *testing.T) {
		manifest := `
apiVersion: v1
kind: Namespace
metadata:
  name: trackfab
---
apiVersion: v1
metadata:
  name: nameless
`
		_, err := cluster.DecodeManifests(strings.NewReader(manifest))
		if err == nil {
			t.Fatal("error is expected")
		}
		if !strings.Contains(err.Error(), "#1") {
			t.Errorf("error should name the broken document: %v", err)
		}
	})

	t.Run("it rejects broken yaml", func(t *testing.T) {
		if _, err := cluster.DecodeManifests(strings.NewReader(": : :")); err == nil {
			t.Fatal("error is expected")
		}
	})
}
