package images_test

import (
	"encoding/json"
	"testing"

	"github.com/opst/trackfab-api-types/images"
	"gopkg.in/yaml.v3"
)

func TestRef_Parse(t *testing.T) {
	for name, testcase := range map[string]struct {
		expr           string
		wantRepository string
		wantTag        string
	}{
		"plain name with tag": {
			expr:           "postgres:16",
			wantRepository: "postgres",
			wantTag:        "16",
		},
		"registry with port": {
			expr:           "registry.local:5000/mlflow/mlflow:v2.12.1",
			wantRepository: "registry.local:5000/mlflow/mlflow",
			wantTag:        "v2.12.1",
		},
		"nested repository": {
			expr:           "ghcr.io/prometheus/pushgateway:v1.8.0",
			wantRepository: "ghcr.io/prometheus/pushgateway",
			wantTag:        "v1.8.0",
		},
	} {
		t.Run(name, func(t *testing.T) {
			r := new(images.Ref)
			if err := r.Parse(testcase.expr); err != nil {
				t.Fatal(err)
			}
			if r.Repository != testcase.wantRepository || r.Tag != testcase.wantTag {
				t.Errorf(
					"parsed as %s:%s (want %s:%s)",
					r.Repository, r.Tag,
					testcase.wantRepository, testcase.wantTag,
				)
			}
		})
	}

	t.Run("broken expression", func(t *testing.T) {
		r := new(images.Ref)
		if err := r.Parse("::::"); err == nil {
			t.Error("broken expression should not be accepted")
		}
	})
}

func TestRef_marshalling(t *testing.T) {
	r := images.Ref{Repository: "minio/minio", Tag: "latest"}

	{
		b, err := json.Marshal(r)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != `"minio/minio:latest"` {
			t.Errorf("unexpected json expression: %s", string(b))
		}

		back := new(images.Ref)
		if err := json.Unmarshal(b, back); err != nil {
			t.Fatal(err)
		}
		if !back.Equal(&r) {
			t.Errorf("json roundtrip changed value: %s", back)
		}
	}

	{
		b, err := yaml.Marshal(r)
		if err != nil {
			t.Fatal(err)
		}
		back := new(images.Ref)
		if err := yaml.Unmarshal(b, back); err != nil {
			t.Fatal(err)
		}
		if !back.Equal(&r) {
			t.Errorf("yaml roundtrip changed value: %s", back)
		}
	}
}
