package stack_test

import (
	"testing"
	"time"

	kstack "github.com/opst/trackfab/pkg/configs/stack"
	"k8s.io/apimachinery/pkg/api/resource"
)

func TestConfigMarshall(t *testing.T) {
	t.Run("it loads config from yaml: ", func(t *testing.T) {
		stackYml := []byte(`
namespace: trackfab-testing-example
timeout: 90s
gitOps:
  url: https://git.example/repo/trackfab-deploy
  ref: release
  path: ./clusters/testing
artifactStore:
  name: example-store
  image: example-repo/objstore:v0.0.1
  port: 19000
  bucket: example-bucket
  user: example-user
  password: example-password
  volume:
    storageClassName: example-sc
    capacity: 20Gi
metadataDB:
  name: example-db
  image: example-repo/pg:v0.0.2
  port: 15432
  user: example-db-user
  password: example-db-password
  database: exampledb
trackingServer:
  name: example-tracking
  image: example-repo/trackd:v0.0.3
  port: 15000
metricsGateway:
  name: example-gateway
  image: example-repo/pushgw:v0.0.4
  port: 19091
`)
		result, err := kstack.Unmarshal(stackYml)

		if err != nil {
			t.Errorf("failed to parse config.: %v", err)
		}

		t.Run(".namespace", func(t *testing.T) {
			actual := result.Namespace()
			expected := "trackfab-testing-example"
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}
		})

		t.Run(".timeout", func(t *testing.T) {
			actual := result.Timeout()
			expected := 90 * time.Second
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%v, %v)", expected, actual)
			}
		})

		t.Run(".gitOps.url", func(t *testing.T) {
			actual := result.GitOps().URL()
			expected := "https://git.example/repo/trackfab-deploy"
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}
		})

		t.Run(".gitOps.ref", func(t *testing.T) {
			actual := result.GitOps().Ref()
			expected := "release"
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}
		})

		t.Run(".gitOps.sourceName (defaulted)", func(t *testing.T) {
			actual := result.GitOps().SourceName()
			expected := kstack.DefaultGitOpsSourceName
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}
		})

		t.Run(".artifactStore.name", func(t *testing.T) {
			actual := result.ArtifactStore().Component().Name()
			expected := "example-store"
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}
		})

		t.Run(".artifactStore.image", func(t *testing.T) {
			actual := result.ArtifactStore().Component().Image().String()
			expected := "example-repo/objstore:v0.0.1"
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}
		})

		t.Run(".artifactStore.port", func(t *testing.T) {
			actual := result.ArtifactStore().Component().Port()
			expected := int32(19000)
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%d, %d)", expected, actual)
			}
		})

		t.Run(".artifactStore.bucket", func(t *testing.T) {
			actual := result.ArtifactStore().Bucket()
			expected := "example-bucket"
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}
		})

		t.Run(".artifactStore.volume.storageClassName", func(t *testing.T) {
			actual := result.ArtifactStore().Volume().StorageClassName()
			expected := "example-sc"
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}
		})

		t.Run(".artifactStore.volume.capacity", func(t *testing.T) {
			actual := result.ArtifactStore().Volume().Capacity()
			expected := resource.MustParse("20Gi")
			if !expected.Equal(actual) {
				t.Errorf("mismatch. (expected, actual) = (%v, %v)", expected, actual)
			}
		})

		t.Run(".metadataDB.name", func(t *testing.T) {
			actual := result.MetadataDB().Component().Name()
			expected := "example-db"
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}
		})

		t.Run(".metadataDB.user", func(t *testing.T) {
			actual := result.MetadataDB().User()
			expected := "example-db-user"
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}
		})

		t.Run(".metadataDB.database", func(t *testing.T) {
			actual := result.MetadataDB().Database()
			expected := "exampledb"
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}
		})

		t.Run(".trackingServer.port", func(t *testing.T) {
			actual := result.TrackingServer().Port()
			expected := int32(15000)
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%d, %d)", expected, actual)
			}
		})

		t.Run(".metricsGateway.name", func(t *testing.T) {
			actual := result.MetricsGateway().Name()
			expected := "example-gateway"
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}
		})
	})

	t.Run("it fills defaults for an empty config: ", func(t *testing.T) {
		result, err := kstack.Unmarshal([]byte(``))
		if err != nil {
			t.Fatalf("failed to parse config.: %v", err)
		}

		t.Run(".namespace", func(t *testing.T) {
			actual := result.Namespace()
			expected := kstack.DefaultNamespace
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}
		})

		t.Run(".timeout", func(t *testing.T) {
			actual := result.Timeout()
			expected := kstack.DefaultTimeout
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%v, %v)", expected, actual)
			}
		})

		t.Run(".gitOps", func(t *testing.T) {
			if result.GitOps() != nil {
				t.Errorf("gitOps should be nil unless configured: %+v", result.GitOps())
			}
		})

		t.Run(".artifactStore", func(t *testing.T) {
			actual := result.ArtifactStore().Component().Name()
			expected := kstack.DefaultArtifactStoreName
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}

			actualImage := result.ArtifactStore().Component().Image().String()
			if actualImage != kstack.DefaultArtifactStoreImage {
				t.Errorf(
					"mismatch. (expected, actual) = (%s, %s)",
					kstack.DefaultArtifactStoreImage, actualImage,
				)
			}
		})

		t.Run(".metadataDB", func(t *testing.T) {
			actual := result.MetadataDB().Component().Port()
			expected := kstack.DefaultMetadataDBPort
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%d, %d)", expected, actual)
			}

			actualCap := result.MetadataDB().Volume().Capacity()
			expectedCap := resource.MustParse(kstack.DefaultMetadataDBCapacity)
			if !expectedCap.Equal(actualCap) {
				t.Errorf("mismatch. (expected, actual) = (%v, %v)", expectedCap, actualCap)
			}
		})

		t.Run(".trackingServer", func(t *testing.T) {
			actual := result.TrackingServer().Name()
			expected := kstack.DefaultTrackingServerName
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}
		})

		t.Run(".metricsGateway", func(t *testing.T) {
			actual := result.MetricsGateway().Port()
			expected := kstack.DefaultMetricsGatewayPort
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%d, %d)", expected, actual)
			}
		})
	})
}
