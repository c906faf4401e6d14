package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/labstack/echo/v4"
	binderr "github.com/opst/trackfab/pkg/api-types-binding/errors"
)

// PutArtifactHandler stores the request body as an artifact file under root.
//
// The route should have a wildcard matching the artifact path, like
// "/mlflow-artifacts/artifacts/*".
func PutArtifactHandler(root string) echo.HandlerFunc {
	return func(c echo.Context) error {
		dest, err := resolveArtifact(root, c.Param("*"))
		if err != nil {
			return binderr.InvalidParameter(err.Error(), err)
		}

		if err := os.MkdirAll(filepath.Dir(dest), os.FileMode(0777)); err != nil {
			return binderr.InternalServerError(err)
		}
		file, err := os.Create(dest)
		if err != nil {
			return binderr.InternalServerError(err)
		}
		defer file.Close()

		if _, err := io.Copy(file, c.Request().Body); err != nil {
			return binderr.InternalServerError(err)
		}

		return c.JSON(http.StatusOK, struct{}{})
	}
}

// GetArtifactHandler streams an artifact file under root back to the client.
func GetArtifactHandler(root string) echo.HandlerFunc {
	return func(c echo.Context) error {
		source, err := resolveArtifact(root, c.Param("*"))
		if err != nil {
			return binderr.InvalidParameter(err.Error(), err)
		}

		stat, err := os.Stat(source)
		if os.IsNotExist(err) || (err == nil && stat.IsDir()) {
			return binderr.NotFound(
				fmt.Sprintf("artifact '%s' is not found", c.Param("*")), err,
			)
		} else if err != nil {
			return binderr.InternalServerError(err)
		}

		file, err := os.Open(source)
		if err != nil {
			return binderr.InternalServerError(err)
		}
		defer file.Close()

		return c.Stream(http.StatusOK, "application/octet-stream", file)
	}
}

// resolveArtifact maps an artifact path from a request onto the local
// filesystem, rooted at root. Parent references are squashed before
// joining so that a path cannot escape the root.
func resolveArtifact(root string, artifactPath string) (string, error) {
	cleaned := path.Clean("/" + artifactPath)
	if cleaned == "/" {
		return "", errors.New("artifact path is required")
	}
	return filepath.Join(root, filepath.FromSlash(cleaned)), nil
}
