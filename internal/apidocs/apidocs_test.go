package apidocs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDescribesEveryRoute(t *testing.T) {
	doc, err := Build(context.Background())
	require.NoError(t, err)

	for path, methods := range map[string][]string{
		"/api/v1/{contextPath}/dois":                              {"GET", "POST"},
		"/api/v1/{contextPath}/dois/{doiId}":                      {"GET", "PUT", "DELETE"},
		"/api/v1/{contextPath}/dois/submissions/{action}":         {"PUT"},
		"/api/v1/{contextPath}/navigations/{navigationId}/public": {"GET"},
	} {
		item := doc.Paths.Value(path)
		require.NotNil(t, item, path)
		for _, method := range methods {
			assert.NotNil(t, item.GetOperation(method), "%s %s", method, path)
		}
	}

	assert.Equal(t, "listDois", doc.Paths.Value("/api/v1/{contextPath}/dois").Get.OperationID)
}

func TestJSONIsParseable(t *testing.T) {
	encoded, err := JSON(context.Background())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, "3.0.3", decoded["openapi"])
	components := decoded["components"].(map[string]any)
	assert.Contains(t, components["schemas"], "Doi")
}
