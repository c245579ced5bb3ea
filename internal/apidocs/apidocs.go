// Package apidocs builds the OpenAPI description of the HTTP API.
package apidocs

import (
	"context"
	"net/http"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/iancoleman/strcase"
)

const (
	title   = "pubids API"
	version = "1.0.0"

	schemaDoi         = "Doi"
	schemaDoiList     = "DoiList"
	schemaFieldErrors = "FieldErrors"
	schemaError       = "Error"
	schemaOutcome     = "RegistrationOutcome"
	schemaActionItems = "RegistrationRequest"
	schemaNavigation  = "Navigation"
	schemaNavItem     = "NavigationItem"
)

type operation struct {
	method      string
	path        string
	summary     string
	tag         string
	parameters  openapi3.Parameters
	requestBody string
	response    string
	statuses    []int
}

// Build returns the validated OpenAPI document.
func Build(ctx context.Context) (*openapi3.T, error) {
	components := schemas()
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       title,
			Version:     version,
			Description: "Persistent identifiers and navigation menus of a multi-context publishing platform.",
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: components,
			SecuritySchemes: openapi3.SecuritySchemes{
				"bearer": &openapi3.SecuritySchemeRef{Value: openapi3.NewJWTSecurityScheme()},
			},
		},
	}

	for _, op := range operations() {
		item := doc.Paths.Value(op.path)
		if item == nil {
			item = &openapi3.PathItem{}
			doc.Paths.Set(op.path, item)
		}
		item.SetOperation(op.method, op.build(components))
	}

	if err := doc.Validate(ctx); err != nil {
		return nil, err
	}
	return doc, nil
}

// JSON returns the OpenAPI document encoded as JSON.
func JSON(ctx context.Context) ([]byte, error) {
	doc, err := Build(ctx)
	if err != nil {
		return nil, err
	}
	return doc.MarshalJSON()
}

func (op operation) build(components openapi3.Schemas) *openapi3.Operation {
	schemaRef := func(name string) *openapi3.SchemaRef {
		return openapi3.NewSchemaRef("#/components/schemas/"+name, components[name].Value)
	}
	success := &openapi3.ResponseRef{
		Value: openapi3.NewResponse().WithDescription("Success").WithJSONSchemaRef(schemaRef(op.response)),
	}
	built := &openapi3.Operation{
		OperationID: strcase.ToLowerCamel(op.summary),
		Summary:     op.summary,
		Tags:        []string{op.tag},
		Parameters:  op.parameters,
		Responses:   openapi3.NewResponses(openapi3.WithStatus(http.StatusOK, success)),
	}
	if op.tag == "dois" {
		built.Security = &openapi3.SecurityRequirements{openapi3.NewSecurityRequirement().Authenticate("bearer")}
	}
	if op.requestBody != "" {
		built.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(schemaRef(op.requestBody)),
		}
	}
	for _, status := range op.statuses {
		schema := schemaError
		if status == http.StatusBadRequest {
			schema = schemaFieldErrors
		}
		built.Responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{
			Value: openapi3.NewResponse().WithDescription(http.StatusText(status)).WithJSONSchemaRef(schemaRef(schema)),
		})
	}
	return built
}

func operations() []operation {
	contextPath := pathParameter("contextPath", openapi3.NewStringSchema())
	doiID := pathParameter("doiId", openapi3.NewInt64Schema())
	authErrors := []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound}

	return []operation{
		{
			method:  http.MethodGet,
			path:    "/api/v1/{contextPath}/dois",
			summary: "list dois",
			tag:     "dois",
			parameters: openapi3.Parameters{
				contextPath,
				queryParameter("count", openapi3.NewIntegerSchema().WithMin(1).WithMax(100)),
				queryParameter("offset", openapi3.NewIntegerSchema().WithMin(0)),
				queryParameter("status", openapi3.NewArraySchema().WithItems(statusSchema())),
			},
			response: schemaDoiList,
			statuses: authErrors,
		},
		{
			method:     http.MethodGet,
			path:       "/api/v1/{contextPath}/dois/{doiId}",
			summary:    "get doi",
			tag:        "dois",
			parameters: openapi3.Parameters{contextPath, doiID},
			response:   schemaDoi,
			statuses:   authErrors,
		},
		{
			method:      http.MethodPost,
			path:        "/api/v1/{contextPath}/dois",
			summary:     "add doi",
			tag:         "dois",
			parameters:  openapi3.Parameters{contextPath},
			requestBody: schemaDoi,
			response:    schemaDoi,
			statuses:    append([]int{http.StatusBadRequest}, authErrors...),
		},
		{
			method:      http.MethodPut,
			path:        "/api/v1/{contextPath}/dois/{doiId}",
			summary:     "edit doi",
			tag:         "dois",
			parameters:  openapi3.Parameters{contextPath, doiID},
			requestBody: schemaDoi,
			response:    schemaDoi,
			statuses:    append([]int{http.StatusBadRequest}, authErrors...),
		},
		{
			method:     http.MethodDelete,
			path:       "/api/v1/{contextPath}/dois/{doiId}",
			summary:    "delete doi",
			tag:        "dois",
			parameters: openapi3.Parameters{contextPath, doiID},
			response:   schemaDoi,
			statuses:   authErrors,
		},
		{
			method:  http.MethodPut,
			path:    "/api/v1/{contextPath}/dois/submissions/{action}",
			summary: "perform registration action",
			tag:     "dois",
			parameters: openapi3.Parameters{
				contextPath,
				pathParameter("action", openapi3.NewStringSchema().WithEnum("deposit", "export", "markRegistered")),
			},
			requestBody: schemaActionItems,
			response:    schemaOutcome,
			statuses:    append([]int{http.StatusNotAcceptable}, authErrors...),
		},
		{
			method:  http.MethodGet,
			path:    "/api/v1/{contextPath}/navigations/{navigationId}/public",
			summary: "get public navigation",
			tag:     "navigations",
			parameters: openapi3.Parameters{
				contextPath,
				pathParameter("navigationId", openapi3.NewInt64Schema()),
			},
			response: schemaNavigation,
			statuses: []int{http.StatusNotFound},
		},
	}
}

func schemas() openapi3.Schemas {
	doi := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewInt64Schema()).
		WithProperty("contextId", openapi3.NewInt64Schema()).
		WithProperty("doi", openapi3.NewStringSchema().WithMaxLength(255).WithPattern(`^10\.[0-9]{4,9}/\S+$`)).
		WithProperty("status", statusSchema()).
		WithAnyAdditionalProperties()

	doiList := openapi3.NewObjectSchema().
		WithProperty("itemsMax", openapi3.NewInt64Schema()).
		WithPropertyRef("items", &openapi3.SchemaRef{Value: openapi3.NewArraySchema().WithItems(doi)})

	fieldErrors := openapi3.NewObjectSchema().
		WithAdditionalProperties(openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()))

	apiError := openapi3.NewObjectSchema().
		WithProperty("error", openapi3.NewStringSchema()).
		WithProperty("code", openapi3.NewStringSchema())

	ids := openapi3.NewArraySchema().WithItems(openapi3.NewInt64Schema())
	actionItems := openapi3.NewObjectSchema().WithProperty("ids", ids)
	actionItems.Required = []string{"ids"}

	outcome := openapi3.NewObjectSchema().
		WithProperty("action", openapi3.NewStringSchema()).
		WithProperty("batchId", openapi3.NewStringSchema()).
		WithProperty("processed", ids).
		WithProperty("failed", ids).
		WithProperty("location", openapi3.NewStringSchema()).
		WithProperty("error", openapi3.NewStringSchema()).
		WithProperty("document", openapi3.NewStringSchema())

	child := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewInt64Schema()).
		WithProperty("title", openapi3.NewStringSchema()).
		WithProperty("path", openapi3.NewStringSchema()).
		WithProperty("type", openapi3.NewStringSchema()).
		WithProperty("sequence", openapi3.NewIntegerSchema())
	item := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewInt64Schema()).
		WithProperty("title", openapi3.NewStringSchema()).
		WithProperty("path", openapi3.NewStringSchema()).
		WithProperty("type", openapi3.NewStringSchema()).
		WithProperty("sequence", openapi3.NewIntegerSchema()).
		WithProperty("children", openapi3.NewArraySchema().WithItems(child))
	navigation := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewInt64Schema()).
		WithProperty("title", openapi3.NewStringSchema()).
		WithProperty("area_name", openapi3.NewStringSchema()).
		WithProperty("context_id", openapi3.NewInt64Schema()).
		WithPropertyRef("items", &openapi3.SchemaRef{Value: openapi3.NewArraySchema().WithItems(item)})

	return openapi3.Schemas{
		schemaDoi:         openapi3.NewSchemaRef("", doi),
		schemaDoiList:     openapi3.NewSchemaRef("", doiList),
		schemaFieldErrors: openapi3.NewSchemaRef("", fieldErrors),
		schemaError:       openapi3.NewSchemaRef("", apiError),
		schemaOutcome:     openapi3.NewSchemaRef("", outcome),
		schemaActionItems: openapi3.NewSchemaRef("", actionItems),
		schemaNavigation:  openapi3.NewSchemaRef("", navigation),
		schemaNavItem:     openapi3.NewSchemaRef("", item),
	}
}

func statusSchema() *openapi3.Schema {
	return openapi3.NewIntegerSchema().WithMin(1).WithMax(5)
}

func pathParameter(name string, schema *openapi3.Schema) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: openapi3.NewPathParameter(name).WithSchema(schema)}
}

func queryParameter(name string, schema *openapi3.Schema) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: openapi3.NewQueryParameter(name).WithSchema(schema)}
}
