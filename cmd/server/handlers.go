package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/lychee-technology/eav"
	"github.com/lychee-technology/eav/internal"
	"go.uber.org/zap"
)

type entityView struct {
	ID     int64          `json:"id"`
	Schema string         `json:"schema"`
	Values map[string]any `json:"values"`
}

func newEntityView(e *eav.Entity) entityView {
	return entityView{ID: e.ID(), Schema: e.SchemaName(), Values: internal.ToJSONValues(e)}
}

func readObject(c *gin.Context) (map[string]any, error) {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid json body: %w", err)
	}
	if body == nil {
		return nil, fmt.Errorf("body must be a json object")
	}
	return body, nil
}

// handleCreateSchema handles POST /api/v1/schemas
func (s *Server) handleCreateSchema(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeFail(c, nil, "failed to read body")
		return
	}
	def, err := eav.ParseSchemaDefinition(data)
	if err != nil {
		writeFail(c, err, "invalid schema definition")
		return
	}
	schema, err := s.registry.Define(def)
	if err != nil {
		writeFail(c, err, "failed to declare schema")
		return
	}
	if err := s.registry.CreateAll(c.Request.Context(), s.storage); err != nil {
		writeFail(c, err, "failed to create value tables")
		return
	}
	writeSuccess(c, http.StatusCreated, schema.Definition(), "schema declared")
}

// handleListSchemas handles GET /api/v1/schemas
func (s *Server) handleListSchemas(c *gin.Context) {
	names := s.registry.Schemas()
	defs := make([]*eav.SchemaDefinition, 0, len(names))
	for _, name := range names {
		if schema, ok := s.registry.Schema(name); ok {
			defs = append(defs, schema.Definition())
		}
	}
	writeSuccess(c, http.StatusOK, defs, "")
}

// handleGetSchema handles GET /api/v1/schemas/:name
func (s *Server) handleGetSchema(c *gin.Context) {
	schema, ok := s.registry.Schema(c.Param("name"))
	if !ok {
		writeFail(c, eav.NewSchemaNotFoundError(c.Param("name")), "schema not found")
		return
	}
	writeSuccess(c, http.StatusOK, schema.Definition(), "")
}

// handleCreateEntity handles POST /api/v1/entities/:schema
func (s *Server) handleCreateEntity(c *gin.Context) {
	schema, ok := s.registry.Schema(c.Param("schema"))
	if !ok {
		writeFail(c, eav.NewSchemaNotFoundError(c.Param("schema")), "schema not found")
		return
	}
	body, err := readObject(c)
	if err != nil {
		writeFail(c, nil, err.Error())
		return
	}
	values, err := internal.FromJSONValues(schema, body)
	if err != nil {
		writeFail(c, err, "invalid field value")
		return
	}
	entity, err := schema.New(values)
	if err != nil {
		writeFail(c, err, "invalid entity")
		return
	}

	ctx := c.Request.Context()
	session := eav.NewSession(s.registry, s.storage)
	defer closeSession(c, session)
	if err := session.Add(entity); err != nil {
		writeFail(c, err, "failed to add entity")
		return
	}
	if err := session.Commit(ctx); err != nil {
		writeFail(c, err, "failed to save entity")
		return
	}
	zap.S().Infow("entity created", "schema", schema.Name(), "id", entity.ID())
	writeSuccess(c, http.StatusCreated, newEntityView(entity), "entity created")
}

// handleGetEntity handles GET /api/v1/entities/:id
func (s *Server) handleGetEntity(c *gin.Context) {
	id, ok := parseEntityID(c)
	if !ok {
		return
	}
	session := eav.NewSession(s.registry, s.storage)
	defer closeSession(c, session)
	entity, err := session.Load(c.Request.Context(), id)
	if err != nil {
		writeFail(c, err, "failed to load entity")
		return
	}
	writeSuccess(c, http.StatusOK, newEntityView(entity), "")
}

// handleUpdateEntity handles PATCH /api/v1/entities/:id. A null value clears
// the field.
func (s *Server) handleUpdateEntity(c *gin.Context) {
	id, ok := parseEntityID(c)
	if !ok {
		return
	}
	body, err := readObject(c)
	if err != nil {
		writeFail(c, nil, err.Error())
		return
	}

	ctx := c.Request.Context()
	session := eav.NewSession(s.registry, s.storage)
	defer closeSession(c, session)
	entity, err := session.Load(ctx, id)
	if err != nil {
		writeFail(c, err, "failed to load entity")
		return
	}
	values, err := internal.FromJSONValues(entity.Schema(), body)
	if err != nil {
		writeFail(c, err, "invalid field value")
		return
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := entity.Set(name, values[name]); err != nil {
			writeFail(c, err, "invalid field value")
			return
		}
	}
	if err := session.Commit(ctx); err != nil {
		writeFail(c, err, "failed to save entity")
		return
	}
	writeSuccess(c, http.StatusOK, newEntityView(entity), "entity updated")
}

// handleDeleteEntity handles DELETE /api/v1/entities/:id
func (s *Server) handleDeleteEntity(c *gin.Context) {
	id, ok := parseEntityID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	session := eav.NewSession(s.registry, s.storage)
	defer closeSession(c, session)
	entity, err := session.Load(ctx, id)
	if err != nil {
		writeFail(c, err, "failed to load entity")
		return
	}
	if err := session.Delete(entity); err != nil {
		writeFail(c, err, "failed to delete entity")
		return
	}
	if err := session.Commit(ctx); err != nil {
		writeFail(c, err, "failed to delete entity")
		return
	}
	zap.S().Infow("entity deleted", "schema", entity.SchemaName(), "id", id)
	c.Status(http.StatusNoContent)
}

func closeSession(c *gin.Context, session *eav.Session) {
	if err := session.Close(c.Request.Context()); err != nil {
		zap.S().Warnw("close session", "err", err)
	}
}
