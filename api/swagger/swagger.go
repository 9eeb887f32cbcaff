package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Lesson Scheduler API",
        "description": "Weekly group lesson scheduling: skeleton validation, progressive solving and saved runs.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Scheduler", "description": "Schedule generation, proposals and saved runs"},
        {"name": "Observability", "description": "Health and metrics"}
    ],
    "paths": {
        "/schedules/generator": {
            "post": {
                "tags": ["Scheduler"],
                "summary": "Generate a weekly lesson schedule proposal",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateScheduleRequest"}}
                ],
                "responses": {
                    "200": {"description": "Proposal", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid roster", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Recurring lessons are invalid", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules/generator/csv": {
            "post": {
                "tags": ["Scheduler"],
                "summary": "Generate a schedule proposal from CSV files",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "students", "in": "formData", "type": "file", "required": true},
                    {"name": "recurring", "in": "formData", "type": "file"},
                    {"name": "blocked", "in": "formData", "type": "array", "items": {"type": "string"}, "collectionFormat": "multi"},
                    {"name": "title", "in": "formData", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Proposal", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Parse error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules/generator/validate": {
            "post": {
                "tags": ["Scheduler"],
                "summary": "Validate recurring classes without solving",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateScheduleRequest"}}
                ],
                "responses": {
                    "200": {"description": "Validation report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules/generator/jobs": {
            "post": {
                "tags": ["Scheduler"],
                "summary": "Queue a schedule generation job",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateScheduleRequest"}}
                ],
                "responses": {
                    "202": {"description": "Job accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Queue full", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules/generator/jobs/{id}": {
            "get": {
                "tags": ["Scheduler"],
                "summary": "Get the state of a generation job",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "Job record", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown job"}
                }
            }
        },
        "/schedules/proposals/{id}": {
            "get": {
                "tags": ["Scheduler"],
                "summary": "Get a stored proposal",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "Proposal", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Expired or unknown"}
                }
            }
        },
        "/schedules/proposals/{id}/export": {
            "get": {
                "tags": ["Scheduler"],
                "summary": "Download a proposal",
                "produces": ["application/json", "text/markdown", "text/csv", "application/pdf"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "format", "in": "query", "type": "string", "enum": ["json", "markdown", "csv", "pdf"]},
                    {"name": "part", "in": "query", "type": "string", "enum": ["schedule", "unplaced"]}
                ],
                "responses": {
                    "200": {"description": "Attachment", "schema": {"type": "file"}}
                }
            }
        },
        "/schedules/save": {
            "post": {
                "tags": ["Scheduler"],
                "summary": "Save a proposal as a versioned schedule run",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SaveScheduleRequest"}}
                ],
                "responses": {
                    "201": {"description": "Saved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Interrupted proposal"},
                    "503": {"description": "Persistence disabled"}
                }
            }
        },
        "/schedules/runs": {
            "get": {
                "tags": ["Scheduler"],
                "summary": "List saved schedule runs",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "label", "in": "query", "type": "string"}],
                "responses": {
                    "200": {"description": "Runs", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules/runs/{id}/classes": {
            "get": {
                "tags": ["Scheduler"],
                "summary": "Get the classes of a saved run",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "Classes", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules/runs/{id}/publish": {
            "post": {
                "tags": ["Scheduler"],
                "summary": "Publish a draft schedule run",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "204": {"description": "Published"},
                    "409": {"description": "Not a draft"}
                }
            }
        },
        "/schedules/runs/{id}": {
            "delete": {
                "tags": ["Scheduler"],
                "summary": "Delete a draft schedule run",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "204": {"description": "Deleted"},
                    "409": {"description": "Not a draft"}
                }
            }
        },
        "/schedules/cache": {
            "delete": {
                "tags": ["Scheduler"],
                "summary": "Drop every cached schedule result",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Removed count", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Cache disabled"}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Scheduler metrics digest",
                "responses": {
                    "200": {"description": "Snapshot", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "Slot": {
            "type": "object",
            "properties": {
                "day": {"type": "string", "enum": ["monday", "tuesday", "wednesday", "thursday", "friday", "saturday"]},
                "start": {"type": "string", "example": "09:00"},
                "end": {"type": "string", "example": "10:00"}
            }
        },
        "StudentRequest": {
            "type": "object",
            "required": ["name", "sessionsPerWeek", "available"],
            "properties": {
                "name": {"type": "string"},
                "sessionsPerWeek": {"type": "integer", "minimum": 1, "maximum": 7},
                "available": {"type": "array", "items": {"$ref": "#/definitions/Slot"}},
                "linkedWith": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "RecurringClassRequest": {
            "type": "object",
            "required": ["slot", "students"],
            "properties": {
                "slot": {"$ref": "#/definitions/Slot"},
                "students": {"type": "array", "items": {"type": "string"}},
                "status": {"type": "string", "enum": ["locked", "needs_validation"]}
            }
        },
        "GenerateScheduleRequest": {
            "type": "object",
            "required": ["students"],
            "properties": {
                "students": {"type": "array", "items": {"$ref": "#/definitions/StudentRequest"}},
                "recurring": {"type": "array", "items": {"$ref": "#/definitions/RecurringClassRequest"}},
                "blocked": {"type": "array", "items": {"$ref": "#/definitions/Slot"}},
                "title": {"type": "string"}
            }
        },
        "SaveScheduleRequest": {
            "type": "object",
            "required": ["proposalId", "label"],
            "properties": {
                "proposalId": {"type": "string"},
                "label": {"type": "string"},
                "publish": {"type": "boolean"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
