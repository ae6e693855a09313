package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Behavior Insights API",
        "description": "Classroom behaviour analysis and insight store",
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
        {"name": "Analysis", "description": "Behaviour analysis runs, risk and suggestions"},
        {"name": "Insights", "description": "Stored insights, predictions and suggestions"},
        {"name": "Observability", "description": "Process metrics"}
    ],
    "paths": {
        "/analysis/run": {
            "post": {
                "tags": ["Analysis"],
                "summary": "Run behaviour analysis now",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Session invalid; data carries the unsaved run", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analysis/trigger": {
            "post": {
                "tags": ["Analysis"],
                "summary": "Schedule a background analysis",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/TriggerRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analysis/latest": {
            "get": {
                "tags": ["Analysis"],
                "summary": "Latest published analysis run",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No run yet", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analysis/risk": {
            "get": {
                "tags": ["Analysis"],
                "summary": "Current class risk summary",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No risk summary yet", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analysis/events/suggest": {
            "post": {
                "tags": ["Analysis"],
                "summary": "Suggest an immediate response for a new event",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BehaviorEvent"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analysis/insights/{id}/apply": {
            "post": {
                "tags": ["Analysis"],
                "summary": "Apply an action from a generated artifact",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplyInsightRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Artifact was never saved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/insights": {
            "get": {
                "tags": ["Insights"],
                "summary": "List stored artifacts",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "kind", "in": "query", "type": "string", "enum": ["insight", "prediction", "suggestion"]},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Insights"],
                "summary": "Store a generated artifact",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/Insight"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/insights/{id}": {
            "get": {
                "tags": ["Insights"],
                "summary": "Get a stored artifact",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Insights"],
                "summary": "Retire an artifact",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/insights/{id}/apply": {
            "post": {
                "tags": ["Insights"],
                "summary": "Record the action taken on an artifact",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplyInsightRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/insights/actions/{id}/outcome": {
            "patch": {
                "tags": ["Insights"],
                "summary": "Record how an applied action worked out",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordOutcomeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Process metrics summary",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "BehaviorEvent": {
            "type": "object",
            "required": ["category"],
            "properties": {
                "id": {"type": "string"},
                "student_id": {"type": "string"},
                "student_name": {"type": "string"},
                "category": {"type": "string"},
                "subject": {"type": "string"},
                "time_of_day": {"type": "string", "enum": ["Morning", "Midday", "Afternoon"]},
                "severity": {"type": "string", "enum": ["low", "medium", "high"]},
                "notes": {"type": "string"},
                "occurred_at": {"type": "string", "format": "date-time"}
            }
        },
        "DataPoint": {
            "type": "object",
            "properties": {
                "label": {"type": "string"},
                "value": {"type": "number"},
                "unit": {"type": "string"}
            }
        },
        "Insight": {
            "type": "object",
            "required": ["kind", "signal", "title", "description", "priority", "actions"],
            "properties": {
                "id": {"type": "string"},
                "kind": {"type": "string", "enum": ["insight", "prediction", "suggestion"]},
                "signal": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "priority": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
                "category": {"type": "string"},
                "confidence": {"type": "integer", "minimum": 0, "maximum": 100},
                "actions": {"type": "array", "items": {"type": "string"}},
                "data_points": {"type": "array", "items": {"$ref": "#/definitions/DataPoint"}},
                "data_snapshot": {"type": "object"},
                "student_ids": {"type": "array", "items": {"type": "string"}},
                "generated_at": {"type": "string", "format": "date-time"},
                "applied": {"type": "boolean"},
                "applied_action": {"type": "string"},
                "applied_at": {"type": "string", "format": "date-time"},
                "active": {"type": "boolean"},
                "is_local": {"type": "boolean"}
            }
        },
        "ApplyInsightRequest": {
            "type": "object",
            "required": ["chosen_action"],
            "properties": {
                "chosen_action": {"type": "string"},
                "feedback": {"type": "string"}
            }
        },
        "RecordOutcomeRequest": {
            "type": "object",
            "required": ["success"],
            "properties": {
                "success": {"type": "boolean"},
                "impact": {"type": "string"},
                "feedback": {"type": "string"}
            }
        },
        "TriggerRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
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
