// Package docs holds the OpenAPI description served under /swagger.
// Regenerate with: swag init -g cmd/server/main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/devices": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Devices"],
                "summary": "List registers",
                "responses": {"200": {"description": "Registers retrieved"}}
            }
        },
        "/devices/{device_id}/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Devices"],
                "summary": "Register status",
                "parameters": [
                    {"type": "string", "name": "device_id", "in": "path", "required": true},
                    {"type": "boolean", "name": "probe", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Status retrieved"},
                    "404": {"description": "Register not found"}
                }
            }
        },
        "/devices/{device_id}/receipts": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Receipts"],
                "summary": "Print a fiscal receipt",
                "parameters": [
                    {"type": "string", "name": "device_id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "Receipt printed"},
                    "422": {"description": "Receipt cannot be encoded"},
                    "502": {"description": "Register rejected a packet"},
                    "504": {"description": "Register did not answer"}
                }
            }
        },
        "/devices/{device_id}/reports/{type}": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Reports"],
                "summary": "Print an X or Z report",
                "parameters": [
                    {"type": "string", "name": "device_id", "in": "path", "required": true},
                    {"enum": ["x", "z"], "type": "string", "name": "type", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "Report printed"}}
            }
        },
        "/devices/{device_id}/receipt/cancel": {
            "post": {
                "tags": ["Receipts"],
                "summary": "Cancel the open receipt",
                "parameters": [{"type": "string", "name": "device_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "Receipt cancelled"}}
            }
        },
        "/devices/{device_id}/receipt/duplicate": {
            "post": {
                "tags": ["Receipts"],
                "summary": "Print a duplicate of the last receipt",
                "parameters": [{"type": "string", "name": "device_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "Duplicate printed"}}
            }
        },
        "/devices/{device_id}/articles/delete": {
            "post": {
                "tags": ["Articles"],
                "summary": "Delete programmed articles",
                "parameters": [{"type": "string", "name": "device_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "Articles deleted"}}
            }
        },
        "/devices/{device_id}/commands": {
            "post": {
                "consumes": ["application/json"],
                "tags": ["Commands"],
                "summary": "Send a raw command",
                "parameters": [
                    {"type": "string", "name": "device_id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {"200": {"description": "Command sent"}}
            }
        },
        "/devices/{device_id}/jobs": {
            "get": {
                "tags": ["Jobs"],
                "summary": "List jobs of a register",
                "parameters": [
                    {"type": "string", "name": "device_id", "in": "path", "required": true},
                    {"type": "string", "name": "status", "in": "query"},
                    {"type": "string", "name": "job_type", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "Jobs retrieved"}}
            }
        },
        "/jobs/{job_id}": {
            "get": {
                "tags": ["Jobs"],
                "summary": "Get a job",
                "parameters": [{"type": "string", "name": "job_id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Job retrieved"},
                    "404": {"description": "Job not found"}
                }
            }
        },
        "/encode/receipt": {
            "post": {
                "tags": ["Encoding"],
                "summary": "Encode receipt packets without printing",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"type": "object"}}],
                "responses": {"200": {"description": "Receipt encoded"}}
            }
        },
        "/encode/command": {
            "post": {
                "tags": ["Encoding"],
                "summary": "Encode one command packet",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"type": "object"}}],
                "responses": {"200": {"description": "Command encoded"}}
            }
        },
        "/decode/response": {
            "post": {
                "tags": ["Encoding"],
                "summary": "Decode response data and status bytes",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"type": "object"}}],
                "responses": {"200": {"description": "Response decoded"}}
            }
        },
        "/discovery/ports": {
            "get": {
                "tags": ["Discovery"],
                "summary": "Scan ports",
                "parameters": [
                    {"enum": ["all", "serial", "tcp"], "type": "string", "name": "type", "in": "query"},
                    {"type": "string", "name": "timeout", "in": "query"}
                ],
                "responses": {"200": {"description": "Scan completed"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8085",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "ECR Service API",
	Description:      "Fiscal cash register service: receipts, reports and raw commands over serial, Bluetooth and TCP",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
