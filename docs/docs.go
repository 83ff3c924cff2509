// Package docs is generated by swag init from the handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/payments/mpesa/callback": {
            "post": {
                "description": "Result notification for an STK push. Public; called by the gateway.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Payments"],
                "summary": "M-Pesa STK callback",
                "parameters": [
                    {
                        "description": "Daraja callback envelope",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"type": "object"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.Ack"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.Ack"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/services.Ack"}}
                }
            }
        },
        "/payments/stk-push": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Send a payment prompt to the member's phone for the selected plan",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Payments"],
                "summary": "Initiate M-Pesa STK push",
                "parameters": [
                    {
                        "description": "STK push request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object",
                            "properties": {
                                "contact": {"type": "string"},
                                "planId": {"type": "integer"}
                            }
                        }
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.InitiateResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/payments/stk-push/{checkoutRequestId}/status": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Poll the status of a payment by its checkout request id",
                "produces": ["application/json"],
                "tags": ["Payments"],
                "summary": "Get STK push status",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Checkout request id",
                        "name": "checkoutRequestId",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PaymentStatusView"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.PaymentStatusView": {
            "type": "object",
            "properties": {
                "amount": {"type": "number"},
                "exists": {"type": "boolean"},
                "phoneNumber": {"type": "string"},
                "settled": {"type": "boolean"},
                "status": {"type": "string"}
            }
        },
        "services.Ack": {
            "type": "object",
            "properties": {
                "ResultCode": {"type": "integer"},
                "ResultDesc": {"type": "string"}
            }
        },
        "services.ErrorResponse": {
            "type": "object",
            "properties": {
                "details": {"type": "object", "additionalProperties": {"type": "string"}},
                "error": {"type": "string"}
            }
        },
        "services.InitiateResult": {
            "type": "object",
            "properties": {
                "checkoutRequestId": {"type": "string"},
                "customerMessage": {"type": "string"},
                "merchantRequestId": {"type": "string"},
                "paymentId": {"type": "string"},
                "responseDescription": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "PABFC Membership Payments API",
	Description:      "M-Pesa STK push payments for gym memberships",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
