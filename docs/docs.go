// Package docs is generated by swag from the annotations in cmd/payment-service.
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
        "/orders": {
            "get": {
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "List my orders",
                "parameters": [
                    {"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true},
                    {"type": "integer", "description": "Page size (default 20, max 100)", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/order.ListResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpx.HTTPError"}}
                }
            }
        },
        "/orders/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["orders"],
                "summary": "Get one of my orders",
                "parameters": [
                    {"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true},
                    {"type": "string", "description": "Order ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/order.Order"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpx.HTTPError"}}
                }
            }
        },
        "/payments": {
            "post": {
                "description": "Creates a Campay collection and returns its hosted URL, or records a pay-on-delivery order.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "Start a checkout",
                "parameters": [
                    {"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true},
                    {"type": "string", "description": "Client idempotency key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Cart snapshot and payment method", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/order.CreatePaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/order.CreatePaymentResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpx.HTTPError"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpx.HTTPError"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/httpx.HTTPError"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httpx.HTTPError"}}
                }
            }
        },
        "/webhooks/campay": {
            "get": {
                "tags": ["webhooks"],
                "summary": "Campay payment notification",
                "parameters": [
                    {"type": "string", "description": "SUCCESSFUL, FAILED or PENDING", "name": "status", "in": "query", "required": true},
                    {"type": "string", "description": "Reference sent with the collection", "name": "external_reference", "in": "query", "required": true},
                    {"type": "string", "description": "HS256 token signed with the webhook key", "name": "signature", "in": "query", "required": true},
                    {"type": "string", "description": "Collected amount in XAF", "name": "amount", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpx.HTTPError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpx.HTTPError"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/httpx.HTTPError"}}
                }
            }
        }
    },
    "definitions": {
        "cart.Item": {
            "type": "object",
            "properties": {
                "productId": {"type": "integer", "example": 1},
                "name": {"type": "string", "example": "Ndop cloth"},
                "vendorName": {"type": "string", "example": "Bamenda Crafts"},
                "unitPrice": {"type": "string", "example": "5000"},
                "currency": {"type": "string", "example": "XAF"},
                "quantity": {"type": "integer", "example": 2},
                "category": {"type": "string"},
                "imageRef": {"type": "string"}
            }
        },
        "httpx.HTTPError": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "user not authenticated"}
            }
        },
        "order.CreatePaymentRequest": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/cart.Item"}},
                "totalAmount": {"type": "integer", "example": 10000},
                "currency": {"type": "string", "example": "XAF"},
                "paymentMethod": {"type": "string", "enum": ["card", "phone", "delivery"], "example": "phone"},
                "paymentDetails": {"type": "string", "example": "670000000"}
            }
        },
        "order.CreatePaymentResponse": {
            "type": "object",
            "properties": {
                "url": {"type": "string", "example": "https://campay.net/pay/cp-123"},
                "reference": {"type": "string", "example": "order_b2f5ff47_1718000000000"},
                "orderId": {"type": "string"},
                "status": {"type": "string", "example": "pending"},
                "fulfillmentMethod": {"type": "string", "example": "delivery"},
                "amount": {"type": "integer", "example": 10000},
                "currency": {"type": "string", "example": "XAF"}
            }
        },
        "order.ListResponse": {
            "type": "object",
            "properties": {
                "limit": {"type": "integer"},
                "offset": {"type": "integer"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/order.Order"}}
            }
        },
        "order.Order": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "userId": {"type": "string"},
                "amount": {"type": "integer", "example": 10000},
                "currency": {"type": "string", "example": "XAF"},
                "status": {"type": "string", "enum": ["pending", "completed", "cancelled"], "example": "pending"},
                "fulfillmentMethod": {"type": "string", "enum": ["online", "delivery"], "example": "online"},
                "paymentMethod": {"type": "string", "example": "phone"},
                "paymentReference": {"type": "string"},
                "paymentUrl": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/cart.Item"}},
                "createdAt": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "AfriMarket Payment Service",
	Description:      "Starts Campay checkouts and pay-on-delivery orders for AfriMarket carts.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
