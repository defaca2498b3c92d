// Package docs registers the marketplace OpenAPI document with swag so
// httpSwagger can serve it under /swagger/. It follows swag's generated
// layout and is kept in step with the handler annotations by hand.
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
        "/v1/administrator": {
            "get": {
                "produces": ["application/json"],
                "tags": ["marketplace"],
                "summary": "Get marketplace administrator",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.AdministratorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            },
            "put": {
                "description": "Only the current administrator may hand over the role.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["marketplace"],
                "summary": "Replace marketplace administrator",
                "parameters": [
                    {"type": "string", "description": "Caller address", "name": "X-Caller-Address", "in": "header", "required": true},
                    {"description": "New administrator", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httptransport.SetAdministratorRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.SetAdministratorResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            }
        },
        "/v1/markets": {
            "get": {
                "produces": ["application/json"],
                "tags": ["marketplace"],
                "summary": "List registered markets",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.ListMarketsResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["marketplace"],
                "summary": "Register a token contract market",
                "parameters": [
                    {"type": "string", "description": "Caller address", "name": "X-Caller-Address", "in": "header", "required": true},
                    {"description": "Market registration", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httptransport.RegisterMarketRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/httptransport.GetMarketResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            }
        },
        "/v1/markets/{contract}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["marketplace"],
                "summary": "Get a registered market",
                "parameters": [
                    {"type": "string", "description": "Contract address", "name": "contract", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.GetMarketResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            },
            "delete": {
                "description": "Every open sale of the market is returned to its seller.",
                "produces": ["application/json"],
                "tags": ["marketplace"],
                "summary": "Remove a market",
                "parameters": [
                    {"type": "string", "description": "Caller address", "name": "X-Caller-Address", "in": "header", "required": true},
                    {"type": "string", "description": "Contract address", "name": "contract", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.RemoveMarketResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            }
        },
        "/v1/sales": {
            "get": {
                "produces": ["application/json"],
                "tags": ["marketplace"],
                "summary": "List open sales",
                "parameters": [
                    {"type": "string", "description": "Asset contract filter", "name": "contract", "in": "query"},
                    {"type": "string", "description": "Seller filter", "name": "seller", "in": "query"},
                    {"type": "string", "description": "Cursor token", "name": "cursor", "in": "query"},
                    {"type": "integer", "description": "Page size (max 100)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.ListSalesResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["marketplace"],
                "summary": "List an asset for sale",
                "parameters": [
                    {"type": "string", "description": "Seller address", "name": "X-Caller-Address", "in": "header", "required": true},
                    {"description": "Sale listing", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httptransport.SellAssetRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/httptransport.GetSaleResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            }
        },
        "/v1/sales/{sale_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["marketplace"],
                "summary": "Get an open sale",
                "parameters": [
                    {"type": "integer", "description": "Sale id", "name": "sale_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.GetSaleResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            },
            "delete": {
                "description": "The seller or the administrator may cancel; the asset returns to the seller.",
                "produces": ["application/json"],
                "tags": ["marketplace"],
                "summary": "Cancel an open sale",
                "parameters": [
                    {"type": "string", "description": "Caller address", "name": "X-Caller-Address", "in": "header", "required": true},
                    {"type": "integer", "description": "Sale id", "name": "sale_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.CancelSaleResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            }
        },
        "/v1/sales/{sale_id}/buy": {
            "post": {
                "description": "amount_mutez must equal the sale price exactly.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["marketplace"],
                "summary": "Buy an open sale",
                "parameters": [
                    {"type": "string", "description": "Buyer address", "name": "X-Caller-Address", "in": "header", "required": true},
                    {"type": "integer", "description": "Sale id", "name": "sale_id", "in": "path", "required": true},
                    {"description": "Attached payment", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httptransport.BuyAssetRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.BuyAssetResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "httptransport.AdministratorResponse": {
            "type": "object",
            "properties": {"administrator": {"type": "string"}}
        },
        "httptransport.SetAdministratorRequest": {
            "type": "object",
            "properties": {"administrator": {"type": "string"}}
        },
        "httptransport.SetAdministratorResponse": {
            "type": "object",
            "properties": {"administrator": {"type": "string"}, "previous": {"type": "string"}}
        },
        "httptransport.RegisterMarketRequest": {
            "type": "object",
            "properties": {"contract": {"type": "string"}, "token_kind": {"type": "string"}}
        },
        "httptransport.MarketDTO": {
            "type": "object",
            "properties": {
                "contract": {"type": "string"},
                "sale_ids": {"type": "array", "items": {"type": "integer"}},
                "token_kind": {"type": "string"}
            }
        },
        "httptransport.GetMarketResponse": {
            "type": "object",
            "properties": {"item": {"$ref": "#/definitions/httptransport.MarketDTO"}}
        },
        "httptransport.ListMarketsResponse": {
            "type": "object",
            "properties": {"items": {"type": "array", "items": {"$ref": "#/definitions/httptransport.MarketDTO"}}}
        },
        "httptransport.RemoveMarketResponse": {
            "type": "object",
            "properties": {
                "contract": {"type": "string"},
                "returned_sales": {"type": "array", "items": {"$ref": "#/definitions/httptransport.SaleDTO"}}
            }
        },
        "httptransport.SellAssetRequest": {
            "type": "object",
            "properties": {
                "amount": {"type": "integer"},
                "contract": {"type": "string"},
                "price_mutez": {"type": "integer"},
                "token_id": {"type": "integer"}
            }
        },
        "httptransport.SaleDTO": {
            "type": "object",
            "properties": {
                "amount": {"type": "integer"},
                "contract": {"type": "string"},
                "price_mutez": {"type": "integer"},
                "price_tez": {"type": "string"},
                "sale_id": {"type": "integer"},
                "seller": {"type": "string"},
                "token_id": {"type": "integer"}
            }
        },
        "httptransport.GetSaleResponse": {
            "type": "object",
            "properties": {"item": {"$ref": "#/definitions/httptransport.SaleDTO"}}
        },
        "httptransport.ListSalesResponse": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/httptransport.SaleDTO"}},
                "next_cursor": {"type": "string"}
            }
        },
        "httptransport.BuyAssetRequest": {
            "type": "object",
            "properties": {"amount_mutez": {"type": "integer"}}
        },
        "httptransport.BuyAssetResponse": {
            "type": "object",
            "properties": {"buyer": {"type": "string"}, "sale": {"$ref": "#/definitions/httptransport.SaleDTO"}}
        },
        "httptransport.CancelSaleResponse": {
            "type": "object",
            "properties": {"sale": {"$ref": "#/definitions/httptransport.SaleDTO"}}
        },
        "httptransport.ErrorResponse": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "message": {"type": "string"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "TIOF marketplace API",
	Description:      "Custodial marketplace for FA1.2 and FA2 token sales.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
