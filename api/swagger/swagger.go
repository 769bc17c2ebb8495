package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Convalidation Impact API",
        "description": "Equivalence review, credit allocation and student impact projection for curriculum changes",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {
            "name": "Equivalences",
            "description": "External to internal subject equivalences"
        },
        {
            "name": "CreditLimits",
            "description": "Per-component credit ceilings"
        },
        {
            "name": "Impact",
            "description": "Batch impact runs and exports"
        }
    ],
    "paths": {
        "/curricula/{id}/subjects/{subjectId}/suggestions": {
            "get": {
                "tags": [
                    "Equivalences"
                ],
                "summary": "Rank catalog subjects for an external subject",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Curriculum ID"
                    },
                    {
                        "name": "subjectId",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "External subject ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/curricula/{id}/equivalences": {
            "get": {
                "tags": [
                    "Equivalences"
                ],
                "summary": "List confirmed equivalences",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Curriculum ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/curricula/{id}/equivalences/auto-match": {
            "post": {
                "tags": [
                    "Equivalences"
                ],
                "summary": "Confirm confident matches for pending subjects",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Curriculum ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Run in progress",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/curricula/{id}/equivalences/{subjectId}": {
            "put": {
                "tags": [
                    "Equivalences"
                ],
                "summary": "Confirm an equivalence decision",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Curriculum ID"
                    },
                    {
                        "name": "subjectId",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "External subject ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SetEquivalenceRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Run in progress",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Equivalences"
                ],
                "summary": "Revert a subject to pending",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Curriculum ID"
                    },
                    {
                        "name": "subjectId",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "External subject ID"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/curricula/{id}/credit-limits": {
            "get": {
                "tags": [
                    "CreditLimits"
                ],
                "summary": "Effective credit limits of a curriculum",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Curriculum ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "put": {
                "tags": [
                    "CreditLimits"
                ],
                "summary": "Replace the credit limits of a curriculum",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Curriculum ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreditLimitsRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid credit limits",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/credit-limits/default": {
            "get": {
                "tags": [
                    "CreditLimits"
                ],
                "summary": "Global default credit limits",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "put": {
                "tags": [
                    "CreditLimits"
                ],
                "summary": "Replace the global default credit limits",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreditLimitsRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid credit limits",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/curricula/{id}/impact/runs": {
            "post": {
                "tags": [
                    "Impact"
                ],
                "summary": "Evaluate the impact of a curriculum change on its students",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Curriculum ID"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/CreateImpactRunRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Finished run",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "202": {
                        "description": "Queued run",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Run in progress",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/curricula/{id}/impact/summary": {
            "get": {
                "tags": [
                    "Impact"
                ],
                "summary": "Latest finished impact summary of a curriculum",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Curriculum ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/impact/runs/{runId}": {
            "get": {
                "tags": [
                    "Impact"
                ],
                "summary": "Impact run status and summary",
                "parameters": [
                    {
                        "name": "runId",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Run ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/impact/runs/{runId}/students/{studentId}": {
            "get": {
                "tags": [
                    "Impact"
                ],
                "summary": "Allocation and progress report of one student",
                "parameters": [
                    {
                        "name": "runId",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Run ID"
                    },
                    {
                        "name": "studentId",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Student ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/impact/runs/{runId}/export": {
            "get": {
                "tags": [
                    "Impact"
                ],
                "summary": "Download per-student impact results as CSV",
                "parameters": [
                    {
                        "name": "runId",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Run ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "CSV file",
                        "schema": {
                            "type": "file"
                        }
                    },
                    "409": {
                        "description": "Run not finished",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "produces": [
                    "text/csv"
                ]
            }
        }
    },
    "definitions": {
        "SetEquivalenceRequest": {
            "type": "object",
            "required": [
                "decision"
            ],
            "properties": {
                "decision": {
                    "type": "string",
                    "enum": [
                        "direct",
                        "flexible",
                        "not_convalidated"
                    ]
                },
                "internal_code": {
                    "type": "string"
                },
                "component": {
                    "type": "string"
                }
            }
        },
        "CreditLimitsRequest": {
            "type": "object",
            "properties": {
                "fundamental_required": {
                    "type": "integer",
                    "x-nullable": true
                },
                "fundamental_optional": {
                    "type": "integer",
                    "x-nullable": true
                },
                "professional_required": {
                    "type": "integer",
                    "x-nullable": true
                },
                "professional_optional": {
                    "type": "integer",
                    "x-nullable": true
                },
                "leveling": {
                    "type": "integer",
                    "x-nullable": true
                },
                "thesis": {
                    "type": "integer",
                    "x-nullable": true
                },
                "free_elective": {
                    "type": "integer",
                    "x-nullable": true
                }
            }
        },
        "CreateImpactRunRequest": {
            "type": "object",
            "properties": {
                "student_ids": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_count": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "pagination": {
                    "$ref": "#/definitions/Pagination"
                },
                "meta": {
                    "type": "object"
                }
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
