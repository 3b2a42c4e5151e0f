package api

const openAPISchema = `{
  "openapi": "3.0.0",
  "info": {
    "title": "mcp-guard decision API",
    "version": "1.0.0"
  },
  "paths": {
    "/healthz": {
      "get": {"summary": "Health check", "responses": {"200": {"description": "healthy"}}}
    },
    "/api/v1/approvals": {
      "get": {
        "summary": "List pending approvals, oldest first",
        "responses": {
          "200": {
            "description": "approval list",
            "content": {"application/json": {"schema": {"type": "object"}}}
          }
        }
      }
    },
    "/api/v1/approvals/{id}": {
      "get": {
        "summary": "Get one pending approval",
        "parameters": [
          {"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}
        ],
        "responses": {
          "200": {"description": "approval", "content": {"application/json": {"schema": {"type": "object"}}}},
          "404": {"description": "not found"}
        }
      }
    },
    "/api/v1/approvals/{id}/decision": {
      "post": {
        "summary": "Approve or deny a pending request",
        "parameters": [
          {"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}
        ],
        "requestBody": {
          "required": true,
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "required": ["approve"],
                "properties": {"approve": {"type": "boolean"}}
              }
            }
          }
        },
        "responses": {
          "200": {"description": "decision recorded"},
          "400": {"description": "missing approve field"},
          "404": {"description": "unknown or already decided"}
        }
      }
    },
    "/decide/{id}": {
      "post": {
        "summary": "Form endpoint used by the approvals page",
        "parameters": [
          {"name": "id", "in": "path", "required": true, "schema": {"type": "string"}},
          {"name": "approve", "in": "query", "schema": {"type": "string"}},
          {"name": "deny", "in": "query", "schema": {"type": "string"}}
        ],
        "responses": {
          "303": {"description": "decision recorded, redirect to /"},
          "404": {"description": "unknown or already decided"}
        }
      }
    },
    "/api/v1/policy/reload": {
      "post": {
        "summary": "Reload the policy file",
        "responses": {
          "200": {"description": "new rule set installed"},
          "409": {"description": "no policy file configured"},
          "422": {"description": "policy file invalid, previous rules kept"}
        }
      }
    },
    "/api/v1/cache": {
      "get": {"summary": "Approval cache size", "responses": {"200": {"description": "cache info"}}},
      "delete": {"summary": "Forget all remembered decisions", "responses": {"200": {"description": "cleared"}}}
    },
    "/api/v1/stats": {
      "get": {"summary": "Gateway traffic counters", "responses": {"200": {"description": "counters"}}}
    }
  }
}`
