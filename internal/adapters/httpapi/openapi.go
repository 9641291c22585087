package httpapi

import (
	"net/http"

	"github.com/Guilhem-Bonnet/howlsync/internal/buildinfo"
	"github.com/Guilhem-Bonnet/howlsync/internal/httpjson"
)

// handleOpenAPI renvoie le document OpenAPI de l'API v1.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, openAPIDocument())
}

func openAPIDocument() map[string]any {
	ref := func(name string) map[string]any {
		return map[string]any{"$ref": "#/components/schemas/" + name}
	}
	jsonOK := func(schema string) map[string]any {
		return map[string]any{
			"description": "OK",
			"content": map[string]any{
				"application/json": map[string]any{"schema": ref(schema)},
			},
		}
	}
	jsonBody := func(schema string) map[string]any {
		return map[string]any{
			"required": true,
			"content": map[string]any{
				"application/json": map[string]any{"schema": ref(schema)},
			},
		}
	}
	jsonErr := jsonOK("Error")
	jsonErr["description"] = "Error"

	titleParam := []any{map[string]any{
		"name":     "title",
		"in":       "path",
		"required": true,
		"schema":   map[string]any{"type": "string"},
	}}

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "howlsync API",
			"version": buildinfo.Current().Version,
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"OpenAPIDocument": map[string]any{
					"type":                 "object",
					"additionalProperties": true,
				},
				"Error": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error": map[string]any{"type": "string"},
						"code":  map[string]any{"type": "string", "enum": []any{"http_status", "network_error", "invalid_params"}},
					},
					"required": []any{"error"},
				},
				"Action": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"at":  map[string]any{"type": "integer", "minimum": 0, "description": "Horodatage en ms"},
						"pos": map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
					},
					"required": []any{"at", "pos"},
				},
				"Funscript": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"metadata": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"title":         map[string]any{"type": "string"},
								"description":   map[string]any{"type": "string"},
								"performers":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
								"video_url":     map[string]any{"type": "string"},
								"tags":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
								"duration":      map[string]any{"type": "integer"},
								"average_speed": map[string]any{"type": "number"},
								"creator":       map[string]any{"type": "string"},
							},
							"required": []any{"title"},
						},
						"actions": map[string]any{"type": "array", "items": ref("Action")},
					},
					"required": []any{"metadata", "actions"},
				},
				"FunscriptList": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"items":         map[string]any{"type": "array", "items": ref("Funscript")},
						"selectedTitle": map[string]any{"type": "string"},
					},
					"required": []any{"items"},
				},
				"Selection": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title": map[string]any{"type": "string"},
					},
					"additionalProperties": false,
				},
				"MatchRequest": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"videoTitle": map[string]any{"type": "string"},
					},
					"required":             []any{"videoTitle"},
					"additionalProperties": false,
				},
				"DiscoveryRequest": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"videoTitle": map[string]any{"type": "string", "description": "Titre de repli des scripts sans titre"},
						"records":    map[string]any{"type": "array", "items": ref("Funscript")},
						"urls":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"pages":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Pages HTML à parcourir (liens .funscript)"},
						"videos":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Identifiants de vidéos du site (métadonnées et timeline via son API)"},
						"timelines": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"url":      map[string]any{"type": "string"},
									"metadata": map[string]any{"type": "object", "additionalProperties": true},
								},
								"required": []any{"url"},
							},
						},
					},
				},
				"DiscoveryResult": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"cached":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"selected": map[string]any{"type": "string"},
						"failed": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"source": map[string]any{"type": "string"},
									"error":  map[string]any{"type": "string"},
								},
							},
						},
					},
					"required": []any{"cached"},
				},
				"PlayerState": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"active": map[string]any{"type": "boolean"},
					},
				},
				"VideoEvent": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type":        map[string]any{"type": "string", "enum": []any{"play", "pause", "ended", "seeked", "waiting", "canplay"}},
						"currentTime": map[string]any{"type": "number", "description": "Secondes"},
						"paused":      map[string]any{"type": "boolean"},
					},
					"required":             []any{"type"},
					"additionalProperties": false,
				},
				"Settings": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"serverAddress":    map[string]any{"type": "string"},
						"controlPort":      map[string]any{"type": "integer", "minimum": 1, "maximum": 65535},
						"syncDelay":        map[string]any{"type": "integer", "minimum": 0, "description": "Décalage en ms"},
						"maxCachedScripts": map[string]any{"type": "integer", "minimum": 1, "maximum": 50},
					},
					"additionalProperties": false,
				},
			},
		},
		"paths": map[string]any{
			"/api/v1/health": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/v1/version": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/v1/openapi.json": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": jsonOK("OpenAPIDocument")}},
			},
			"/api/v1/events": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "SSE"}}},
			},
			"/api/v1/ws": map[string]any{
				"get": map[string]any{"responses": map[string]any{"101": map[string]any{"description": "WebSocket"}}},
			},
			"/api/v1/funscripts": map[string]any{
				"get": map[string]any{
					"parameters": []any{map[string]any{
						"name":   "order",
						"in":     "query",
						"schema": map[string]any{"type": "string", "enum": []any{"recent"}},
					}},
					"responses": map[string]any{"200": jsonOK("FunscriptList"), "503": jsonErr},
				},
				"post": map[string]any{
					"requestBody": jsonBody("Funscript"),
					"responses":   map[string]any{"201": jsonOK("Funscript"), "400": jsonErr, "409": jsonErr, "503": jsonErr},
				},
				"delete": map[string]any{
					"responses": map[string]any{"204": map[string]any{"description": "Cleared"}, "503": jsonErr},
				},
			},
			"/api/v1/funscripts/{title}": map[string]any{
				"parameters": titleParam,
				"get": map[string]any{
					"responses": map[string]any{"200": jsonOK("Funscript"), "404": jsonErr},
				},
				"delete": map[string]any{
					"responses": map[string]any{"200": map[string]any{"description": "OK"}, "503": jsonErr},
				},
			},
			"/api/v1/discoveries": map[string]any{
				"post": map[string]any{
					"requestBody": jsonBody("DiscoveryRequest"),
					"responses":   map[string]any{"200": jsonOK("DiscoveryResult"), "400": jsonErr},
				},
			},
			"/api/v1/selection": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": jsonOK("Selection")}},
				"put": map[string]any{
					"requestBody": jsonBody("Selection"),
					"responses":   map[string]any{"200": jsonOK("Selection"), "400": jsonErr, "404": jsonErr},
				},
			},
			"/api/v1/selection/match": map[string]any{
				"post": map[string]any{
					"requestBody": jsonBody("MatchRequest"),
					"responses":   map[string]any{"200": jsonOK("Selection"), "404": jsonErr},
				},
			},
			"/api/v1/player/start": map[string]any{
				"post": map[string]any{"responses": map[string]any{"200": jsonOK("PlayerState"), "400": jsonErr, "502": jsonErr}},
			},
			"/api/v1/player/stop": map[string]any{
				"post": map[string]any{"responses": map[string]any{"200": jsonOK("PlayerState"), "502": jsonErr}},
			},
			"/api/v1/player/seek": map[string]any{
				"post": map[string]any{"responses": map[string]any{"200": jsonOK("PlayerState"), "400": jsonErr, "502": jsonErr}},
			},
			"/api/v1/player/load": map[string]any{
				"post": map[string]any{
					"requestBody": jsonBody("Selection"),
					"responses":   map[string]any{"200": jsonOK("Selection"), "400": jsonErr, "404": jsonErr, "502": jsonErr},
				},
			},
			"/api/v1/player/events": map[string]any{
				"post": map[string]any{
					"requestBody": jsonBody("VideoEvent"),
					"responses":   map[string]any{"202": jsonOK("PlayerState"), "400": jsonErr, "502": jsonErr},
				},
			},
			"/api/v1/settings": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": jsonOK("Settings"), "500": jsonErr}},
				"put": map[string]any{
					"requestBody": jsonBody("Settings"),
					"responses":   map[string]any{"200": jsonOK("Settings"), "400": jsonErr, "500": jsonErr},
				},
			},
		},
	}
}
