package docs

import "github.com/swaggo/swag"

// @title           Taskflow API
// @version         1.0
// @description     Role-based task tracking API: admin and user task views backed by an optimistic cache synchronization core.

// @host      localhost:8080
// @BasePath  /

// @tag.name Tasks
// @tag.description Task listing and mutation operations

// @tag.name Notifications
// @tag.description Notification listing and read-state operations

const docTemplate = `{
    "schemes": ["http"],
    "swagger": "2.0",
    "info": {
        "description": "Role-based task tracking API",
        "title": "Taskflow API",
        "version": "1.0"
    },
    "host": "localhost:8080",
    "basePath": "/"
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Taskflow API",
	Description:      "Role-based task tracking API",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
