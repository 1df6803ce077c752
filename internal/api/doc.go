// Package api serves the backup job REST API.
//
//	@title			Tenant Backup API
//	@version		1.0
//	@description	Queue, inspect, download and delete tenant data exports.
//	@BasePath		/api/v1
package api
