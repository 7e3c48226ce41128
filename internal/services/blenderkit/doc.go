// Package blenderkit is the REST client for the BlenderKit asset database:
// paginated search, file download with a shared cache, the three-step
// storage upload flow, asset metadata patches and asset comments.
package blenderkit
