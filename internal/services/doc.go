// Package services defines the shared failure taxonomy for task runs and
// hosts the clients for external collaborators: headless Blender, the
// BlenderKit asset database, and the captioning endpoint.
package services
