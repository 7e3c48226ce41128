// Command bkt runs the BlenderKit asset maintenance tasks: texture
// resolutions, GLTF exports, thumbnail re-renders, add-on smoke tests and
// AI captions. Each task is a subcommand intended to run as a scheduled CI
// job against the asset database.
package main
