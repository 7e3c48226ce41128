// Package blender discovers installed Blender releases, picks the build
// matching an asset's authoring version, and runs headless Blender with
// embedded Python background scripts over a JSON datafile side channel.
package blender
