// Package assets models asset database records and the naming rules for
// their locally cached and generated files.
package assets
