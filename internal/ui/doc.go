// Package ui styles terminal output with lipgloss.
//
// [Palette] holds the named styles; [Palette.RenderStatus] draws the `nowplaying status` report.
package ui
