// Package shaders embeds the WGSL programs of the GI passes. Struct
// definitions shared with Go live next to their gpu_types.go and are pulled
// in through content includes.
package shaders

import "embed"

// FS holds every GI shader, addressed by "<pass>/<name>.wgsl".
//
//go:embed global_sdf/*.wgsl surface_atlas/*.wgsl ddgi/*.wgsl
var FS embed.FS
