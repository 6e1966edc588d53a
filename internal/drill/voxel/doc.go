// Package voxel owns the drillable volume: a dense 3D grid of density cells
// with immutable hardness tags and a fixed grid-to-world transform.
//
// Responsibilities: bounds-checked cell access, coordinate mapping,
// monotonic erosion, dirty-region accumulation and versioned copy-out
// reads for rendering consumers.
// Key types: Volume, Cell, Index, Region, Descriptor.
//
// Dependency rule: voxel depends on no other drill package. Only the
// removal engine mutates a Volume.
package voxel
